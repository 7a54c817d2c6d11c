package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/domain/events"
	"github.com/jose-valero/wager-queue-bot/internal/domain/fault"
	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
	"github.com/jose-valero/wager-queue-bot/internal/storage"
)

// ledgerStub writes the bet the way the ledger does: active index, bound
// markers, pending cleared.
type ledgerStub struct {
	gw    *storage.Gateway
	seq   atomic.Int64
	fail  atomic.Bool
	calls atomic.Int64
}

func (l *ledgerStub) CreateMatch(ctx context.Context, m Match) (wager.Bet, error) {
	l.calls.Add(1)
	if l.fail.Load() {
		return wager.Bet{}, errors.New("thread creation failed")
	}
	bet := wager.Bet{
		ID:       fmt.Sprintf("bet-%d", l.seq.Add(1)),
		ServerID: m.Panel.ServerID,
		QueueID:  m.Panel.QueueID,
		Mode:     m.Panel.Mode,
		Teams:    m.Teams,
		Stake:    m.Panel.Stake,
		Fee:      m.Panel.Fee,
		Currency: m.Panel.Currency,
		Status:   wager.StatusMatched,
		Version:  1,
	}
	err := l.gw.Update(ctx, func(s *storage.Snapshot) error {
		s.ActiveBets[bet.ID] = bet
		for _, p := range m.Group {
			s.Bound[p] = bet.ID
		}
		delete(s.Pending, m.Panel.QueueID)
		return nil
	})
	return bet, err
}

type fixture struct {
	gw     *storage.Gateway
	ledger *ledgerStub
	coord  *Coordinator
	clock  *time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	fb, err := storage.NewFileBackend(t.TempDir(), "bets", zap.NewNop())
	require.NoError(t, err)
	gw := storage.NewGateway(fb, nil, zap.NewNop())
	gw.Load(context.Background())

	now := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	f := &fixture{gw: gw, ledger: &ledgerStub{gw: gw}, clock: &now}
	if opts.Now == nil {
		opts.Now = func() time.Time { return *f.clock }
	}
	f.coord = NewCoordinator(gw, f.ledger, events.NewBus(zap.NewNop()), zap.NewNop(), opts)
	return f
}

func (f *fixture) open(t *testing.T, mode, msgID string) string {
	t.Helper()
	meta, err := f.coord.Open(context.Background(), wager.PanelMeta{
		ServerID:  "S",
		ChannelID: "panel-ch",
		MessageID: msgID,
		Mode:      wager.MustMode(mode),
		Stake:     decimal.NewFromInt(100),
		Fee:       decimal.NewFromInt(10),
		Currency:  wager.CurrencySonhos,
	})
	require.NoError(t, err)
	return meta.QueueID
}

func invariant(t *testing.T, gw *storage.Gateway) {
	t.Helper()
	gw.View(context.Background(), func(s *storage.Snapshot) {
		seen := map[string]string{}
		for qid, ms := range s.Queues {
			// 1) capacidad
			if panel, ok := s.Panels[qid]; ok && len(ms) > panel.Mode.Capacity() {
				t.Fatalf("capacity exceeded in %s: %d/%d", qid, len(ms), panel.Mode.Capacity())
			}
			for _, m := range ms {
				// 2) sin duplicados entre colas
				if other, dup := seen[m.ParticipantID]; dup {
					t.Fatalf("participant %s in %s and %s", m.ParticipantID, other, qid)
				}
				seen[m.ParticipantID] = qid
				// 3) en cola y en apuesta activa son excluyentes
				if boundToActive(s, m.ParticipantID) {
					t.Fatalf("participant %s queued while bound to a bet", m.ParticipantID)
				}
			}
		}
	})
}

func TestOpen_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	base := wager.PanelMeta{ServerID: "S", MessageID: "1", Mode: wager.MustMode("1v1"), Stake: decimal.NewFromInt(5)}

	bad := base
	bad.Stake = decimal.Zero
	_, err := f.coord.Open(ctx, bad)
	assert.ErrorIs(t, err, wager.ErrInvalidStake)

	bad = base
	bad.Fee = decimal.NewFromInt(-1)
	_, err = f.coord.Open(ctx, bad)
	assert.ErrorIs(t, err, wager.ErrInvalidFee)

	bad = base
	bad.Mode = wager.Mode{}
	_, err = f.coord.Open(ctx, bad)
	assert.ErrorIs(t, err, wager.ErrInvalidMode)

	meta, err := f.coord.Open(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, "1v1_1", meta.QueueID)
	assert.Equal(t, wager.CurrencySonhos, meta.Currency)
}

func TestJoin_OneVersusOneScenario(t *testing.T) {
	f := newFixture(t, Options{HardCap: DefaultHardCap})
	ctx := context.Background()
	q := f.open(t, "1v1-mob", "100")

	res, err := f.coord.Join(ctx, q, "A")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, 1, res.Size)

	res, err = f.coord.Join(ctx, q, "B")
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, []string{"A", "B"}, res.Group)
	assert.Equal(t, wager.StatusMatched, res.Bet.Status)
	assert.True(t, res.Bet.Stake.Equal(decimal.NewFromInt(100)))
	assert.True(t, res.Bet.Fee.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, []string{"A", "B"}, res.Bet.Participants())

	v, err := f.coord.Snapshot(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, v.Members)
	assert.Zero(t, v.Pending)
	assert.Equal(t, q, v.Panel.QueueID, "panel metadata survives the clear")
	invariant(t, f.gw)
}

func TestJoin_FIFOFairness(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	q := f.open(t, "1v1", "200")

	var matched [][]string
	for _, p := range []string{"A", "B", "C"} {
		res, err := f.coord.Join(ctx, q, p)
		require.NoError(t, err)
		if res.Matched {
			matched = append(matched, res.Group)
		}
	}
	require.Len(t, matched, 1)
	assert.Equal(t, []string{"A", "B"}, matched[0])

	v, err := f.coord.Snapshot(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, participantIDs(v.Members))

	res, err := f.coord.Join(ctx, q, "D")
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, []string{"C", "D"}, res.Group)
}

func TestJoin_TwoVersusTwoSplitsInJoinOrder(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	q := f.open(t, "2v2-misto", "300")

	var res JoinResult
	var err error
	for _, p := range []string{"A", "B", "C", "D"} {
		res, err = f.coord.Join(ctx, q, p)
		require.NoError(t, err)
	}
	require.True(t, res.Matched)
	assert.Equal(t, [][]string{{"A", "B"}, {"C", "D"}}, res.Bet.Teams)
}

func TestJoin_Rejections(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	q1 := f.open(t, "2v2", "400")
	q2 := f.open(t, "2v2", "401")

	_, err := f.coord.Join(ctx, "nope", "A")
	assert.ErrorIs(t, err, ErrUnknownQueue)

	_, err = f.coord.Join(ctx, q1, "A")
	require.NoError(t, err)
	_, err = f.coord.Join(ctx, q1, "A")
	assert.ErrorIs(t, err, ErrAlreadyQueued)
	_, err = f.coord.Join(ctx, q2, "A")
	assert.ErrorIs(t, err, ErrAlreadyQueued, "one queue per participant")

	require.NoError(t, f.gw.Update(ctx, func(s *storage.Snapshot) error {
		s.ActiveBets["b"] = wager.Bet{ID: "b", Status: wager.StatusMatched}
		s.Bound["Z"] = "b"
		return nil
	}))
	_, err = f.coord.Join(ctx, q1, "Z")
	assert.ErrorIs(t, err, ErrAlreadyInBet)
	assert.Equal(t, fault.KindConflict, fault.KindOf(err))
}

func TestLeave_NonMemberIsNoop(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	q := f.open(t, "2v2", "500")
	_, err := f.coord.Join(ctx, q, "A")
	require.NoError(t, err)

	var before int64
	f.gw.View(ctx, func(s *storage.Snapshot) { before = s.Revision })

	err = f.coord.Leave(ctx, q, "B")
	assert.ErrorIs(t, err, ErrNotInQueue)

	f.gw.View(ctx, func(s *storage.Snapshot) {
		assert.Equal(t, before, s.Revision, "a miss must not write")
		assert.Len(t, s.Queues[q], 1)
	})

	require.NoError(t, f.coord.Leave(ctx, q, "A"))
	v, err := f.coord.Snapshot(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, v.Members)
}

func TestLeaveAll(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	q := f.open(t, "2v2", "600")
	_, err := f.coord.Join(ctx, q, "A")
	require.NoError(t, err)

	left, err := f.coord.LeaveAll(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{q}, left)

	left, err = f.coord.LeaveAll(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestJoin_HandOffFailureRestoresGroupAtFront(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	q := f.open(t, "1v1", "700")

	_, err := f.coord.Join(ctx, q, "A")
	require.NoError(t, err)
	f.ledger.fail.Store(true)

	_, err = f.coord.Join(ctx, q, "B")
	require.Error(t, err)
	assert.Equal(t, fault.KindExternal, fault.KindOf(err))

	v, err := f.coord.Snapshot(ctx, q)
	require.NoError(t, err)
	require.Len(t, v.Members, 2)
	assert.Equal(t, "A", v.Members[0].ParticipantID)
	assert.Equal(t, "B", v.Members[1].ParticipantID)
	assert.Zero(t, v.Pending)

	// the next join retries the hand-off with the same head of the queue
	f.ledger.fail.Store(false)
	res, err := f.coord.Join(ctx, q, "C")
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, []string{"A", "B"}, res.Group)
	invariant(t, f.gw)
}

func TestJoin_HardCapEvictsOldest(t *testing.T) {
	f := newFixture(t, Options{HardCap: 1})
	ctx := context.Background()
	q := f.open(t, "2v2", "800")

	_, err := f.coord.Join(ctx, q, "A")
	require.NoError(t, err)
	res, err := f.coord.Join(ctx, q, "B")
	require.NoError(t, err)
	assert.Equal(t, "A", res.Evicted)
	assert.Equal(t, 1, res.Size)

	v, err := f.coord.Snapshot(ctx, q)
	require.NoError(t, err)
	require.Len(t, v.Members, 1)
	assert.Equal(t, "B", v.Members[0].ParticipantID)
}

func TestSweep_EvictsIdleMembers(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	q := f.open(t, "2v2", "900")

	_, err := f.coord.Join(ctx, q, "old")
	require.NoError(t, err)
	*f.clock = f.clock.Add(4 * time.Minute)
	_, err = f.coord.Join(ctx, q, "new")
	require.NoError(t, err)
	*f.clock = f.clock.Add(2 * time.Minute)

	n, err := f.coord.Sweep(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, err := f.coord.Snapshot(ctx, q)
	require.NoError(t, err)
	require.Len(t, v.Members, 1)
	assert.Equal(t, "new", v.Members[0].ParticipantID)

	n, err = f.coord.Sweep(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcile_RestoresPendingAndDropsBound(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	q := f.open(t, "2v2", "1000")
	at := *f.clock

	require.NoError(t, f.gw.Update(ctx, func(s *storage.Snapshot) error {
		s.Pending[q] = []wager.QueueMember{{ParticipantID: "P1", JoinedAt: at}, {ParticipantID: "P2", JoinedAt: at}}
		s.Queues[q] = []wager.QueueMember{{ParticipantID: "W", JoinedAt: at}, {ParticipantID: "X", JoinedAt: at}}
		s.ActiveBets["b"] = wager.Bet{ID: "b", Status: wager.StatusMatched}
		s.Bound["X"] = "b"
		return nil
	}))

	rep, err := f.coord.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Restored)
	assert.Equal(t, 1, rep.Dropped)

	v, err := f.coord.Snapshot(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2", "W"}, participantIDs(v.Members))
	assert.Zero(t, v.Pending)
	invariant(t, f.gw)

	rep, err = f.coord.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, rep)
}

func TestReconcile_KeepsMembersWaitingBehindRestoredGroup(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	q := f.open(t, "1v1", "1050")
	at := *f.clock

	// crash during a 1v1 hand-off while C was already waiting
	require.NoError(t, f.gw.Update(ctx, func(s *storage.Snapshot) error {
		s.Pending[q] = []wager.QueueMember{{ParticipantID: "A", JoinedAt: at}, {ParticipantID: "B", JoinedAt: at}}
		s.Queues[q] = []wager.QueueMember{{ParticipantID: "C", JoinedAt: at}}
		return nil
	}))

	rep, err := f.coord.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Restored: 2}, rep)

	v, err := f.coord.Snapshot(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, participantIDs(v.Members))

	// the restored group fails again: nobody is lost
	f.ledger.fail.Store(true)
	n, err := f.coord.MatchFull(ctx)
	require.Error(t, err)
	assert.Zero(t, n)
	v, err = f.coord.Snapshot(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, participantIDs(v.Members))
	assert.Zero(t, v.Pending)

	f.ledger.fail.Store(false)
	n, err = f.coord.MatchFull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, err = f.coord.Snapshot(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, participantIDs(v.Members))
	assert.Zero(t, v.Pending)
	invariant(t, f.gw)

	n, err = f.coord.MatchFull(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJoin_PublishesQueueChanged(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	q := f.open(t, "2v2", "1100")

	var got []events.QueueChanged
	var mu sync.Mutex
	defer events.Subscribe(f.coord.bus, func(ev events.QueueChanged) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})()

	_, err := f.coord.Join(ctx, q, "A")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, q, got[0].QueueID)
	assert.Len(t, got[0].Members, 1)
}

func TestLockRegistry_SingleLockPerQueue(t *testing.T) {
	r := NewLockRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := r.Lock(context.Background(), "q")
			if err == nil {
				unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, r.Len())

	unlock, err := r.Lock(context.Background(), "q")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Lock(ctx, "q")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRaceRandomOps(t *testing.T) {
	f := newFixture(t, Options{HardCap: DefaultHardCap, Now: time.Now})
	ctx := context.Background()
	qs := []string{f.open(t, "1v1", "r1"), f.open(t, "2v2", "r2")}

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(gid int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(gid)))
			for j := 0; j < 40; j++ {
				id := "P" + string(rune('A'+rng.Intn(26)))
				q := qs[rng.Intn(len(qs))]
				if rng.Intn(3) > 0 {
					_, _ = f.coord.Join(ctx, q, id)
				} else {
					_ = f.coord.Leave(ctx, q, id)
				}
			}
		}(g)
	}
	wg.Wait()

	invariant(t, f.gw)
}
