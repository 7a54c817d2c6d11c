package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/domain/fault"
	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
)

// memBackend is an in-memory mirror whose availability can be toggled.
type memBackend struct {
	mu   sync.Mutex
	data []byte
	down bool
}

func (m *memBackend) Name() string { return "mem" }

func (m *memBackend) Read(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errors.New("connection refused")
	}
	if m.data == nil {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), m.data...), nil
}

func (m *memBackend) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errors.New("connection refused")
	}
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memBackend) setDown(v bool) {
	m.mu.Lock()
	m.down = v
	m.mu.Unlock()
}

func sampleSnapshot(rev int64) *Snapshot {
	s := Empty()
	s.Revision = rev
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mode := wager.MustMode("1v1-mob")
	s.Queues["1v1-mob_42"] = []wager.QueueMember{{ParticipantID: "C", JoinedAt: at}}
	s.Panels["1v1-mob_42"] = wager.PanelMeta{
		QueueID: "1v1-mob_42", ServerID: "S", ChannelID: "ch", MessageID: "42",
		Mode: mode, Stake: decimal.NewFromInt(100), Fee: decimal.NewFromInt(10),
		Currency: wager.CurrencySonhos,
	}
	s.ActiveBets["b1"] = wager.Bet{
		ID: "b1", ServerID: "S", QueueID: "1v1-mob_42", Mode: mode,
		Teams: [][]string{{"A"}, {"B"}}, Stake: decimal.NewFromInt(100), Fee: decimal.NewFromInt(10),
		Currency: wager.CurrencySonhos, Confirmed: []bool{false, false},
		Status: wager.StatusMatched, CreatedAt: at, UpdatedAt: at, Version: 1,
	}
	s.Bound["A"] = "b1"
	s.Bound["B"] = "b1"
	s.Pools["S"] = []wager.MediatorEntry{{MediatorID: "M1", Contact: "pix-1", EnqueuedAt: at}}
	s.Contacts["M1"] = "pix-1"
	return s
}

func newGateway(t *testing.T, mirror Backend) (*Gateway, *FileBackend) {
	t.Helper()
	fb, _ := newFileBackend(t)
	return NewGateway(fb, mirror, zap.NewNop()), fb
}

func TestGateway_LoadEmptyWhenNothingStored(t *testing.T) {
	g, _ := newGateway(t, nil)
	snap := g.Load(context.Background())
	require.NotNil(t, snap)
	assert.Empty(t, snap.Queues)
	assert.Empty(t, snap.ActiveBets)
	assert.NotNil(t, snap.History)
}

func TestGateway_SaveOfLoadIsByteIdentical(t *testing.T) {
	ctx := context.Background()
	g, fb := newGateway(t, nil)
	require.NoError(t, g.Save(ctx, sampleSnapshot(3)))
	before, err := os.ReadFile(fb.Path())
	require.NoError(t, err)

	fresh := NewGateway(fb, nil, zap.NewNop())
	require.NoError(t, fresh.Save(ctx, fresh.Load(ctx)))

	after, err := os.ReadFile(fb.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestGateway_PrefersMirrorAndHealsLocal(t *testing.T) {
	ctx := context.Background()
	mirror := &memBackend{}
	data, err := sampleSnapshot(5).Encode()
	require.NoError(t, err)
	mirror.data = data

	g, fb := newGateway(t, mirror)
	snap := g.Load(ctx)
	assert.Equal(t, int64(5), snap.Revision)
	assert.Contains(t, snap.ActiveBets, "b1")

	local, err := fb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(local))
}

func TestGateway_NewerLocalWinsAndHealsMirror(t *testing.T) {
	ctx := context.Background()
	mirror := &memBackend{}
	old, err := Empty().Encode()
	require.NoError(t, err)
	mirror.data = old

	g, fb := newGateway(t, mirror)
	newer, err := sampleSnapshot(7).Encode()
	require.NoError(t, err)
	require.NoError(t, fb.Write(ctx, newer))

	snap := g.Load(ctx)
	assert.Equal(t, int64(7), snap.Revision)
	assert.Equal(t, string(newer), string(mirror.data))
}

func TestGateway_MirrorDownFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	mirror := &memBackend{}
	g, fb := newGateway(t, mirror)
	require.NoError(t, g.Save(ctx, sampleSnapshot(2)))

	mirror.setDown(true)
	fresh := NewGateway(fb, mirror, zap.NewNop())
	snap := fresh.Load(ctx)
	assert.Equal(t, int64(2), snap.Revision)
}

func TestGateway_MirrorWriteFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	mirror := &memBackend{down: true}
	g, _ := newGateway(t, mirror)
	g.Load(ctx)

	err := g.Update(ctx, func(s *Snapshot) error {
		s.Contacts["M9"] = "pix-9"
		return nil
	})
	require.NoError(t, err)
	assert.True(t, g.MirrorDirty())

	mirror.setDown(false)
	require.NoError(t, g.Heal(ctx))
	assert.False(t, g.MirrorDirty())

	healed, err := Decode(mirror.data)
	require.NoError(t, err)
	assert.Equal(t, "pix-9", healed.Contacts["M9"])
}

// stallingBackend holds every Write until release is closed.
type stallingBackend struct {
	memBackend
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *stallingBackend) Write(ctx context.Context, data []byte) error {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.memBackend.Write(ctx, data)
}

func TestGateway_SlowMirrorDoesNotBlockReaders(t *testing.T) {
	ctx := context.Background()
	mirror := &stallingBackend{entered: make(chan struct{}), release: make(chan struct{})}
	g, _ := newGateway(t, mirror)
	g.Load(ctx)

	done := make(chan error, 1)
	go func() {
		done <- g.Update(ctx, func(s *Snapshot) error {
			s.Contacts["M1"] = "pix-1"
			return nil
		})
	}()
	<-mirror.entered

	viewed := make(chan int64, 1)
	go g.View(ctx, func(s *Snapshot) { viewed <- s.Revision })
	select {
	case rev := <-viewed:
		assert.Equal(t, int64(1), rev, "local commit is visible before the mirror answers")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("View waited on the mirror write")
	}

	// a second writer commits locally while the first mirror write is stuck
	second := make(chan error, 1)
	go func() {
		second <- g.Update(ctx, func(s *Snapshot) error {
			s.Contacts["M2"] = "pix-2"
			return nil
		})
	}()
	require.Eventually(t, func() bool {
		var rev int64
		g.View(ctx, func(s *Snapshot) { rev = s.Revision })
		return rev == 2
	}, time.Second, 10*time.Millisecond)

	close(mirror.release)
	require.NoError(t, <-done)
	require.NoError(t, <-second)

	stored, err := Decode(mirror.data)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Revision)
	assert.False(t, g.MirrorDirty())
}

func TestGateway_UpdateKeepsCacheOnError(t *testing.T) {
	ctx := context.Background()
	g, _ := newGateway(t, nil)
	require.NoError(t, g.Save(ctx, sampleSnapshot(1)))

	boom := fault.New(fault.KindConflict, "boom")
	err := g.Update(ctx, func(s *Snapshot) error {
		delete(s.ActiveBets, "b1")
		return boom
	})
	require.ErrorIs(t, err, boom)

	g.View(ctx, func(s *Snapshot) {
		assert.Contains(t, s.ActiveBets, "b1")
		assert.Equal(t, int64(1), s.Revision)
	})
}

func TestGateway_UpdateBumpsRevision(t *testing.T) {
	ctx := context.Background()
	g, _ := newGateway(t, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Update(ctx, func(*Snapshot) error { return nil }))
	}
	g.View(ctx, func(s *Snapshot) { assert.Equal(t, int64(3), s.Revision) })
}

func TestGateway_ConcurrentUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	g, _ := newGateway(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Update(ctx, func(s *Snapshot) error {
				s.Contacts["counter"] += "x"
				return nil
			})
		}()
	}
	wg.Wait()

	g.View(ctx, func(s *Snapshot) {
		assert.Len(t, s.Contacts["counter"], 20)
		assert.Equal(t, int64(20), s.Revision)
	})
}

func TestSQLiteBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	sb, err := OpenSQLite(t.TempDir() + "/mirror.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sb.Close() })

	_, err = sb.Read(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	data, err := sampleSnapshot(4).Encode()
	require.NoError(t, err)
	require.NoError(t, sb.Write(ctx, data))
	require.NoError(t, sb.Write(ctx, data))

	got, err := sb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(got))
}

func TestGateway_SQLiteMirrorPreferred(t *testing.T) {
	ctx := context.Background()
	sb, err := OpenSQLite(t.TempDir() + "/mirror.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sb.Close() })

	g, fb := newGateway(t, sb)
	require.NoError(t, g.Save(ctx, sampleSnapshot(9)))
	require.NoError(t, os.Remove(fb.Path()))

	snap := NewGateway(fb, sb, zap.NewNop()).Load(ctx)
	assert.Equal(t, int64(9), snap.Revision)
}

func TestOpenMirror_UnknownKind(t *testing.T) {
	_, closer, err := OpenMirror(context.Background(), MirrorOptions{Kind: "mongo"})
	require.Error(t, err)
	require.NotNil(t, closer)
	assert.NoError(t, closer())
}

func TestRedisBackend_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	rb, err := OpenRedis(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rb.Close() })
	rb.key = "wagerbot:test:" + t.Name()
	t.Cleanup(func() { rb.client.Del(context.Background(), rb.key) })

	_, err = rb.Read(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	require.NoError(t, rb.Write(ctx, []byte(`{"revision":1}`)))
	got, err := rb.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"revision":1}`, string(got))
}

func TestPostgresBackend_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pb, err := OpenPostgres(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pb.Close() })

	data, err := sampleSnapshot(11).Encode()
	require.NoError(t, err)
	require.NoError(t, pb.Write(ctx, data))
	got, err := pb.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(got))
}
