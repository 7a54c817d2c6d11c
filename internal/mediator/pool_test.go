package mediator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/domain/events"
	"github.com/jose-valero/wager-queue-bot/internal/domain/fault"
	"github.com/jose-valero/wager-queue-bot/internal/storage"
)

func newPool(t *testing.T, clock *time.Time) *Pool {
	t.Helper()
	fb, err := storage.NewFileBackend(t.TempDir(), "bets", zap.NewNop())
	require.NoError(t, err)
	gw := storage.NewGateway(fb, nil, zap.NewNop())
	gw.Load(context.Background())
	return NewPool(gw, events.NewBus(zap.NewNop()), zap.NewNop(), Options{
		Now: func() time.Time { return *clock },
	})
}

func ids(p *Pool, serverID string) []string {
	var out []string
	for _, e := range p.List(context.Background(), serverID) {
		out = append(out, e.MediatorID)
	}
	return out
}

func TestPool_TakeOldestThenRequeue(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	p := newPool(t, &now)
	ctx := context.Background()

	_, err := p.Enroll(ctx, "S", "M1", "pix-1")
	require.NoError(t, err)
	_, err = p.Enroll(ctx, "S", "M2", "pix-2")
	require.NoError(t, err)

	got, err := p.TakeOldest(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "M1", got.MediatorID)
	assert.Equal(t, "pix-1", got.Contact)

	// M1's bet was cancelled
	require.NoError(t, p.RequeueAtEnd(ctx, "S", "M1", got.Contact))
	assert.Equal(t, []string{"M2", "M1"}, ids(p, "S"))

	got, err = p.TakeOldest(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "M2", got.MediatorID)
	got, err = p.TakeOldest(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "M1", got.MediatorID)

	_, err = p.TakeOldest(ctx, "S")
	assert.ErrorIs(t, err, ErrPoolEmpty)
}

func TestPool_EqualTimestampsKeepEnrollOrder(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	p := newPool(t, &now)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := p.Enroll(ctx, "S", fmt.Sprintf("M%d", i), "pix")
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"M1", "M2", "M3"}, ids(p, "S"))
}

func TestPool_CapacityAndReenroll(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	p := newPool(t, &now)
	ctx := context.Background()

	for i := 1; i <= DefaultCapacity; i++ {
		_, err := p.Enroll(ctx, "S", fmt.Sprintf("M%d", i), fmt.Sprintf("pix-%d", i))
		require.NoError(t, err)
	}
	_, err := p.Enroll(ctx, "S", "M11", "pix-11")
	require.ErrorIs(t, err, ErrPoolFull)
	assert.Equal(t, fault.KindConflict, fault.KindOf(err))

	updated, err := p.Enroll(ctx, "S", "M3", "pix-new")
	require.NoError(t, err)
	assert.True(t, updated)

	entries := p.List(ctx, "S")
	require.Len(t, entries, DefaultCapacity)
	assert.Equal(t, "M3", entries[2].MediatorID, "re-enroll keeps the position")
	assert.Equal(t, "pix-new", entries[2].Contact)

	// another server has its own pool
	_, err = p.Enroll(ctx, "S2", "M11", "pix-11")
	assert.NoError(t, err)
}

func TestPool_RequeueRespectsCapacity(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	p := newPool(t, &now)
	ctx := context.Background()
	for i := 1; i <= DefaultCapacity; i++ {
		_, err := p.Enroll(ctx, "S", fmt.Sprintf("M%d", i), "pix")
		require.NoError(t, err)
	}
	assert.ErrorIs(t, p.RequeueAtEnd(ctx, "S", "X", "pix-x"), ErrPoolFull)

	// an enrolled mediator can always move to the back
	require.NoError(t, p.RequeueAtEnd(ctx, "S", "M1", ""))
	got := ids(p, "S")
	assert.Equal(t, "M1", got[len(got)-1])
}

func TestPool_WithdrawAndContacts(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	p := newPool(t, &now)
	ctx := context.Background()

	_, err := p.Enroll(ctx, "S", "M1", "")
	assert.ErrorIs(t, err, ErrContactRequired)

	_, err = p.Enroll(ctx, "S", "M1", " pix-1 ")
	require.NoError(t, err)
	require.NoError(t, p.Withdraw(ctx, "S", "M1"))
	assert.ErrorIs(t, p.Withdraw(ctx, "S", "M1"), ErrNotEnrolled)

	c, ok := p.SavedContact(ctx, "M1")
	require.True(t, ok)
	assert.Equal(t, "pix-1", c)

	// the remembered contact is used when none is given
	_, err = p.Enroll(ctx, "S", "M1", "")
	require.NoError(t, err)
	assert.Equal(t, "pix-1", p.List(ctx, "S")[0].Contact)
}

func TestPool_SweepDropsIdle(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	p := newPool(t, &now)
	ctx := context.Background()

	_, err := p.Enroll(ctx, "S", "old", "pix")
	require.NoError(t, err)
	now = now.Add(90 * time.Minute)
	_, err = p.Enroll(ctx, "S", "fresh", "pix")
	require.NoError(t, err)
	now = now.Add(45 * time.Minute)

	var changed []events.PoolChanged
	defer events.Subscribe(p.bus, func(ev events.PoolChanged) { changed = append(changed, ev) })()

	n, err := p.Sweep(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"fresh"}, ids(p, "S"))
	require.Len(t, changed, 1)
	assert.Equal(t, "S", changed[0].ServerID)

	n, err = p.Sweep(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}
