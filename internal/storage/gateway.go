package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/domain/fault"
)

// Gateway owns the in-memory snapshot and its durable copies.
//
// Locks, in acquisition order:
//   - writeMu serializes load-mutate-save cycles and the local write.
//   - mu guards the cache pointer only. A cached snapshot is never mutated
//     after it is published, so readers hold mu just long enough to copy the
//     pointer.
//   - mirrorMu orders mirror writes. It is taken after writeMu is released,
//     so a slow mirror only delays the caller whose write is in flight.
type Gateway struct {
	writeMu  sync.Mutex
	mu       sync.RWMutex
	mirrorMu sync.Mutex

	local  Backend
	mirror Backend // nil when no secondary backend is configured
	log    *zap.Logger

	cache       *Snapshot
	mirrored    int64 // last revision the mirror accepted; guarded by mirrorMu
	mirrorDirty atomic.Bool
}

func NewGateway(local, mirror Backend, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		local:  local,
		mirror: mirror,
		log:    log.With(zap.String("component", "storage")),
	}
}

// Load returns the best available snapshot and caches it. It never fails:
// mirror, then local copies, then an empty snapshot. Backends found empty or
// behind the chosen copy are rewritten with it. The result must be treated
// as read-only.
func (g *Gateway) Load(ctx context.Context) *Snapshot {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	snap := g.recover(ctx)
	g.publish(snap)
	return snap
}

func (g *Gateway) current() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cache
}

func (g *Gateway) publish(snap *Snapshot) {
	g.mu.Lock()
	g.cache = snap
	g.mu.Unlock()
}

// loaded returns the cache, recovering it on first use. Caller holds writeMu.
func (g *Gateway) loaded(ctx context.Context) *Snapshot {
	if snap := g.current(); snap != nil {
		return snap
	}
	snap := g.recover(ctx)
	g.publish(snap)
	return snap
}

func (g *Gateway) recover(ctx context.Context) *Snapshot {
	var fromMirror, fromLocal *Snapshot
	if g.mirror != nil {
		fromMirror = g.readFrom(ctx, g.mirror)
	}
	fromLocal = g.readFrom(ctx, g.local)

	var chosen *Snapshot
	switch {
	case fromMirror != nil && fromLocal != nil:
		chosen = fromMirror
		if fromLocal.Revision > fromMirror.Revision {
			chosen = fromLocal
		}
	case fromMirror != nil:
		chosen = fromMirror
	case fromLocal != nil:
		chosen = fromLocal
	default:
		g.log.Info("no stored snapshot, starting empty")
		return Empty()
	}

	data, err := chosen.Encode()
	if err != nil {
		g.log.Error("encode recovered snapshot", zap.Error(err))
		return chosen
	}
	if fromLocal == nil || fromLocal.Revision < chosen.Revision {
		g.log.Warn("healing local snapshot", zap.Int64("revision", chosen.Revision))
		if err := g.local.Write(ctx, data); err != nil {
			g.log.Error("heal local snapshot", zap.Error(err))
		}
	}
	if g.mirror == nil {
		return chosen
	}

	g.mirrorMu.Lock()
	defer g.mirrorMu.Unlock()
	if fromMirror != nil && fromMirror.Revision >= chosen.Revision {
		g.mirrored = fromMirror.Revision
		g.mirrorDirty.Store(false)
		return chosen
	}
	g.log.Warn("healing mirror snapshot",
		zap.String("backend", g.mirror.Name()), zap.Int64("revision", chosen.Revision))
	if err := g.writeMirror(ctx, chosen); err != nil {
		g.log.Error("heal mirror snapshot", zap.String("backend", g.mirror.Name()), zap.Error(err))
	}
	return chosen
}

func (g *Gateway) readFrom(ctx context.Context, b Backend) *Snapshot {
	data, err := b.Read(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		g.log.Warn("backend unavailable", zap.String("backend", b.Name()), zap.Error(err))
		return nil
	}
	snap, err := Decode(data)
	if err != nil {
		g.log.Error("backend holds an unreadable snapshot", zap.String("backend", b.Name()), zap.Error(err))
		return nil
	}
	return snap
}

// Save writes the snapshot locally (rotating the previous copies) and to the
// mirror. Only a local failure is returned; a mirror failure is logged and
// retried by Heal or the next write. snap must not be mutated afterwards.
func (g *Gateway) Save(ctx context.Context, snap *Snapshot) error {
	if err := g.commitSnapshot(ctx, snap); err != nil {
		return err
	}
	g.syncMirror(ctx, true)
	return nil
}

func (g *Gateway) commitSnapshot(ctx context.Context, snap *Snapshot) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if err := g.writeLocal(ctx, snap); err != nil {
		return err
	}
	g.publish(snap)
	return nil
}

func (g *Gateway) writeLocal(ctx context.Context, snap *Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return fault.Storage("encode snapshot", err)
	}
	if err := g.local.Write(ctx, data); err != nil {
		return fault.Storage("write snapshot", err)
	}
	return nil
}

// Update applies fn to a copy of the current snapshot and persists it
// locally. The cached snapshot is replaced only when fn and the local write
// both succeed. The mirror is written after the write lock is released.
func (g *Gateway) Update(ctx context.Context, fn func(s *Snapshot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := g.commit(ctx, fn); err != nil {
		return err
	}
	g.syncMirror(ctx, false)
	return nil
}

func (g *Gateway) commit(ctx context.Context, fn func(s *Snapshot) error) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	cur := g.loaded(ctx)
	work, err := cur.Clone()
	if err != nil {
		return fault.Storage("clone snapshot", err)
	}
	if err := fn(work); err != nil {
		return err
	}
	work.Revision = cur.Revision + 1
	if err := g.writeLocal(ctx, work); err != nil {
		return err
	}
	g.publish(work)
	return nil
}

// syncMirror pushes the newest cached snapshot to the mirror. Writers queue
// on mirrorMu; one that finds the mirror already at the cached revision has
// been covered by an earlier writer and returns.
func (g *Gateway) syncMirror(ctx context.Context, force bool) {
	if g.mirror == nil {
		return
	}
	g.mirrorMu.Lock()
	defer g.mirrorMu.Unlock()
	snap := g.current()
	if snap == nil || (!force && snap.Revision <= g.mirrored && !g.mirrorDirty.Load()) {
		return
	}
	if err := g.writeMirror(ctx, snap); err != nil {
		g.log.Error("mirror write failed", zap.String("backend", g.mirror.Name()), zap.Error(err))
	}
}

// writeMirror writes snap to the mirror. Caller holds mirrorMu.
func (g *Gateway) writeMirror(ctx context.Context, snap *Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return fault.Storage("encode snapshot", err)
	}
	if err := g.mirror.Write(ctx, data); err != nil {
		g.mirrorDirty.Store(true)
		return fault.External("mirror write", err)
	}
	g.mirrored = snap.Revision
	g.mirrorDirty.Store(false)
	return nil
}

// View runs fn against the cached snapshot. fn must not mutate it or call
// back into the gateway. View never waits on a backend write once the
// snapshot is loaded.
func (g *Gateway) View(ctx context.Context, fn func(s *Snapshot)) {
	snap := g.current()
	if snap == nil {
		g.writeMu.Lock()
		snap = g.loaded(ctx)
		g.writeMu.Unlock()
	}
	fn(snap)
}

// Heal pushes the cached snapshot to the mirror after an earlier failed write.
func (g *Gateway) Heal(ctx context.Context) error {
	if g.mirror == nil || !g.mirrorDirty.Load() {
		return nil
	}
	g.mirrorMu.Lock()
	defer g.mirrorMu.Unlock()
	snap := g.current()
	if snap == nil || !g.mirrorDirty.Load() {
		return nil
	}
	if err := g.writeMirror(ctx, snap); err != nil {
		return err
	}
	g.log.Info("mirror caught up", zap.String("backend", g.mirror.Name()), zap.Int64("revision", snap.Revision))
	return nil
}

// MirrorDirty reports whether the mirror is behind the local copy.
func (g *Gateway) MirrorDirty() bool { return g.mirrorDirty.Load() }
