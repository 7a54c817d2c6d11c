// Package mediator keeps the bounded per-server FIFO of mediators waiting to
// be assigned to new bets.
package mediator

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/domain/events"
	"github.com/jose-valero/wager-queue-bot/internal/domain/fault"
	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
	"github.com/jose-valero/wager-queue-bot/internal/storage"
)

const DefaultCapacity = 10

var (
	ErrPoolFull        = fault.New(fault.KindConflict, "the mediator pool is full")
	ErrPoolEmpty       = fault.New(fault.KindNotFound, "no mediator available")
	ErrNotEnrolled     = fault.New(fault.KindNotFound, "you are not in the mediator pool")
	ErrContactRequired = fault.New(fault.KindValidation, "a contact key is required")
)

var errUnchanged = errors.New("unchanged")

type Options struct {
	Capacity int
	Now      func() time.Time
}

// Pool order is slice order: index 0 is the oldest entry and the next one
// handed out by TakeOldest.
type Pool struct {
	gw       *storage.Gateway
	bus      *events.Bus
	log      *zap.Logger
	capacity int
	now      func() time.Time
}

func NewPool(gw *storage.Gateway, bus *events.Bus, log *zap.Logger, opts Options) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pool{
		gw:       gw,
		bus:      bus,
		log:      log.With(zap.String("component", "mediator")),
		capacity: opts.Capacity,
		now:      opts.Now,
	}
}

func (p *Pool) Capacity() int { return p.capacity }

// Enroll appends the mediator. An already enrolled mediator keeps its place
// and only has its contact updated. An empty contact falls back to the one
// remembered from earlier enrollments.
func (p *Pool) Enroll(ctx context.Context, serverID, mediatorID, contact string) (updated bool, err error) {
	contact = strings.TrimSpace(contact)
	err = p.gw.Update(ctx, func(s *storage.Snapshot) error {
		updated = false
		if contact == "" {
			contact = s.Contacts[mediatorID]
		}
		if contact == "" {
			return ErrContactRequired
		}
		entries := s.Pools[serverID]
		if i := indexOf(entries, mediatorID); i >= 0 {
			entries[i].Contact = contact
			updated = true
		} else {
			if len(entries) >= p.capacity {
				return ErrPoolFull
			}
			entries = append(entries, wager.MediatorEntry{MediatorID: mediatorID, Contact: contact, EnqueuedAt: p.now()})
		}
		s.Pools[serverID] = entries
		s.Contacts[mediatorID] = contact
		return nil
	})
	if err != nil {
		return false, err
	}
	p.log.Info("mediator enrolled",
		zap.String("server", serverID), zap.String("mediator", mediatorID), zap.Bool("updated", updated))
	p.publish(ctx, serverID)
	return updated, nil
}

func (p *Pool) Withdraw(ctx context.Context, serverID, mediatorID string) error {
	err := p.gw.Update(ctx, func(s *storage.Snapshot) error {
		entries := s.Pools[serverID]
		i := indexOf(entries, mediatorID)
		if i < 0 {
			return ErrNotEnrolled
		}
		s.Pools[serverID] = append(entries[:i:i], entries[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}
	p.log.Info("mediator withdrew", zap.String("server", serverID), zap.String("mediator", mediatorID))
	p.publish(ctx, serverID)
	return nil
}

// TakeOldest removes and returns the earliest entry.
func (p *Pool) TakeOldest(ctx context.Context, serverID string) (wager.MediatorEntry, error) {
	var taken wager.MediatorEntry
	err := p.gw.Update(ctx, func(s *storage.Snapshot) error {
		entries := s.Pools[serverID]
		if len(entries) == 0 {
			return ErrPoolEmpty
		}
		taken = entries[0]
		s.Pools[serverID] = append([]wager.MediatorEntry(nil), entries[1:]...)
		return nil
	})
	if err != nil {
		return wager.MediatorEntry{}, err
	}
	p.publish(ctx, serverID)
	return taken, nil
}

// RequeueAtEnd puts the mediator at the back with a fresh timestamp, moving it
// there if it is already enrolled.
func (p *Pool) RequeueAtEnd(ctx context.Context, serverID, mediatorID, contact string) error {
	err := p.gw.Update(ctx, func(s *storage.Snapshot) error {
		if contact == "" {
			contact = s.Contacts[mediatorID]
		}
		entries := s.Pools[serverID]
		if i := indexOf(entries, mediatorID); i >= 0 {
			entries = append(entries[:i:i], entries[i+1:]...)
		}
		if len(entries) >= p.capacity {
			return ErrPoolFull
		}
		s.Pools[serverID] = append(entries, wager.MediatorEntry{MediatorID: mediatorID, Contact: contact, EnqueuedAt: p.now()})
		if contact != "" {
			s.Contacts[mediatorID] = contact
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.log.Info("mediator requeued", zap.String("server", serverID), zap.String("mediator", mediatorID))
	p.publish(ctx, serverID)
	return nil
}

// List returns a copy of the pool in priority order.
func (p *Pool) List(ctx context.Context, serverID string) []wager.MediatorEntry {
	var out []wager.MediatorEntry
	p.gw.View(ctx, func(s *storage.Snapshot) {
		out = append(out, s.Pools[serverID]...)
	})
	return out
}

// SavedContact is the last contact key the mediator used anywhere.
func (p *Pool) SavedContact(ctx context.Context, mediatorID string) (string, bool) {
	var (
		c  string
		ok bool
	)
	p.gw.View(ctx, func(s *storage.Snapshot) { c, ok = s.Contacts[mediatorID] })
	return c, ok && c != ""
}

// Sweep drops entries enqueued more than idle ago, in every server.
func (p *Pool) Sweep(ctx context.Context, idle time.Duration) (int, error) {
	cutoff := p.now().Add(-idle)
	touched := map[string][]string{}
	err := p.gw.Update(ctx, func(s *storage.Snapshot) error {
		clear(touched)
		for serverID, entries := range s.Pools {
			kept := entries[:0:0]
			for _, e := range entries {
				if e.EnqueuedAt.Before(cutoff) {
					touched[serverID] = append(touched[serverID], e.MediatorID)
					continue
				}
				kept = append(kept, e)
			}
			if len(kept) != len(entries) {
				s.Pools[serverID] = kept
			}
		}
		if len(touched) == 0 {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	servers := make([]string, 0, len(touched))
	for id := range touched {
		servers = append(servers, id)
	}
	sort.Strings(servers)
	n := 0
	for _, id := range servers {
		n += len(touched[id])
		p.log.Info("idle mediators removed", zap.String("server", id), zap.Strings("mediators", touched[id]))
		p.publish(ctx, id)
	}
	return n, nil
}

func (p *Pool) publish(ctx context.Context, serverID string) {
	if p.bus == nil {
		return
	}
	events.Publish(p.bus, events.PoolChanged{ServerID: serverID, Entries: p.List(ctx, serverID)})
}

func indexOf(entries []wager.MediatorEntry, mediatorID string) int {
	for i, e := range entries {
		if e.MediatorID == mediatorID {
			return i
		}
	}
	return -1
}
