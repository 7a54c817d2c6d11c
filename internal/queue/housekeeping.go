// Package queue - housekeeping.go
// Idle eviction and the boot-time repair of persisted queues.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
	"github.com/jose-valero/wager-queue-bot/internal/storage"
)

// Sweep evicts members that joined more than idle ago. Each queue is swept
// under its own lock; emptied queues are cleared, their panels kept.
func (c *Coordinator) Sweep(ctx context.Context, idle time.Duration) (int, error) {
	var ids []string
	c.gw.View(ctx, func(s *storage.Snapshot) {
		for qid, ms := range s.Queues {
			if len(ms) > 0 {
				ids = append(ids, qid)
			}
		}
	})
	sort.Strings(ids)

	total := 0
	var errs []error
	for _, qid := range ids {
		evicted, err := c.sweepQueue(ctx, qid, idle)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", qid, err))
			continue
		}
		if len(evicted) > 0 {
			total += len(evicted)
			c.log.Info("idle members evicted", zap.String("queue", qid), zap.Strings("members", evicted))
			c.publish(ctx, qid)
		}
	}
	return total, errors.Join(errs...)
}

func (c *Coordinator) sweepQueue(ctx context.Context, queueID string, idle time.Duration) ([]string, error) {
	unlock, err := c.locks.Lock(ctx, queueID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cutoff := c.now().Add(-idle)
	var evicted []string
	err = c.gw.Update(ctx, func(s *storage.Snapshot) error {
		evicted = nil
		members := s.Queues[queueID]
		kept := make([]wager.QueueMember, 0, len(members))
		for _, m := range members {
			if m.JoinedAt.Before(cutoff) {
				evicted = append(evicted, m.ParticipantID)
				continue
			}
			kept = append(kept, m)
		}
		if len(evicted) == 0 {
			return errUnchanged
		}
		s.Queues[queueID] = kept
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return evicted, nil
}

// Reconcile repairs persisted queues once at boot, before any event is
// handled. Members left pending by an interrupted hand-off go back to the
// front of their queue. Members bound to an active bet or duplicated across
// queues are dropped. Nobody who was validly waiting is removed: a queue left
// holding a full group is matched by MatchFull.
func (c *Coordinator) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport
	err := c.gw.Update(ctx, func(s *storage.Snapshot) error {
		rep = ReconcileReport{}

		pendingIDs := make([]string, 0, len(s.Pending))
		for qid := range s.Pending {
			pendingIDs = append(pendingIDs, qid)
		}
		sort.Strings(pendingIDs)
		for _, qid := range pendingIDs {
			var back []wager.QueueMember
			for _, m := range s.Pending[qid] {
				if boundToActive(s, m.ParticipantID) {
					rep.Dropped++
					continue
				}
				back = append(back, m)
			}
			rep.Restored += len(back)
			s.Queues[qid] = restoreFront(s.Queues[qid], back)
			delete(s.Pending, qid)
		}

		queueIDs := make([]string, 0, len(s.Queues))
		for qid := range s.Queues {
			queueIDs = append(queueIDs, qid)
		}
		sort.Strings(queueIDs)

		seen := map[string]bool{}
		for _, qid := range queueIDs {
			members := s.Queues[qid]
			kept := make([]wager.QueueMember, 0, len(members))
			for _, m := range members {
				if seen[m.ParticipantID] || boundToActive(s, m.ParticipantID) {
					rep.Dropped++
					continue
				}
				seen[m.ParticipantID] = true
				kept = append(kept, m)
			}
			s.Queues[qid] = kept
		}
		if rep == (ReconcileReport{}) {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return rep, nil
	}
	if err != nil {
		return ReconcileReport{}, err
	}
	c.log.Info("queues reconciled",
		zap.Int("restored", rep.Restored), zap.Int("dropped", rep.Dropped))
	return rep, nil
}

// MatchFull hands off every full group still waiting, such as a group put
// back by Reconcile in front of later members. A failed hand-off leaves the
// queue as it was; the next Join or sweep retries it.
func (c *Coordinator) MatchFull(ctx context.Context) (int, error) {
	var ids []string
	c.gw.View(ctx, func(s *storage.Snapshot) {
		for qid, ms := range s.Queues {
			if panel, ok := s.Panels[qid]; ok && panel.Mode.Valid() && len(ms) >= panel.Mode.Capacity() {
				ids = append(ids, qid)
			}
		}
	})
	sort.Strings(ids)

	total := 0
	var errs []error
	for _, qid := range ids {
		n, err := c.matchQueue(ctx, qid)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("match %s: %w", qid, err))
		}
		if n > 0 || err != nil {
			c.publish(ctx, qid)
		}
	}
	if total > 0 {
		c.log.Info("waiting groups matched", zap.Int("groups", total))
	}
	return total, errors.Join(errs...)
}

func (c *Coordinator) matchQueue(ctx context.Context, queueID string) (int, error) {
	unlock, err := c.locks.Lock(ctx, queueID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	matched := 0
	for {
		var match *Match
		err := c.gw.Update(ctx, func(s *storage.Snapshot) error {
			panel, ok := s.Panels[queueID]
			if !ok {
				return errUnchanged
			}
			var err error
			if match, err = popGroup(s, queueID, panel); err != nil {
				return err
			}
			if match == nil {
				return errUnchanged
			}
			return nil
		})
		if errors.Is(err, errUnchanged) {
			return matched, nil
		}
		if err != nil {
			return matched, err
		}
		if _, err := c.handOff(ctx, queueID, *match); err != nil {
			return matched, err
		}
		matched++
	}
}
