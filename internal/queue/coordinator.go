package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/domain/events"
	"github.com/jose-valero/wager-queue-bot/internal/domain/fault"
	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
	"github.com/jose-valero/wager-queue-bot/internal/storage"
)

// DefaultHardCap is the waiting-member ceiling after which the oldest member
// is evicted on the next join.
const DefaultHardCap = 10

type Options struct {
	HardCap int // <= 0 disables the cap
	Now     func() time.Time
}

// Coordinator owns queue membership. All mutations of one queue run under
// that queue's lock; the hand-off of a full group to the Matcher happens
// inside the same critical section.
type Coordinator struct {
	gw      *storage.Gateway
	locks   *LockRegistry
	matcher Matcher
	bus     *events.Bus
	log     *zap.Logger
	hardCap int
	now     func() time.Time
}

func NewCoordinator(gw *storage.Gateway, matcher Matcher, bus *events.Bus, log *zap.Logger, opts Options) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		gw:      gw,
		locks:   NewLockRegistry(),
		matcher: matcher,
		bus:     bus,
		log:     log.With(zap.String("component", "queue")),
		hardCap: opts.HardCap,
		now:     opts.Now,
	}
}

// Open registers (or refreshes) the queue behind a panel. Members already
// waiting are kept.
func (c *Coordinator) Open(ctx context.Context, meta wager.PanelMeta) (wager.PanelMeta, error) {
	if !meta.Mode.Valid() {
		return meta, wager.ErrInvalidMode
	}
	if err := wager.ValidateTerms(meta.Stake, meta.Fee); err != nil {
		return meta, err
	}
	cur, ok := wager.ParseCurrency(string(meta.Currency))
	if !ok {
		return meta, wager.ErrInvalidCurrency
	}
	meta.Currency = cur
	if meta.MessageID == "" {
		return meta, fault.Validationf("panel message id is required")
	}
	if meta.QueueID == "" {
		meta.QueueID = wager.QueueID(meta.Mode, meta.MessageID)
	}

	unlock, err := c.locks.Lock(ctx, meta.QueueID)
	if err != nil {
		return meta, err
	}
	defer unlock()

	err = c.gw.Update(ctx, func(s *storage.Snapshot) error {
		s.Panels[meta.QueueID] = meta
		if _, ok := s.Queues[meta.QueueID]; !ok {
			s.Queues[meta.QueueID] = []wager.QueueMember{}
		}
		return nil
	})
	if err != nil {
		return meta, err
	}
	c.log.Info("queue opened", zap.String("queue", meta.QueueID), zap.String("server", meta.ServerID))
	return meta, nil
}

// Join appends the participant and, once the queue holds a full group, pops
// the earliest members and hands them to the Matcher.
func (c *Coordinator) Join(ctx context.Context, queueID, participantID string) (JoinResult, error) {
	res, err := c.join(ctx, queueID, participantID)
	if err == nil || fault.Is(err, fault.KindExternal) || fault.Is(err, fault.KindStorage) {
		c.publish(ctx, queueID)
	}
	return res, err
}

func (c *Coordinator) join(ctx context.Context, queueID, participantID string) (JoinResult, error) {
	unlock, err := c.locks.Lock(ctx, queueID)
	if err != nil {
		return JoinResult{}, err
	}
	defer unlock()

	var (
		res   JoinResult
		match *Match
	)
	err = c.gw.Update(ctx, func(s *storage.Snapshot) error {
		res, match = JoinResult{}, nil

		panel, ok := s.Panels[queueID]
		if !ok {
			return ErrUnknownQueue
		}
		if _, queued := s.QueuedIn(participantID); queued {
			return ErrAlreadyQueued
		}
		if boundToActive(s, participantID) {
			return ErrAlreadyInBet
		}

		members := copyMembers(s.Queues[queueID])
		if c.hardCap > 0 && len(members) >= c.hardCap {
			res.Evicted = members[0].ParticipantID
			members = members[1:]
		}
		s.Queues[queueID] = append(members, wager.QueueMember{ParticipantID: participantID, JoinedAt: c.now()})

		var err error
		if match, err = popGroup(s, queueID, panel); err != nil {
			return err
		}
		res.Size = len(s.Queues[queueID])
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}
	if res.Evicted != "" {
		c.log.Warn("hard cap reached, oldest member evicted",
			zap.String("queue", queueID), zap.String("evicted", res.Evicted), zap.Int("cap", c.hardCap))
	}
	if match == nil {
		return res, nil
	}

	bet, err := c.handOff(ctx, queueID, *match)
	if err != nil {
		return JoinResult{}, err
	}
	res.Matched, res.Group, res.Bet = true, match.Group, bet
	return res, nil
}

// handOff gives a popped group to the Matcher. Caller holds the queue lock.
// On failure the group goes back to the front of the queue.
func (c *Coordinator) handOff(ctx context.Context, queueID string, m Match) (wager.Bet, error) {
	bet, err := c.matcher.CreateMatch(ctx, m)
	if err != nil {
		c.log.Error("hand-off failed, group restored",
			zap.String("queue", queueID), zap.Strings("group", m.Group), zap.Error(err))
		c.rollback(ctx, queueID, m.Group)
		if fault.KindOf(err) == fault.KindUnknown {
			err = fault.External("create match", err)
		}
		return wager.Bet{}, err
	}
	c.log.Info("group matched", zap.String("queue", queueID), zap.Strings("group", m.Group), zap.String("bet", bet.ID))
	return bet, nil
}

// rollback puts the popped group back at the front of the queue. Members the
// ledger already bound stay out.
func (c *Coordinator) rollback(ctx context.Context, queueID string, group []string) {
	err := c.gw.Update(context.WithoutCancel(ctx), func(s *storage.Snapshot) error {
		var back, keep []wager.QueueMember
		for _, m := range s.Pending[queueID] {
			if !slices.Contains(group, m.ParticipantID) {
				keep = append(keep, m)
				continue
			}
			if !boundToActive(s, m.ParticipantID) {
				back = append(back, m)
			}
		}
		if len(keep) == 0 {
			delete(s.Pending, queueID)
		} else {
			s.Pending[queueID] = keep
		}
		s.Queues[queueID] = restoreFront(s.Queues[queueID], back)
		return nil
	})
	if err != nil {
		// Reconcile restores leftover pending members at the next boot.
		c.log.Error("rollback not persisted", zap.String("queue", queueID), zap.Error(err))
	}
}

// Leave removes the participant. A miss returns ErrNotInQueue and writes nothing.
func (c *Coordinator) Leave(ctx context.Context, queueID, participantID string) error {
	if err := c.leave(ctx, queueID, participantID); err != nil {
		return err
	}
	c.publish(ctx, queueID)
	return nil
}

func (c *Coordinator) leave(ctx context.Context, queueID, participantID string) error {
	unlock, err := c.locks.Lock(ctx, queueID)
	if err != nil {
		return err
	}
	defer unlock()

	return c.gw.Update(ctx, func(s *storage.Snapshot) error {
		if _, ok := s.Panels[queueID]; !ok {
			return ErrUnknownQueue
		}
		members := s.Queues[queueID]
		i := locateMember(members, participantID)
		if i < 0 {
			return ErrNotInQueue
		}
		s.Queues[queueID] = append(copyMembers(members[:i]), members[i+1:]...)
		return nil
	})
}

// LeaveAll removes the participant from every queue and returns the queue ids
// it left.
func (c *Coordinator) LeaveAll(ctx context.Context, participantID string) ([]string, error) {
	var ids []string
	c.gw.View(ctx, func(s *storage.Snapshot) {
		for qid, ms := range s.Queues {
			if locateMember(ms, participantID) >= 0 {
				ids = append(ids, qid)
			}
		}
	})
	sort.Strings(ids)

	left := make([]string, 0, len(ids))
	for _, qid := range ids {
		err := c.Leave(ctx, qid, participantID)
		if errors.Is(err, ErrNotInQueue) || errors.Is(err, ErrUnknownQueue) {
			continue
		}
		if err != nil {
			return left, err
		}
		left = append(left, qid)
	}
	return left, nil
}

// Clear empties every queue of the server, each under its own lock. Panels
// stay registered. It returns how many members were removed.
func (c *Coordinator) Clear(ctx context.Context, serverID string) (int, error) {
	total := 0
	var errs []error
	for _, p := range c.Panels(ctx, serverID) {
		n, err := c.clearQueue(ctx, p.QueueID)
		if err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", p.QueueID, err))
			continue
		}
		total += n
		c.publish(ctx, p.QueueID)
	}
	if total > 0 {
		c.log.Info("queues cleared", zap.String("server", serverID), zap.Int("members", total))
	}
	return total, errors.Join(errs...)
}

func (c *Coordinator) clearQueue(ctx context.Context, queueID string) (int, error) {
	unlock, err := c.locks.Lock(ctx, queueID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := 0
	err = c.gw.Update(ctx, func(s *storage.Snapshot) error {
		n = len(s.Queues[queueID]) + len(s.Pending[queueID])
		if n == 0 {
			return errUnchanged
		}
		delete(s.Queues, queueID)
		delete(s.Pending, queueID)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return 0, nil
	}
	return n, err
}

// Snapshot returns a copy of one queue for rendering.
func (c *Coordinator) Snapshot(ctx context.Context, queueID string) (View, error) {
	var (
		v  View
		ok bool
	)
	c.gw.View(ctx, func(s *storage.Snapshot) {
		v.Panel, ok = s.Panels[queueID]
		v.Members = copyMembers(s.Queues[queueID])
		v.Pending = len(s.Pending[queueID])
	})
	if !ok {
		return View{}, ErrUnknownQueue
	}
	return v, nil
}

// Panels lists every registered queue panel, optionally for one server.
func (c *Coordinator) Panels(ctx context.Context, serverID string) []wager.PanelMeta {
	var out []wager.PanelMeta
	c.gw.View(ctx, func(s *storage.Snapshot) {
		for _, p := range s.Panels {
			if serverID == "" || p.ServerID == serverID {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].QueueID < out[j].QueueID })
	return out
}

// QueueOf returns the queue the participant waits in, if any.
func (c *Coordinator) QueueOf(ctx context.Context, participantID string) (string, bool) {
	var (
		qid string
		ok  bool
	)
	c.gw.View(ctx, func(s *storage.Snapshot) { qid, ok = s.QueuedIn(participantID) })
	return qid, ok
}

func (c *Coordinator) publish(ctx context.Context, queueID string) {
	if c.bus == nil {
		return
	}
	v, err := c.Snapshot(ctx, queueID)
	if err != nil {
		return
	}
	events.Publish(c.bus, events.QueueChanged{QueueID: queueID, Panel: v.Panel, Members: v.Members})
}
