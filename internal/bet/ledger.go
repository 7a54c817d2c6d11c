// Package bet is the wager ledger: the bet state machine, the active index
// and the bounded history.
//
//	MATCHED -> MEDIATION_ACCEPTED -> CONFIRMED -> RESOLVED
//	MATCHED | MEDIATION_ACCEPTED -> CANCELLED
package bet

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/domain/events"
	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
	"github.com/jose-valero/wager-queue-bot/internal/storage"
)

const DefaultHistoryCap = 100

// MediatorSource is the part of the mediator pool the ledger needs for
// auto-assignment and for requeueing on cancel.
type MediatorSource interface {
	TakeOldest(ctx context.Context, serverID string) (wager.MediatorEntry, error)
	RequeueAtEnd(ctx context.Context, serverID, mediatorID, contact string) error
}

type Options struct {
	HistoryCap int
	Now        func() time.Time
	NewID      func() string
}

type Ledger struct {
	gw         *storage.Gateway
	pool       MediatorSource // nil disables auto-assignment
	bus        *events.Bus
	log        *zap.Logger
	historyCap int
	now        func() time.Time
	newID      func() string
}

func NewLedger(gw *storage.Gateway, pool MediatorSource, bus *events.Bus, log *zap.Logger, opts Options) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = DefaultHistoryCap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Ledger{
		gw:         gw,
		pool:       pool,
		bus:        bus,
		log:        log.With(zap.String("component", "bet")),
		historyCap: opts.HistoryCap,
		now:        opts.Now,
		newID:      opts.NewID,
	}
}

// NewBet is what the matchmaker knows when a group fills.
type NewBet struct {
	ServerID       string
	QueueID        string
	Mode           wager.Mode
	Teams          [][]string
	Stake          decimal.Decimal
	Fee            decimal.Decimal
	Currency       wager.Currency
	ConversationID string
}

// CreateBet writes a MATCHED bet, binds its participants and releases their
// pending queue slots. When the server pool has a mediator waiting, the
// oldest one is assigned right away.
func (l *Ledger) CreateBet(ctx context.Context, nb NewBet) (wager.Bet, error) {
	if !nb.Mode.Valid() {
		return wager.Bet{}, wager.ErrInvalidMode
	}
	if err := wager.ValidateTerms(nb.Stake, nb.Fee); err != nil {
		return wager.Bet{}, err
	}
	cur, ok := wager.ParseCurrency(string(nb.Currency))
	if !ok {
		return wager.Bet{}, wager.ErrInvalidCurrency
	}
	if !validTeams(nb.Mode, nb.Teams) {
		return wager.Bet{}, ErrInvalidTeams
	}

	now := l.now()
	b := wager.Bet{
		ID:             l.newID(),
		ServerID:       nb.ServerID,
		QueueID:        nb.QueueID,
		Mode:           nb.Mode,
		Stake:          nb.Stake,
		Fee:            nb.Fee,
		Currency:       cur,
		ConversationID: nb.ConversationID,
		Confirmed:      make([]bool, len(nb.Teams)),
		Status:         wager.StatusMatched,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	for _, t := range nb.Teams {
		b.Teams = append(b.Teams, append([]string(nil), t...))
	}

	err := l.gw.Update(ctx, func(s *storage.Snapshot) error {
		for _, p := range b.Participants() {
			if id, bound := s.Bound[p]; bound {
				if _, active := s.ActiveBets[id]; active {
					return ErrAlreadyInBet
				}
			}
		}
		s.ActiveBets[b.ID] = b
		for _, p := range b.Participants() {
			s.Bound[p] = b.ID
			release(s, p)
		}
		return nil
	})
	if err != nil {
		return wager.Bet{}, err
	}
	l.log.Info("bet created",
		zap.String("bet", b.ID), zap.String("server", b.ServerID), zap.String("mode", b.Mode.String()),
		zap.Strings("participants", b.Participants()), zap.String("stake", b.Stake.String()))
	events.Publish(l.bus, events.BetCreated{Bet: b.Clone()})

	return l.autoAssign(ctx, b), nil
}

// release drops the participant from pending hand-offs and waiting lists.
func release(s *storage.Snapshot, participantID string) {
	for qid, ms := range s.Pending {
		kept := ms[:0:0]
		for _, m := range ms {
			if m.ParticipantID != participantID {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			delete(s.Pending, qid)
		} else {
			s.Pending[qid] = kept
		}
	}
	for qid, ms := range s.Queues {
		for i, m := range ms {
			if m.ParticipantID == participantID {
				s.Queues[qid] = append(ms[:i:i], ms[i+1:]...)
				break
			}
		}
	}
}

func (l *Ledger) autoAssign(ctx context.Context, b wager.Bet) wager.Bet {
	if l.pool == nil {
		return b
	}
	entry, err := l.pool.TakeOldest(ctx, b.ServerID)
	if err != nil {
		return b
	}
	assigned, err := l.accept(ctx, b.ID, entry.MediatorID, entry.Contact, true)
	if err != nil {
		l.log.Warn("auto-assignment failed, mediator requeued",
			zap.String("bet", b.ID), zap.String("mediator", entry.MediatorID), zap.Error(err))
		if rerr := l.pool.RequeueAtEnd(ctx, b.ServerID, entry.MediatorID, entry.Contact); rerr != nil {
			l.log.Error("requeue mediator", zap.String("mediator", entry.MediatorID), zap.Error(rerr))
		}
		return b
	}
	return assigned
}

// AcceptMediation binds a mediator to a MATCHED bet. An empty contact falls
// back to the mediator's remembered one.
func (l *Ledger) AcceptMediation(ctx context.Context, betID, mediatorID, contact string) (wager.Bet, error) {
	return l.accept(ctx, betID, mediatorID, contact, false)
}

func (l *Ledger) accept(ctx context.Context, betID, mediatorID, contact string, auto bool) (wager.Bet, error) {
	contact = strings.TrimSpace(contact)
	b, err := l.mutate(ctx, betID, func(s *storage.Snapshot, b *wager.Bet) error {
		if b.HasMediator() {
			return ErrMediatorBound
		}
		if b.Status != wager.StatusMatched {
			return ErrInvalidTransition
		}
		if b.Has(mediatorID) {
			return ErrMediatorIsPlayer
		}
		if contact == "" {
			contact = s.Contacts[mediatorID]
		}
		if contact == "" {
			return ErrContactRequired
		}
		b.MediatorID = mediatorID
		b.MediatorContact = contact
		b.Status = wager.StatusMediationAccepted
		s.Contacts[mediatorID] = contact
		return nil
	})
	if err != nil {
		return wager.Bet{}, err
	}
	l.log.Info("mediator assigned", zap.String("bet", b.ID), zap.String("mediator", mediatorID), zap.Bool("auto", auto))
	events.Publish(l.bus, events.MediatorAssigned{Bet: b.Clone(), Auto: auto})
	return b, nil
}

// ConfirmPayment marks one side as paid; the bet becomes CONFIRMED once every
// side is.
func (l *Ledger) ConfirmPayment(ctx context.Context, betID string, side int) (wager.Bet, error) {
	b, err := l.mutate(ctx, betID, func(_ *storage.Snapshot, b *wager.Bet) error {
		switch b.Status {
		case wager.StatusMatched:
			return ErrNoMediator
		case wager.StatusMediationAccepted:
		case wager.StatusConfirmed:
			return ErrSideConfirmed
		default:
			return ErrInvalidTransition
		}
		if side < 0 || side >= len(b.Confirmed) {
			return ErrInvalidSide
		}
		if b.Confirmed[side] {
			return ErrSideConfirmed
		}
		b.Confirmed[side] = true
		if b.FullyConfirmed() {
			b.Status = wager.StatusConfirmed
		}
		return nil
	})
	if err != nil {
		return wager.Bet{}, err
	}
	l.log.Info("payment confirmed", zap.String("bet", b.ID), zap.Int("side", side), zap.String("status", string(b.Status)))
	events.Publish(l.bus, events.PaymentConfirmed{Bet: b.Clone(), Side: side})
	return b, nil
}

// Resolve declares the winner and moves the bet to history.
func (l *Ledger) Resolve(ctx context.Context, betID, winnerID string) (wager.Bet, error) {
	b, err := l.mutate(ctx, betID, func(_ *storage.Snapshot, b *wager.Bet) error {
		switch b.Status {
		case wager.StatusMediationAccepted, wager.StatusConfirmed:
		case wager.StatusMatched:
			return ErrNoMediator
		default:
			return ErrInvalidTransition
		}
		if !b.Has(winnerID) {
			return ErrWinnerNotParticipant
		}
		b.WinnerID = winnerID
		b.Status = wager.StatusResolved
		return nil
	})
	if err != nil {
		return wager.Bet{}, err
	}
	l.log.Info("bet resolved", zap.String("bet", b.ID), zap.String("winner", winnerID))
	events.Publish(l.bus, events.BetClosed{Bet: b.Clone()})
	return b, nil
}

// Cancel closes a bet that has not been confirmed. A bound mediator goes back
// to the end of the pool.
func (l *Ledger) Cancel(ctx context.Context, betID string) (wager.Bet, error) {
	return l.cancel(ctx, betID, false)
}

// Abort cancels any open bet, a CONFIRMED one included. It backs the admin
// reset; everything else goes through Cancel.
func (l *Ledger) Abort(ctx context.Context, betID string) (wager.Bet, error) {
	return l.cancel(ctx, betID, true)
}

func (l *Ledger) cancel(ctx context.Context, betID string, force bool) (wager.Bet, error) {
	b, err := l.mutate(ctx, betID, func(_ *storage.Snapshot, b *wager.Bet) error {
		if !force && b.Status != wager.StatusMatched && b.Status != wager.StatusMediationAccepted {
			return ErrInvalidTransition
		}
		b.Status = wager.StatusCancelled
		return nil
	})
	if err != nil {
		return wager.Bet{}, err
	}
	l.log.Info("bet cancelled", zap.String("bet", b.ID), zap.String("mediator", b.MediatorID), zap.Bool("forced", force))
	if b.HasMediator() && l.pool != nil {
		if err := l.pool.RequeueAtEnd(ctx, b.ServerID, b.MediatorID, b.MediatorContact); err != nil {
			l.log.Warn("mediator not requeued", zap.String("mediator", b.MediatorID), zap.Error(err))
		}
	}
	events.Publish(l.bus, events.BetClosed{Bet: b.Clone()})
	return b, nil
}

// mutate is the per-bet read-modify-write: the bet is read, then the guard
// and mutation run inside one gateway update that first checks the version
// read is still current. A mismatch is ErrStaleBet, never an overwrite.
func (l *Ledger) mutate(ctx context.Context, betID string, apply func(s *storage.Snapshot, b *wager.Bet) error) (wager.Bet, error) {
	observed, err := l.Get(ctx, betID)
	if err != nil {
		return wager.Bet{}, err
	}
	if observed.Status.Terminal() {
		return wager.Bet{}, ErrBetClosed
	}
	return l.commit(ctx, observed, apply)
}

func (l *Ledger) commit(ctx context.Context, observed wager.Bet, apply func(s *storage.Snapshot, b *wager.Bet) error) (wager.Bet, error) {
	betID := observed.ID
	var out wager.Bet
	err := l.gw.Update(ctx, func(s *storage.Snapshot) error {
		current, ok := s.ActiveBets[betID]
		if !ok || current.Version != observed.Version {
			return ErrStaleBet
		}
		next := current.Clone()
		if err := apply(s, &next); err != nil {
			return err
		}
		now := l.now()
		next.Version++
		next.UpdatedAt = now
		if next.Status.Terminal() {
			next.FinishedAt = &now
			l.archive(s, next)
		} else {
			s.ActiveBets[betID] = next
		}
		out = next
		return nil
	})
	if err != nil {
		return wager.Bet{}, err
	}
	return out, nil
}

// archive moves a terminal bet to history and unbinds its participants.
func (l *Ledger) archive(s *storage.Snapshot, b wager.Bet) {
	delete(s.ActiveBets, b.ID)
	for _, p := range b.Participants() {
		if s.Bound[p] == b.ID {
			delete(s.Bound, p)
		}
	}
	s.History = append(s.History, b)
	if over := len(s.History) - l.historyCap; over > 0 {
		s.History = append([]wager.Bet(nil), s.History[over:]...)
	}
}

func validTeams(mode wager.Mode, teams [][]string) bool {
	if len(teams) != mode.Format.Teams() {
		return false
	}
	seen := map[string]bool{}
	for _, t := range teams {
		if len(t) != mode.Format.TeamSize() {
			return false
		}
		for _, p := range t {
			if p == "" || seen[p] {
				return false
			}
			seen[p] = true
		}
	}
	return true
}

// IsStale reports whether err came from a concurrent modification.
func IsStale(err error) bool { return errors.Is(err, ErrStaleBet) }
