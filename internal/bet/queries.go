package bet

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
	"github.com/jose-valero/wager-queue-bot/internal/storage"
)

// Get looks in the active index first, then in history.
func (l *Ledger) Get(ctx context.Context, betID string) (wager.Bet, error) {
	var (
		b     wager.Bet
		found bool
	)
	l.gw.View(ctx, func(s *storage.Snapshot) {
		if a, ok := s.ActiveBets[betID]; ok {
			b, found = a.Clone(), true
			return
		}
		for i := len(s.History) - 1; i >= 0; i-- {
			if s.History[i].ID == betID {
				b, found = s.History[i].Clone(), true
				return
			}
		}
	})
	if !found {
		return wager.Bet{}, ErrBetNotFound
	}
	return b, nil
}

// ByConversation finds the active bet whose thread is conversationID.
func (l *Ledger) ByConversation(ctx context.Context, conversationID string) (wager.Bet, error) {
	var (
		b     wager.Bet
		found bool
	)
	l.gw.View(ctx, func(s *storage.Snapshot) {
		for _, a := range s.ActiveBets {
			if a.ConversationID == conversationID && conversationID != "" {
				b, found = a.Clone(), true
				return
			}
		}
	})
	if !found {
		return wager.Bet{}, ErrBetNotFound
	}
	return b, nil
}

// ActiveFor lists the active bets the user plays in or mediates, oldest first.
func (l *Ledger) ActiveFor(ctx context.Context, userID string) []wager.Bet {
	var out []wager.Bet
	l.gw.View(ctx, func(s *storage.Snapshot) {
		for _, a := range s.ActiveBets {
			if a.Has(userID) || a.MediatorID == userID {
				out = append(out, a.Clone())
			}
		}
	})
	sortByCreated(out)
	return out
}

// Active lists the active bets of a server ("" for all), oldest first.
func (l *Ledger) Active(ctx context.Context, serverID string) []wager.Bet {
	var out []wager.Bet
	l.gw.View(ctx, func(s *storage.Snapshot) {
		for _, a := range s.ActiveBets {
			if serverID == "" || a.ServerID == serverID {
				out = append(out, a.Clone())
			}
		}
	})
	sortByCreated(out)
	return out
}

// History returns up to limit closed bets of a server ("" for all), most
// recent first.
func (l *Ledger) History(ctx context.Context, serverID string, limit int) []wager.Bet {
	var out []wager.Bet
	l.gw.View(ctx, func(s *storage.Snapshot) {
		for i := len(s.History) - 1; i >= 0; i-- {
			if limit > 0 && len(out) >= limit {
				return
			}
			if serverID == "" || s.History[i].ServerID == serverID {
				out = append(out, s.History[i].Clone())
			}
		}
	})
	return out
}

func (l *Ledger) IsBound(ctx context.Context, participantID string) bool {
	var bound bool
	l.gw.View(ctx, func(s *storage.Snapshot) {
		if id, ok := s.Bound[participantID]; ok {
			_, bound = s.ActiveBets[id]
		}
	})
	return bound
}

func sortByCreated(bs []wager.Bet) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].ID < bs[j].ID
		}
		return bs[i].CreatedAt.Before(bs[j].CreatedAt)
	})
}

// ReconcileReport counts what Reconcile repaired.
type ReconcileReport struct {
	Archived int // terminal bets found in the active index
	Unbound  int // markers pointing at no active bet
	Rebound  int // participants of active bets missing their marker
	Trimmed  int // history entries over the cap
}

var errUnchanged = errors.New("unchanged")

// Reconcile makes the bound markers agree with the active index, archives
// terminal bets left active and trims history. It runs at boot and from the
// periodic cleanup.
func (l *Ledger) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport
	err := l.gw.Update(ctx, func(s *storage.Snapshot) error {
		rep = ReconcileReport{}
		ids := make([]string, 0, len(s.ActiveBets))
		for id := range s.ActiveBets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if b := s.ActiveBets[id]; b.Status.Terminal() {
				if b.FinishedAt == nil {
					t := b.UpdatedAt
					b.FinishedAt = &t
				}
				before := len(s.History)
				l.archive(s, b)
				rep.Archived++
				rep.Trimmed += before + 1 - len(s.History)
			}
		}
		for p, id := range s.Bound {
			if b, ok := s.ActiveBets[id]; !ok || !b.Has(p) {
				delete(s.Bound, p)
				rep.Unbound++
			}
		}
		for _, b := range s.ActiveBets {
			for _, p := range b.Participants() {
				if s.Bound[p] != b.ID {
					s.Bound[p] = b.ID
					rep.Rebound++
				}
			}
		}
		if over := len(s.History) - l.historyCap; over > 0 {
			s.History = append([]wager.Bet(nil), s.History[over:]...)
			rep.Trimmed += over
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
	l.log.Info("ledger reconciled",
		zap.Int("archived", rep.Archived), zap.Int("unbound", rep.Unbound),
		zap.Int("rebound", rep.Rebound), zap.Int("trimmed", rep.Trimmed))
	return rep, nil
}
