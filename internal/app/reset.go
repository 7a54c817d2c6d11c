package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/bet"
	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
	"github.com/jose-valero/wager-queue-bot/internal/queue"
)

// ResetReport sums up an admin reset of one server.
type ResetReport struct {
	Cancelled []wager.Bet
	Cleared   int // queued members removed
}

// ResetServer empties the server's queues, then cancels every open bet,
// confirmed ones included. Bound mediators go back to the pool. Deleting the
// bets' conversations is left to the caller.
func ResetServer(ctx context.Context, serverID string, ledger *bet.Ledger, coord *queue.Coordinator, log *zap.Logger) (ResetReport, error) {
	var (
		rep  ResetReport
		errs []error
		err  error
	)
	// queues first: a group matched meanwhile shows up in Active below
	if rep.Cleared, err = coord.Clear(ctx, serverID); err != nil {
		errs = append(errs, err)
	}
	for _, b := range ledger.Active(ctx, serverID) {
		closed, err := abortBet(ctx, ledger, b.ID)
		if errors.Is(err, bet.ErrBetClosed) || errors.Is(err, bet.ErrBetNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", b.ID, err))
			continue
		}
		rep.Cancelled = append(rep.Cancelled, closed)
	}
	log.Warn("server reset",
		zap.String("server", serverID), zap.Int("bets", len(rep.Cancelled)), zap.Int("cleared", rep.Cleared))
	return rep, errors.Join(errs...)
}

// abortBet retries a couple of times when a concurrent action bumped the
// bet's version.
func abortBet(ctx context.Context, ledger *bet.Ledger, betID string) (wager.Bet, error) {
	var (
		b   wager.Bet
		err error
	)
	for attempt := 0; attempt < 3; attempt++ {
		if b, err = ledger.Abort(ctx, betID); !bet.IsStale(err) {
			break
		}
	}
	return b, err
}
