package queue

import (
	"context"

	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
)

// Match is a full group popped from a queue, in join order.
type Match struct {
	Panel wager.PanelMeta
	Group []string   // participant ids, earliest first
	Teams [][]string // Group dealt into sides by the mode
}

// Matcher turns a full group into a bet. It runs while the queue lock is held;
// an error makes the coordinator put the group back at the front of the queue.
type Matcher interface {
	CreateMatch(ctx context.Context, m Match) (wager.Bet, error)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(ctx context.Context, m Match) (wager.Bet, error)

func (f MatcherFunc) CreateMatch(ctx context.Context, m Match) (wager.Bet, error) { return f(ctx, m) }

// JoinResult is either Joined (Matched false, Size = members now waiting) or
// Matched (Group and Bet set).
type JoinResult struct {
	Matched bool
	Size    int
	Group   []string
	Bet     wager.Bet
	Evicted string // member dropped by the hard cap, if any
}

// View is a read-only copy of one queue for rendering.
type View struct {
	Panel   wager.PanelMeta
	Members []wager.QueueMember
	Pending int
}

// ReconcileReport counts what the boot-time repair changed.
type ReconcileReport struct {
	Restored int // pending members put back at the front
	Dropped  int // members removed because they are bound or duplicated
}
