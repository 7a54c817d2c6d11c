// Package events - types.go
// State changes emitted by the core. Subscribers in the app layer render them;
// the core never renders.
package events

import "github.com/jose-valero/wager-queue-bot/internal/domain/wager"

// QueueChanged is emitted after a join, leave, match or sweep touched a queue.
type QueueChanged struct {
	QueueID string
	Panel   wager.PanelMeta
	Members []wager.QueueMember
}

// BetCreated is emitted once the matched group is written to the ledger.
type BetCreated struct {
	Bet wager.Bet
}

// MediatorAssigned is emitted when a mediator binds to a bet, manually or
// from the pool.
type MediatorAssigned struct {
	Bet  wager.Bet
	Auto bool
}

// PaymentConfirmed is emitted for each side the mediator confirms.
type PaymentConfirmed struct {
	Bet  wager.Bet
	Side int
}

// BetClosed is emitted when a bet reaches RESOLVED or CANCELLED.
type BetClosed struct {
	Bet wager.Bet
}

// PoolChanged is emitted after the mediator pool of a server changed.
type PoolChanged struct {
	ServerID string
	Entries  []wager.MediatorEntry
}
