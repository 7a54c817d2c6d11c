package wager

import "github.com/jose-valero/wager-queue-bot/internal/domain/fault"

// ErrAlreadyInBet is shared by the queue (join) and the ledger (create): a
// participant bound to an active bet can be in neither a queue nor another bet.
var ErrAlreadyInBet = fault.New(fault.KindConflict, "you already have an active bet")

var (
	ErrInvalidStake    = fault.New(fault.KindValidation, "stake must be greater than zero")
	ErrInvalidFee      = fault.New(fault.KindValidation, "mediator fee cannot be negative")
	ErrInvalidMode     = fault.New(fault.KindValidation, "unknown game mode")
	ErrInvalidCurrency = fault.New(fault.KindValidation, "currency must be sonhos or cash")
)
