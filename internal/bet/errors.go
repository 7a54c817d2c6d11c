package bet

import (
	"github.com/jose-valero/wager-queue-bot/internal/domain/fault"
	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
)

var (
	ErrBetNotFound          = fault.New(fault.KindNotFound, "bet not found")
	ErrBetClosed            = fault.New(fault.KindConflict, "this bet is already closed")
	ErrStaleBet             = fault.New(fault.KindConflict, "the bet changed in the meantime, try again")
	ErrInvalidTransition    = fault.New(fault.KindConflict, "this action is not allowed in the bet's current state")
	ErrNoMediator           = fault.New(fault.KindConflict, "no mediator has accepted this bet yet")
	ErrMediatorBound        = fault.New(fault.KindConflict, "a mediator already accepted this bet")
	ErrMediatorIsPlayer     = fault.New(fault.KindConflict, "you cannot mediate a bet you play in")
	ErrSideConfirmed        = fault.New(fault.KindConflict, "payment for this side is already confirmed")
	ErrInvalidSide          = fault.New(fault.KindValidation, "unknown side")
	ErrWinnerNotParticipant = fault.New(fault.KindValidation, "the winner must be one of the bet's participants")
	ErrInvalidTeams         = fault.New(fault.KindValidation, "teams do not match the game mode")
	ErrContactRequired      = fault.New(fault.KindValidation, "a contact key is required")
	ErrAlreadyInBet         = wager.ErrAlreadyInBet
)
