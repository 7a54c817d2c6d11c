// Package queue - errors.go
// Centralized, comparable error values used across the coordinator.
package queue

import (
	"errors"

	"github.com/jose-valero/wager-queue-bot/internal/domain/fault"
	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
)

var (
	ErrUnknownQueue  = fault.New(fault.KindNotFound, "this queue no longer exists")
	ErrAlreadyQueued = fault.New(fault.KindConflict, "you are already in a queue")
	ErrNotInQueue    = fault.New(fault.KindNotFound, "you are not in this queue")
	ErrAlreadyInBet  = wager.ErrAlreadyInBet
)

// errUnchanged aborts an Update without writing; callers treat it as success.
var errUnchanged = errors.New("unchanged")
