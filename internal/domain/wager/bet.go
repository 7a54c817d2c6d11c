package wager

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusMatched           Status = "MATCHED"
	StatusMediationAccepted Status = "MEDIATION_ACCEPTED"
	StatusConfirmed         Status = "CONFIRMED"
	StatusResolved          Status = "RESOLVED"
	StatusCancelled         Status = "CANCELLED"
)

func (s Status) Terminal() bool { return s == StatusResolved || s == StatusCancelled }

type Currency string

const (
	CurrencySonhos Currency = "sonhos"
	CurrencyCash   Currency = "cash"
)

func ParseCurrency(s string) (Currency, bool) {
	switch Currency(s) {
	case CurrencySonhos, CurrencyCash:
		return Currency(s), true
	case "":
		return CurrencySonhos, true
	}
	return "", false
}

// Bet is a matched wager. Teams holds one slice per side; a 1v1 bet is two
// single-member teams.
type Bet struct {
	ID              string          `json:"id"`
	ServerID        string          `json:"server_id"`
	QueueID         string          `json:"queue_id"`
	Mode            Mode            `json:"mode"`
	Teams           [][]string      `json:"teams"`
	Stake           decimal.Decimal `json:"stake"`
	Fee             decimal.Decimal `json:"fee"`
	Currency        Currency        `json:"currency"`
	ConversationID  string          `json:"conversation_id"`
	MediatorID      string          `json:"mediator_id,omitempty"`
	MediatorContact string          `json:"mediator_contact,omitempty"`
	Confirmed       []bool          `json:"confirmed"`
	Status          Status          `json:"status"`
	WinnerID        string          `json:"winner_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	Version         int64           `json:"version"`
}

// Participants flattens the teams in side order.
func (b Bet) Participants() []string {
	var out []string
	for _, t := range b.Teams {
		out = append(out, t...)
	}
	return out
}

// SideOf returns the team index of the participant, or -1.
func (b Bet) SideOf(participantID string) int {
	for side, t := range b.Teams {
		for _, p := range t {
			if p == participantID {
				return side
			}
		}
	}
	return -1
}

func (b Bet) Has(participantID string) bool { return b.SideOf(participantID) >= 0 }

func (b Bet) HasMediator() bool { return b.MediatorID != "" }

func (b Bet) FullyConfirmed() bool {
	if len(b.Confirmed) == 0 {
		return false
	}
	for _, c := range b.Confirmed {
		if !c {
			return false
		}
	}
	return true
}

// WinnerSide is the team index of the winner, -1 while unresolved.
func (b Bet) WinnerSide() int {
	if b.WinnerID == "" {
		return -1
	}
	return b.SideOf(b.WinnerID)
}

// Clone returns a copy that shares no slices with b.
func (b Bet) Clone() Bet {
	cp := b
	cp.Teams = make([][]string, len(b.Teams))
	for i, t := range b.Teams {
		cp.Teams[i] = append([]string(nil), t...)
	}
	cp.Confirmed = append([]bool(nil), b.Confirmed...)
	if b.FinishedAt != nil {
		t := *b.FinishedAt
		cp.FinishedAt = &t
	}
	return cp
}

// ValidateTerms checks stake > 0 and fee >= 0.
func ValidateTerms(stake, fee decimal.Decimal) error {
	if !stake.IsPositive() {
		return ErrInvalidStake
	}
	if fee.IsNegative() {
		return ErrInvalidFee
	}
	return nil
}
