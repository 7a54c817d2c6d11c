package wager

import (
	"time"

	"github.com/shopspring/decimal"
)

// QueueMember is one waiting participant; slice order is priority.
type QueueMember struct {
	ParticipantID string    `json:"participant_id"`
	JoinedAt      time.Time `json:"joined_at"`
}

// PanelMeta describes the queue behind a published panel message. It survives
// restarts and is never removed when the queue empties.
type PanelMeta struct {
	QueueID   string          `json:"queue_id"`
	ServerID  string          `json:"server_id"`
	ChannelID string          `json:"channel_id"`
	MessageID string          `json:"message_id"`
	Mode      Mode            `json:"mode"`
	Stake     decimal.Decimal `json:"stake"`
	Fee       decimal.Decimal `json:"fee"`
	Currency  Currency        `json:"currency"`
}

// QueueID derives the queue id for a panel message ("2v2-mob_1234").
func QueueID(mode Mode, messageID string) string { return mode.String() + "_" + messageID }

// MediatorEntry is one available mediator in a server pool.
type MediatorEntry struct {
	MediatorID string    `json:"mediator_id"`
	Contact    string    `json:"contact"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ServerSettings are the per-server knobs set by /setup and /mediator-central.
type ServerSettings struct {
	MediatorRoleID   string `json:"mediator_role_id,omitempty"`
	ResultsChannelID string `json:"results_channel_id,omitempty"`
	CentralChannelID string `json:"central_channel_id,omitempty"`
	CentralMessageID string `json:"central_message_id,omitempty"`
}
