// Package storage is the persistence gateway: one JSON snapshot of every queue,
// bet, mediator pool and panel, kept on local disk with rotated backups and
// optionally mirrored to redis, postgres or sqlite.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
)

// Snapshot is the complete serialized state. Field names follow the layout the
// bot has always persisted (queues, queue_metadata, active_bets, bet_history...).
type Snapshot struct {
	Revision int64 `json:"revision"`

	Queues  map[string][]wager.QueueMember `json:"queues"`
	Panels  map[string]wager.PanelMeta     `json:"queue_metadata"`
	Pending map[string][]wager.QueueMember `json:"pending"` // queueID -> members popped, awaiting hand-off
	Bound   map[string]string              `json:"bound"`   // participantID -> active bet id

	ActiveBets map[string]wager.Bet `json:"active_bets"`
	History    []wager.Bet          `json:"bet_history"`

	Pools    map[string][]wager.MediatorEntry `json:"mediator_pools"`
	Contacts map[string]string                `json:"mediator_contacts"`
	Servers  map[string]wager.ServerSettings  `json:"servers"`
}

// Empty returns a snapshot with every collection allocated.
func Empty() *Snapshot {
	s := &Snapshot{}
	s.normalize()
	return s
}

func (s *Snapshot) normalize() {
	if s.Queues == nil {
		s.Queues = map[string][]wager.QueueMember{}
	}
	if s.Panels == nil {
		s.Panels = map[string]wager.PanelMeta{}
	}
	if s.Pending == nil {
		s.Pending = map[string][]wager.QueueMember{}
	}
	if s.Bound == nil {
		s.Bound = map[string]string{}
	}
	if s.ActiveBets == nil {
		s.ActiveBets = map[string]wager.Bet{}
	}
	if s.History == nil {
		s.History = []wager.Bet{}
	}
	if s.Pools == nil {
		s.Pools = map[string][]wager.MediatorEntry{}
	}
	if s.Contacts == nil {
		s.Contacts = map[string]string{}
	}
	if s.Servers == nil {
		s.Servers = map[string]wager.ServerSettings{}
	}
}

// Encode is deterministic: map keys are sorted by encoding/json and the
// output is indented with a trailing newline.
func (s *Snapshot) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a snapshot and fills in any missing collection.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	s.normalize()
	return &s, nil
}

// Clone deep-copies the snapshot through its own encoding.
func (s *Snapshot) Clone() (*Snapshot, error) {
	data, err := s.Encode()
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// QueuedIn returns the queue holding the participant, looking at waiting and
// pending members.
func (s *Snapshot) QueuedIn(participantID string) (string, bool) {
	for qid, members := range s.Queues {
		if indexOf(members, participantID) >= 0 {
			return qid, true
		}
	}
	for qid, members := range s.Pending {
		if indexOf(members, participantID) >= 0 {
			return qid, true
		}
	}
	return "", false
}

func indexOf(members []wager.QueueMember, participantID string) int {
	for i, m := range members {
		if m.ParticipantID == participantID {
			return i
		}
	}
	return -1
}
