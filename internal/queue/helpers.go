// Package queue - helpers.go
// Small internal helpers kept separate to keep coordinator.go focused.
package queue

import (
	"github.com/jose-valero/wager-queue-bot/internal/domain/fault"
	"github.com/jose-valero/wager-queue-bot/internal/domain/wager"
	"github.com/jose-valero/wager-queue-bot/internal/storage"
)

// copyMembers returns a copy of the slice that shares nothing with the snapshot.
func copyMembers(ms []wager.QueueMember) []wager.QueueMember {
	return append([]wager.QueueMember(nil), ms...)
}

// locateMember returns the index of the participant within ms, or -1.
func locateMember(ms []wager.QueueMember, participantID string) int {
	for i, m := range ms {
		if m.ParticipantID == participantID {
			return i
		}
	}
	return -1
}

func participantIDs(ms []wager.QueueMember) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ParticipantID
	}
	return out
}

// boundToActive reports whether the participant is bound to a bet that is
// still in the active index. Called inside a gateway Update or View.
func boundToActive(s *storage.Snapshot, participantID string) bool {
	id, ok := s.Bound[participantID]
	if !ok {
		return false
	}
	_, active := s.ActiveBets[id]
	return active
}

// restoreFront puts ms back ahead of the current members, skipping anyone
// already waiting.
func restoreFront(current, ms []wager.QueueMember) []wager.QueueMember {
	out := make([]wager.QueueMember, 0, len(current)+len(ms))
	for _, m := range ms {
		if locateMember(current, m.ParticipantID) < 0 && locateMember(out, m.ParticipantID) < 0 {
			out = append(out, m)
		}
	}
	return append(out, current...)
}

// popGroup moves the earliest full group of the queue into Pending and
// returns it, or nil when fewer than a group are waiting.
func popGroup(s *storage.Snapshot, queueID string, panel wager.PanelMeta) (*Match, error) {
	members := s.Queues[queueID]
	need := panel.Mode.Capacity()
	if need == 0 || len(members) < need {
		return nil, nil
	}
	popped := copyMembers(members[:need])
	group := participantIDs(popped)
	teams, err := panel.Mode.Split(group)
	if err != nil {
		return nil, fault.Validationf("%v", err)
	}
	s.Queues[queueID] = copyMembers(members[need:])
	s.Pending[queueID] = append(s.Pending[queueID], popped...)
	return &Match{Panel: panel, Group: group, Teams: teams}, nil
}
