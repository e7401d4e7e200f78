// Package resolver derives the set of user accounts permitted to see a
// conversation from the raw identifier fields legacy and canonical records
// carry.
package resolver

import (
	"marketchat/internal/common"
)

// RawThread is the identifier surface of a thread record, legacy or
// canonical. At most three candidates ever appear.
type RawThread struct {
	// InitiatorID is the account that opened the thread.
	InitiatorID string
	// ResponderID is the account on the other side.
	ResponderID string
	// BusinessID identifies a business record, not a user account. It is
	// carried on legacy marketplace threads but is never a participant:
	// admitting it would grant an unrelated account access to the thread.
	BusinessID string
}

// Resolve returns the normalized participant set for a thread: empty
// candidates dropped, duplicates collapsed, insertion order preserved.
// A thread whose initiator and responder are the same account resolves to a
// single-element set. Returns ErrInvalidParticipants when no user account
// remains.
func Resolve(raw RawThread) ([]string, error) {
	participants := make([]string, 0, 2)
	seen := make(map[string]bool, 2)

	for _, id := range []string{raw.InitiatorID, raw.ResponderID} {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		participants = append(participants, id)
	}

	if len(participants) == 0 {
		return nil, common.ErrInvalidParticipants
	}
	return participants, nil
}
