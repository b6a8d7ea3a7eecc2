package audit

import (
	"fmt"

	"github.com/HeadyMe/heady-mcp-router/internal/models"
)

// ChainError locates the first broken link of an audit chain.
type ChainError struct {
	Index  int
	ID     string
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at #%d (%s): %s", e.Index, e.ID, e.Reason)
}

// Verify checks that events form an unbroken chain in the given order. The
// first event may link to genesis or, for a tail of a longer log, to any hash.
func Verify(events []models.AuditEvent) error {
	for i, ev := range events {
		if got := HashEvent(ev); got != ev.Hash {
			return &ChainError{Index: i, ID: ev.ID, Reason: "hash does not match content"}
		}
		if i > 0 && ev.PreviousHash != events[i-1].Hash {
			return &ChainError{Index: i, ID: ev.ID, Reason: "previous hash does not match predecessor"}
		}
	}
	return nil
}

// VerifyFull checks a complete log, which must start at genesis.
func VerifyFull(events []models.AuditEvent) error {
	if len(events) > 0 && events[0].PreviousHash != models.GenesisHash {
		return &ChainError{Index: 0, ID: events[0].ID, Reason: "first event does not link to genesis"}
	}
	return Verify(events)
}
