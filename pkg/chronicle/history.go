package chronicle

import (
	"fmt"
)

// HistoryEntry describes one change in the causal history.
type HistoryEntry struct {
	Hash    string
	Actor   string
	Seq     uint64
	Deps    []string
	Message string
	// Value is the plain value at the requested path as of this change, or nil.
	Value any
}

// History walks every change in causal order. When path is non-empty each entry carries the
// value found at that path in a fork of the document taken at the change.
func (c *Chronicle) History(path ...string) ([]HistoryEntry, error) {
	changes, err := c.doc.Changes()
	if err != nil {
		return nil, documentError("history", fmt.Errorf("failed to generate changes: %w", err))
	}
	pathArgs := make([]any, len(path))
	for i, p := range path {
		pathArgs[i] = p
	}

	entries := make([]HistoryEntry, 0, len(changes))
	for _, change := range changes {
		deps := change.Dependencies()
		entry := HistoryEntry{
			Hash:    change.Hash().String(),
			Actor:   change.ActorID(),
			Seq:     change.ActorSeq(),
			Deps:    make([]string, len(deps)),
			Message: change.Message(),
		}
		for i, d := range deps {
			entry.Deps[i] = d.String()
		}
		if len(pathArgs) > 0 {
			docAt, err := c.doc.Fork(change.Hash())
			if err != nil {
				return nil, documentError("history", fmt.Errorf("failed to checkout %s: %w", change.Hash(), err))
			}
			if value, err := docAt.Path(pathArgs...).Get(); err == nil {
				entry.Value = plainValue(value)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
