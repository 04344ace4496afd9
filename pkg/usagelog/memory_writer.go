package usagelog

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryWriter collects entries in memory. Used in tests and as the default
// writer for single-process deployments without analytics requirements.
type MemoryWriter struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryWriter creates an empty in-memory writer.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

// Append stores the entry after validation.
func (w *MemoryWriter) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entry)
	return nil
}

// Entries returns a copy of all stored entries in append order.
func (w *MemoryWriter) Entries() []Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.entries)
}

// EntriesFor returns a copy of the entries recorded for one user.
func (w *MemoryWriter) EntriesFor(userID uuid.UUID) []Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []Entry
	for _, e := range w.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}
