package usagelog

import "context"

// Writer persists usage-log entries.
type Writer interface {
	// Append stores one entry. Implementations must be safe for concurrent
	// use. Callers on the entitlement path treat errors as operational only.
	Append(ctx context.Context, entry Entry) error
}

// WriterFunc adapts a function to the Writer interface.
type WriterFunc func(ctx context.Context, entry Entry) error

func (f WriterFunc) Append(ctx context.Context, entry Entry) error {
	return f(ctx, entry)
}
