package usagelog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrWriterClosed is returned by Append after the async writer shut down.
var ErrWriterClosed = errors.New("usagelog: async writer closed")

// AsyncOptions configures the buffering behavior of the async writer.
type AsyncOptions struct {
	BufferSize   int           // Max entries queued in memory before new entries are dropped
	FlushTimeout time.Duration // Per-entry storage timeout for the background flush
}

// AsyncWriter decorates a Writer with a buffered background flush so the
// entitlement path never blocks on usage logging. When the buffer is full
// the entry is dropped and the drop is reported to the operational logger;
// losing an analytics row is preferable to delaying a user-facing decision.
type AsyncWriter struct {
	dst     Writer
	log     *slog.Logger
	entries chan Entry
	done    chan struct{}
	wg      sync.WaitGroup
	opts    AsyncOptions
}

// NewAsyncWriter wraps dst with an async buffer. The returned close function
// drains the buffer and must be called on shutdown.
func NewAsyncWriter(dst Writer, log *slog.Logger, opts AsyncOptions) (*AsyncWriter, func(context.Context) error) {
	if dst == nil {
		panic("usagelog: destination writer cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 5 * time.Second
	}

	w := &AsyncWriter{
		dst:     dst,
		log:     log,
		entries: make(chan Entry, opts.BufferSize),
		done:    make(chan struct{}),
		opts:    opts,
	}

	w.wg.Add(1)
	go w.run()

	return w, w.close
}

// Append enqueues the entry without blocking. A full buffer drops the entry.
func (w *AsyncWriter) Append(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	select {
	case <-w.done:
		return ErrWriterClosed
	default:
	}

	select {
	case w.entries <- entry:
		return nil
	default:
		w.log.ErrorContext(ctx, "usage log buffer full, dropping entry",
			"user_id", entry.UserID,
			"feature", entry.Feature,
			"outcome", entry.Outcome,
		)
		return nil
	}
}

func (w *AsyncWriter) run() {
	defer w.wg.Done()

	for {
		select {
		case entry := <-w.entries:
			w.flush(entry)
		case <-w.done:
			// Drain whatever is already buffered, then stop. The entries
			// channel is never closed, so late Append calls cannot panic.
			for {
				select {
				case entry := <-w.entries:
					w.flush(entry)
				default:
					return
				}
			}
		}
	}
}

func (w *AsyncWriter) flush(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.FlushTimeout)
	defer cancel()

	if err := w.dst.Append(ctx, entry); err != nil {
		w.log.Error("failed to persist usage log entry",
			"error", err,
			"user_id", entry.UserID,
			"feature", entry.Feature,
		)
	}
}

// close stops intake, drains buffered entries and waits for the flush
// goroutine, bounded by the caller's context.
func (w *AsyncWriter) close(ctx context.Context) error {
	close(w.done)

	flushed := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(flushed)
	}()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
