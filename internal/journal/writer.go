package journal

import (
	"context"
	"log/slog"
	"sync"

	"classlock/pkg/types"
)

// asyncWriter owns the single goroutine that persists journal entries
// ARCHITECTURAL DISCOVERY: Single-writer goroutine keeps backend writes off the relay loop
// and serializes them (SQLite write contention, ordered stream appends)
type asyncWriter struct {
	entries  chan types.JournalEntry
	write    func(ctx context.Context, entry types.JournalEntry) error
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex // TECHNICAL: Protect closed status
	logger   *slog.Logger
}

func newAsyncWriter(buffer int, write func(ctx context.Context, entry types.JournalEntry) error, logger *slog.Logger) *asyncWriter {
	if buffer <= 0 {
		buffer = 256
	}
	w := &asyncWriter{
		entries:  make(chan types.JournalEntry, buffer),
		write:    write,
		shutdown: make(chan struct{}),
		logger:   logger,
	}
	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// enqueue never blocks; a full queue drops the entry and reports ErrJournalFull
func (w *asyncWriter) enqueue(entry types.JournalEntry) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrJournalClosed
	}

	select {
	case w.entries <- entry:
		return nil
	default:
		return ErrJournalFull
	}
}

func (w *asyncWriter) writeLoop() {
	defer w.wg.Done()

	for {
		select {
		case entry := <-w.entries:
			w.persist(entry)

		case <-w.shutdown:
			// FUNCTIONAL DISCOVERY: Flush what was accepted before Close so shutdown loses nothing queued
			for {
				select {
				case entry := <-w.entries:
					w.persist(entry)
				default:
					return
				}
			}
		}
	}
}

// persist makes a single attempt; a failed entry is logged and dropped
func (w *asyncWriter) persist(entry types.JournalEntry) {
	if err := w.write(context.Background(), entry); err != nil {
		w.logger.Error("journal write failed", "kind", entry.Kind, "class_code", entry.ClassCode, "error", err)
	}
}

// close stops accepting entries and waits for the queue to drain
func (w *asyncWriter) close() bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.closed = true
	w.mu.Unlock()

	close(w.shutdown)
	w.wg.Wait()
	return true
}
