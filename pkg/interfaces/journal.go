package interfaces

import (
	"context"

	"classlock/pkg/types"
)

// Journal is the append-only audit trail of session events.
// ARCHITECTURAL DISCOVERY: Record must not block the relay loop; implementations queue
// writes and report failures through their own logging.
type Journal interface {
	Record(ctx context.Context, entry types.JournalEntry) error
	History(ctx context.Context, classCode string, limit int) ([]types.JournalEntry, error)
	HealthCheck(ctx context.Context) error
	Close() error
}
