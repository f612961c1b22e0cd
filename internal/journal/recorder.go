package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"classlock/pkg/interfaces"
	"classlock/pkg/types"
)

// Recorder stamps session events as journal entries and hands them to a journal.
// A Recorder over a nil journal records nothing.
type Recorder struct {
	journal interfaces.Journal
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecorder returns a recorder writing to j
func NewRecorder(j interfaces.Journal, logger *slog.Logger) *Recorder {
	return &Recorder{journal: j, logger: logger, now: time.Now}
}

// Record journals one event. detail is stored as JSON; failures are logged, never returned.
func (r *Recorder) Record(ctx context.Context, kind, code, connectionID string, detail interface{}) {
	if r.journal == nil {
		return
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		r.logger.Debug("journal detail not encodable", "kind", kind, "error", err)
		raw = nil
	}
	entry := types.JournalEntry{
		ID:           uuid.New().String(),
		ClassCode:    code,
		Kind:         kind,
		ConnectionID: connectionID,
		Detail:       raw,
		At:           r.now(),
	}
	if err := r.journal.Record(ctx, entry); err != nil {
		r.logger.Warn("journal record failed", "kind", kind, "class_code", code, "error", err)
	}
}
