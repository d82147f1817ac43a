package audit

import (
	"context"

	"github.com/nerrad567/graychat-core/internal/infrastructure/logging"
)

// DefaultQueueSize is the number of entries buffered before Record drops.
const DefaultQueueSize = 256

// Recorder writes entries asynchronously through a bounded queue. Requests
// never wait on the audit table; a full queue drops the entry.
type Recorder struct {
	repo   Repository
	logger *logging.Logger
	queue  chan *Entry
	source string
}

// NewRecorder creates a Recorder. Run must be started for entries to land.
func NewRecorder(repo Repository, logger *logging.Logger, size int) *Recorder {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Recorder{
		repo:   repo,
		logger: logger.With("component", "audit"),
		queue:  make(chan *Entry, size),
		source: "api",
	}
}

// Record enqueues an entry. It never blocks.
func (r *Recorder) Record(action, entityType, entityID, userID string, details map[string]any) {
	if r == nil {
		return
	}
	entry := &Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Source:     r.source,
		Details:    details,
	}
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("audit queue full, dropping entry", "action", action, "entity_type", entityType)
	}
}

// Run writes queued entries one at a time until ctx is cancelled, then
// flushes whatever is still queued.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *Entry) {
	// The request that produced the entry may be long gone.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit write failed", "action", entry.Action, "entity_type", entry.EntityType, "error", err)
	}
}
