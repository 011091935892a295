package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/academy-payments/internal/domain/model"
	"github.com/wekeepgrowing/academy-payments/internal/domain/provider"
	"github.com/wekeepgrowing/academy-payments/internal/domain/repository"
	apperrors "github.com/wekeepgrowing/academy-payments/pkg/errors"
)

// IdempotencyGuard deduplicates gateway events by event id.
type IdempotencyGuard struct {
	store  repository.LedgerStore
	logger *zap.Logger
	now    func() time.Time
}

// NewIdempotencyGuard creates a new idempotency guard
func NewIdempotencyGuard(store repository.LedgerStore, logger *zap.Logger) *IdempotencyGuard {
	return &IdempotencyGuard{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Seen is a read-only fast path. A false result is not a claim: only Record
// decides which delivery wins.
func (g *IdempotencyGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	seen, err := g.store.IsEventProcessed(ctx, eventID)
	if err != nil {
		return false, apperrors.Wrap(err, fmt.Sprintf("failed to check event %s", eventID))
	}
	return seen, nil
}

// Record inserts the processed-event marker inside tx. It returns false when
// another delivery already recorded the event, in which case the caller must
// roll back.
func (g *IdempotencyGuard) Record(ctx context.Context, tx repository.LedgerTx, event *provider.Event, entryID *uuid.UUID, outcome model.EventOutcome) (bool, error) {
	inserted, err := tx.MarkEventProcessed(ctx, &model.ProcessedEvent{
		EventID:       event.ID,
		EventType:     event.Type,
		LedgerEntryID: entryID,
		Outcome:       outcome,
		ProcessedAt:   g.now().UTC(),
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		g.logger.Info("Event already recorded by a concurrent delivery",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
	}
	return inserted, nil
}

// Evict removes markers older than retention. Zero retention disables eviction.
func (g *IdempotencyGuard) Evict(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := g.now().Add(-retention)
	n, err := g.store.EvictProcessedEvents(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.logger.Info("Evicted processed event markers",
			zap.Int64("count", n),
			zap.Time("cutoff", cutoff))
	}
	return n, nil
}
