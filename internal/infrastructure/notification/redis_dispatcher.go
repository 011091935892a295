package notification

import (
	"context"
	"fmt"

	"github.com/wekeepgrowing/academy-payments/internal/domain/notification"
	"github.com/wekeepgrowing/academy-payments/pkg/messaging"
)

// OutcomeMessage is the published payload
type OutcomeMessage struct {
	LedgerEntryID string `json:"ledger_entry_id"`
	notification.Outcome
}

// RedisDispatcher publishes outcomes over Redis pub/sub
type RedisDispatcher struct {
	publisher messaging.Publisher
	channel   string
}

var _ notification.Dispatcher = (*RedisDispatcher)(nil)

func NewRedisDispatcher(publisher messaging.Publisher, channel string) *RedisDispatcher {
	return &RedisDispatcher{
		publisher: publisher,
		channel:   channel,
	}
}

// Notify publishes to the beneficiary channel and then the shared channel
func (d *RedisDispatcher) Notify(ctx context.Context, ledgerEntryID string, outcome notification.Outcome) error {
	msg := OutcomeMessage{LedgerEntryID: ledgerEntryID, Outcome: outcome}

	if outcome.BeneficiaryID != "" {
		beneficiaryChannel := fmt.Sprintf("%s:%s", d.channel, outcome.BeneficiaryID)
		if err := d.publisher.Publish(ctx, beneficiaryChannel, msg); err != nil {
			return fmt.Errorf("failed to publish outcome to beneficiary channel: %w", err)
		}
	}

	if err := d.publisher.Publish(ctx, d.channel, msg); err != nil {
		return fmt.Errorf("failed to publish outcome: %w", err)
	}
	return nil
}

func (d *RedisDispatcher) Close() error {
	return d.publisher.Close()
}
