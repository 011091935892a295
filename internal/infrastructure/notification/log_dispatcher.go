package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/academy-payments/internal/domain/notification"
)

// LogDispatcher only logs outcomes, for deployments without Redis
type LogDispatcher struct {
	logger *zap.Logger
}

var _ notification.Dispatcher = (*LogDispatcher)(nil)

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Notify(ctx context.Context, ledgerEntryID string, outcome notification.Outcome) error {
	d.logger.Info("Payment outcome",
		zap.String("ledger_entry_id", ledgerEntryID),
		zap.String("status", string(outcome.Status)),
		zap.String("beneficiary_id", outcome.BeneficiaryID),
		zap.Int64("amount_minor_units", outcome.AmountMinorUnits),
		zap.String("currency", outcome.Currency),
		zap.String("event_id", outcome.EventID))
	return nil
}
