package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/academy-payments/internal/domain/notification"
)

// ErrDispatcherClosed is returned by Notify after Close
var ErrDispatcherClosed = errors.New("notification dispatcher closed")

// ResultRecorder counts delivery results
type ResultRecorder interface {
	NotificationSent(result string)
}

// AsyncDispatcher delivers each notification on its own goroutine within a
// timeout. Notify returns immediately and delivery failures are only logged.
type AsyncDispatcher struct {
	next     notification.Dispatcher
	timeout  time.Duration
	logger   *zap.Logger
	recorder ResultRecorder

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ notification.Dispatcher = (*AsyncDispatcher)(nil)

// NewAsyncDispatcher wraps next. recorder may be nil.
func NewAsyncDispatcher(next notification.Dispatcher, timeout time.Duration, logger *zap.Logger, recorder ResultRecorder) *AsyncDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsyncDispatcher{
		next:     next,
		timeout:  timeout,
		logger:   logger,
		recorder: recorder,
	}
}

// Notify schedules delivery
func (d *AsyncDispatcher) Notify(ctx context.Context, ledgerEntryID string, outcome notification.Outcome) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.next.Notify(sendCtx, ledgerEntryID, outcome); err != nil {
			d.logger.Warn("Failed to deliver payment outcome notification",
				zap.String("ledger_entry_id", ledgerEntryID),
				zap.String("status", string(outcome.Status)),
				zap.Error(err))
			d.record("error")
			return
		}
		d.record("sent")
	}()
	return nil
}

// Close rejects new notifications and waits for in-flight deliveries
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *AsyncDispatcher) record(result string) {
	if d.recorder != nil {
		d.recorder.NotificationSent(result)
	}
}
