package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/wekeepgrowing/academy-payments/internal/domain/notification"
	"github.com/wekeepgrowing/academy-payments/internal/domain/provider"
)

// MockGateway is a mock implementation of provider.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string {
	return "stripe"
}

func (m *MockGateway) CreateIntent(ctx context.Context, req *provider.CreateIntentRequest) (*provider.CreateIntentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CreateIntentResponse), args.Error(1)
}

func (m *MockGateway) VerifyAndParseEvent(payload []byte, signatureHeader string) (*provider.Event, error) {
	args := m.Called(payload, signatureHeader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Event), args.Error(1)
}

// fakeSettings returns fixed academy settings
type fakeSettings struct {
	currency  string
	dueDays   int
	selection provider.GatewayType
	err       error
}

func (f *fakeSettings) Currency(ctx context.Context) (string, error) { return f.currency, f.err }
func (f *fakeSettings) DueDays(ctx context.Context) (int, error)     { return f.dueDays, f.err }
func (f *fakeSettings) GatewaySelection(ctx context.Context) (provider.GatewayType, error) {
	return f.selection, f.err
}

// staticResolver resolves every selection except none to one gateway
type staticResolver struct {
	gateway provider.Gateway
}

func (r staticResolver) Resolve(selection provider.GatewayType) (provider.Gateway, error) {
	if selection == provider.GatewayTypeNone || r.gateway == nil {
		return nil, assertErr("no gateway configured")
	}
	return r.gateway, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

// recordingDispatcher captures notifications
type recordingDispatcher struct {
	mu       sync.Mutex
	outcomes map[string][]notification.Outcome
	err      error
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{outcomes: make(map[string][]notification.Outcome)}
}

func (d *recordingDispatcher) Notify(ctx context.Context, ledgerEntryID string, outcome notification.Outcome) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outcomes[ledgerEntryID] = append(d.outcomes[ledgerEntryID], outcome)
	return d.err
}

func (d *recordingDispatcher) count(ledgerEntryID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.outcomes[ledgerEntryID])
}

func (d *recordingDispatcher) total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, o := range d.outcomes {
		n += len(o)
	}
	return n
}

// fakeRecorder counts recorded metrics by label
type fakeRecorder struct {
	mu       sync.Mutex
	intents  map[string]int
	webhooks map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{intents: make(map[string]int), webhooks: make(map[string]int)}
}

func (r *fakeRecorder) IntentCreated(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents[result]++
}

func (r *fakeRecorder) GatewayCall(gateway, result string, d time.Duration) {}

func (r *fakeRecorder) WebhookHandled(eventType, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks[outcome]++
}

func (r *fakeRecorder) webhookCount(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.webhooks[outcome]
}
