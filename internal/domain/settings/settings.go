package settings

import (
	"context"

	"github.com/wekeepgrowing/academy-payments/internal/domain/provider"
)

// Provider supplies academy-wide payment settings. Values may be cached and
// slightly stale.
type Provider interface {
	Currency(ctx context.Context) (string, error)
	DueDays(ctx context.Context) (int, error)
	GatewaySelection(ctx context.Context) (provider.GatewayType, error)
}
