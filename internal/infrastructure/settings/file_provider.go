package settings

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wekeepgrowing/academy-payments/internal/domain/money"
	"github.com/wekeepgrowing/academy-payments/internal/domain/provider"
	domainSettings "github.com/wekeepgrowing/academy-payments/internal/domain/settings"
)

type academyFile struct {
	Academy academyEntry `yaml:"academy"`
}

type academyEntry struct {
	Name             string `yaml:"name"`
	Currency         string `yaml:"currency"`
	DueDays          *int   `yaml:"due_days"`
	GatewaySelection string `yaml:"gateway_selection"`
}

type snapshot struct {
	currency  string
	dueDays   int
	selection provider.GatewayType
}

// FileProvider reads academy settings from a YAML file and caches them for ttl
type FileProvider struct {
	path   string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	cached   *snapshot
	loadedAt time.Time
}

var _ domainSettings.Provider = (*FileProvider)(nil)

// NewFileProvider creates a settings provider backed by path. A zero ttl
// rereads the file on every call.
func NewFileProvider(path string, ttl time.Duration, logger *zap.Logger) *FileProvider {
	return &FileProvider{
		path:   path,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

func (p *FileProvider) Currency(ctx context.Context) (string, error) {
	s, err := p.load()
	if err != nil {
		return "", err
	}
	return s.currency, nil
}

func (p *FileProvider) DueDays(ctx context.Context) (int, error) {
	s, err := p.load()
	if err != nil {
		return 0, err
	}
	return s.dueDays, nil
}

func (p *FileProvider) GatewaySelection(ctx context.Context) (provider.GatewayType, error) {
	s, err := p.load()
	if err != nil {
		return "", err
	}
	return s.selection, nil
}

// load returns the cached snapshot or rereads the file. A failed reread keeps
// serving the last good snapshot.
func (p *FileProvider) load() (*snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && p.now().Sub(p.loadedAt) < p.ttl {
		return p.cached, nil
	}

	s, err := readSettings(p.path)
	if err != nil {
		if p.cached != nil {
			p.logger.Warn("Failed to reload academy settings, serving cached values",
				zap.String("path", p.path),
				zap.Error(err))
			return p.cached, nil
		}
		return nil, err
	}

	if p.cached == nil || *p.cached != *s {
		p.logger.Info("Academy settings loaded",
			zap.String("path", p.path),
			zap.String("currency", s.currency),
			zap.Int("due_days", s.dueDays),
			zap.String("gateway_selection", string(s.selection)))
	}
	p.cached = s
	p.loadedAt = p.now()
	return s, nil
}

func readSettings(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read academy settings file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("academy settings file %s is empty", path)
	}

	var file academyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal academy settings yaml: %w", err)
	}

	currency, err := money.NormalizeCurrency(file.Academy.Currency)
	if err != nil {
		return nil, fmt.Errorf("academy.currency: %w", err)
	}

	dueDays := 30
	if file.Academy.DueDays != nil {
		dueDays = *file.Academy.DueDays
	}
	if dueDays < 0 {
		return nil, fmt.Errorf("academy.due_days must not be negative")
	}

	selection := provider.GatewayType(strings.ToLower(strings.TrimSpace(file.Academy.GatewaySelection)))
	switch selection {
	case "":
		selection = provider.GatewayTypeNone
	case provider.GatewayTypeNone, provider.GatewayTypeStripe, provider.GatewayTypeRazorpay:
	default:
		return nil, fmt.Errorf("academy.gateway_selection: unknown gateway %q", selection)
	}

	return &snapshot{currency: currency, dueDays: dueDays, selection: selection}, nil
}
