package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ossprey/licenscope/internal/domain"
)

// Supported engine providers.
const (
	ProviderScanCode = "scancode"
	ProviderRemote   = "remote"
)

// Engine detects licenses in a single file. Implementations must be safe for
// concurrent use: the detection worker pool calls Detect from multiple
// goroutines.
type Engine interface {
	// Name identifies the engine in logs and reports.
	Name() string

	// Detect scans one regular file and returns the raw matches, in engine
	// order, with confidence passed through unmodified on a 0-100 scale.
	Detect(ctx context.Context, path string) ([]domain.LicenseMatch, error)
}

// Config selects and configures the detection engine.
type Config struct {
	Provider    string        // scancode or remote
	ScanCodeBin string        // scancode executable, defaults to "scancode"
	BaseURL     string        // remote detection service base URL
	APIKey      string        // remote detection service bearer token
	Timeout     time.Duration // per-file detection budget, applied by the Gateway
}

// New builds the configured engine.
// Parameters:
//   - cfg: engine configuration including provider selection.
//
// Returns:
//   - Engine: ready-to-use detection engine.
//   - error: non-nil if the provider is unknown.
func New(cfg Config) (Engine, error) {
	switch cfg.Provider {
	case "", ProviderScanCode:
		return NewScanCode(cfg.ScanCodeBin), nil
	case ProviderRemote:
		return NewRemote(RemoteConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey}), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Provider)
	}
}
