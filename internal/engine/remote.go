package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ossprey/licenscope/internal/domain"
)

// RemoteConfig holds the remote detection service settings.
type RemoteConfig struct {
	BaseURL string
	APIKey  string
}

// Remote sends file content to an HTTP license detection service.
type Remote struct {
	client   *resty.Client
	endpoint string
}

// NewRemote creates a client for the remote detection API.
// Parameters:
//   - cfg: base URL and credentials.
//
// Returns:
//   - *Remote: initialized client wrapper.
func NewRemote(cfg RemoteConfig) *Remote {
	client := resty.New()
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	client.SetHeader("Content-Type", "application/json")
	// Hard upper bound only; the per-file budget comes from the request
	// context set by the gateway.
	client.SetTimeout(5 * time.Minute)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8081"
	}

	return &Remote{
		client:   client,
		endpoint: strings.TrimSuffix(baseURL, "/") + "/v1/detect",
	}
}

// Name returns the engine identifier.
func (r *Remote) Name() string { return ProviderRemote }

// Detection API request/response structures.
type detectRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"` // base64-encoded file content
}

type detectResponse struct {
	Matches []struct {
		LicenseID  string  `json:"license_id"`
		Confidence float64 `json:"confidence"`
		Excerpt    string  `json:"excerpt,omitempty"`
	} `json:"matches"`
	Error string `json:"error,omitempty"`
}

// Detect uploads one file's content and returns the service's matches.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: regular file to scan.
//
// Returns:
//   - []domain.LicenseMatch: matches in response order, scores 0-100.
//   - error: ctx.Err() on timeout, otherwise a wrapped transport or API error.
func (r *Remote) Detect(ctx context.Context, path string) ([]domain.LicenseMatch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	req := detectRequest{
		Filename: filepath.Base(path),
		Content:  base64.StdEncoding.EncodeToString(data),
	}

	var resp detectResponse
	httpResp, err := r.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(r.endpoint)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to call detection API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != "" {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return nil, fmt.Errorf("detection API returned error: %s", errorMsg)
	}

	if resp.Error != "" {
		return nil, fmt.Errorf("detection API error: %s", resp.Error)
	}

	matches := make([]domain.LicenseMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, domain.LicenseMatch{
			LicenseID:  m.LicenseID,
			Confidence: m.Confidence,
			Excerpt:    m.Excerpt,
		})
	}
	return matches, nil
}
