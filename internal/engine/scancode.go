package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ossprey/licenscope/internal/domain"
)

// ScanCode shells out to the scancode-toolkit CLI, one file per invocation.
type ScanCode struct {
	bin string
}

// NewScanCode creates a ScanCode engine.
// Parameters:
//   - bin: path to the scancode executable; empty means "scancode" on PATH.
//
// Returns:
//   - *ScanCode: initialized engine.
func NewScanCode(bin string) *ScanCode {
	if bin == "" {
		bin = "scancode"
	}
	return &ScanCode{bin: bin}
}

// Name returns the engine identifier.
func (s *ScanCode) Name() string { return ProviderScanCode }

// Detect runs the CLI with license detection only and decodes its JSON
// report. The report goes through a temp file because scancode mixes
// progress output into stdout.
// Parameters:
//   - ctx: deadline for the subprocess; the process is killed on expiry.
//   - path: regular file to scan.
//
// Returns:
//   - []domain.LicenseMatch: matches in report order, scores on a 0-100 scale.
//   - error: ctx.Err() on timeout, otherwise a wrapped CLI or decode failure.
func (s *ScanCode) Detect(ctx context.Context, path string) ([]domain.LicenseMatch, error) {
	out := filepath.Join(os.TempDir(), "scancode-"+uuid.NewString()+".json")
	defer os.Remove(out)

	cmd := exec.CommandContext(ctx, s.bin,
		"--license",
		"--quiet",
		"--strip-root",
		"--json-pp", out,
		path,
	)
	if raw, err := cmd.CombinedOutput(); err != nil {
		// CommandContext reports the kill, not the cause; surface the
		// deadline so the gateway can tell a timeout from a crash.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("scancode failed: %w: %s", err, strings.TrimSpace(string(raw)))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read scancode report: %w", err)
	}
	return parseScanCodeReport(data)
}

// scancodeReport mirrors the slice of the CLI JSON output we consume.
type scancodeReport struct {
	Files []struct {
		Path     string `json:"path"`
		Type     string `json:"type"`
		Licenses []struct {
			Key         string  `json:"key"`
			Score       float64 `json:"score"`
			MatchedText string  `json:"matched_text"`
		} `json:"licenses"`
	} `json:"files"`
}

func parseScanCodeReport(data []byte) ([]domain.LicenseMatch, error) {
	var report scancodeReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode scancode report: %w", err)
	}

	var matches []domain.LicenseMatch
	for _, f := range report.Files {
		if f.Type == "directory" {
			continue
		}
		for _, lic := range f.Licenses {
			if lic.Key == "" {
				continue
			}
			matches = append(matches, domain.LicenseMatch{
				LicenseID:  lic.Key,
				Confidence: lic.Score,
				Excerpt:    lic.MatchedText,
			})
		}
	}
	return matches, nil
}
