package export

import (
	"fmt"
	"strings"

	"github.com/ossprey/licenscope/internal/domain"
)

// Format selects the report rendering.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a user-supplied format string to a Format. The empty
// string defaults to CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type served with the rendered report.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Filename returns the attachment filename for a job's report.
func Filename(jobID string, f Format) string {
	return fmt.Sprintf("license_report_%s.%s", jobID, f)
}

func joinLicenses(matches domain.MatchList) string {
	if len(matches) == 0 {
		return ""
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.LicenseID)
	}
	return strings.Join(ids, ";")
}

// displayExtension renders the empty extension readably in human-facing output.
func displayExtension(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return ext
}
