package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"path"

	"github.com/ossprey/licenscope/internal/domain"
)

// csvHeader is the report download row shape: one row per file, licenses
// joined with ";".
var csvHeader = []string{
	"File Path",
	"File Name",
	"Licenses",
	"Confidence",
	"Extension",
	"File Size (KB)",
	"Detection",
}

// WriteCSV renders the records as a CSV report.
// Parameters:
//   - w: destination stream.
//   - records: file records in the order they should appear.
//
// Returns:
//   - error: the first write error, if any.
func WriteCSV(w io.Writer, records []domain.FileRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i := range records {
		if err := cw.Write(csvRow(&records[i])); err != nil {
			return fmt.Errorf("failed to write csv row for %s: %w", records[i].Path, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(rec *domain.FileRecord) []string {
	return []string{
		rec.Path,
		path.Base(rec.Path),
		joinLicenses(rec.Matches),
		fmt.Sprintf("%.2f", rec.MaxConfidence()),
		rec.Extension,
		fmt.Sprintf("%.2f", float64(rec.Size)/1024),
		string(rec.Detection),
	}
}
