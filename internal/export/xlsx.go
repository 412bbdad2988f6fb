package export

import (
	"fmt"
	"io"
	"path"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/ossprey/licenscope/internal/domain"
)

const (
	summarySheet = "Summary"
	filesSheet   = "Files"
)

// WriteXLSX renders the full report as a two-sheet workbook: Summary carries
// the aggregate numbers and per-license/per-extension counts, Files one row
// per record in the same shape as the CSV export.
// Parameters:
//   - w: destination stream.
//   - job: the job the report belongs to.
//   - summary: aggregate over the job's records.
//   - records: file records in the order they should appear.
//
// Returns:
//   - error: the first workbook error, if any.
func WriteXLSX(w io.Writer, job *domain.Job, summary *domain.ReportSummary, records []domain.FileRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to prepare summary sheet: %w", err)
	}
	if err := writeSummarySheet(f, job, summary); err != nil {
		return err
	}
	if _, err := f.NewSheet(filesSheet); err != nil {
		return fmt.Errorf("failed to create files sheet: %w", err)
	}
	if err := writeFilesSheet(f, records); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, job *domain.Job, summary *domain.ReportSummary) error {
	rows := [][]interface{}{
		{"Archive", job.ArchiveName},
		{"Job ID", job.ID},
		{"Status", string(job.Status)},
		{"Total Files", summary.TotalFiles},
		{"Files With Matches", summary.FilesWithMatches},
		{"Total Matches", summary.TotalMatches},
		{"Detection Failures", job.DetectionFailures},
		{"Distinct Licenses", len(summary.DistinctLicenses)},
		{"Avg Confidence", summary.AvgConfidence},
		{"Min Confidence", summary.MinConfidence},
		{"Duration (ms)", job.DurationMS},
		{},
		{"License", "Matches"},
	}
	for _, key := range summary.DistinctLicenses {
		rows = append(rows, []interface{}{key, summary.LicenseCounts[key]})
	}
	rows = append(rows, []interface{}{}, []interface{}{"Extension", "Files"})
	for _, ext := range sortedKeys(summary.ExtensionCounts) {
		rows = append(rows, []interface{}{displayExtension(ext), summary.ExtensionCounts[ext]})
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}
	return nil
}

func writeFilesSheet(f *excelize.File, records []domain.FileRecord) error {
	header := []interface{}{
		"File Path", "File Name", "Licenses", "Confidence", "Extension", "File Size (KB)", "Detection",
	}
	if err := f.SetSheetRow(filesSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write files header: %w", err)
	}
	for i := range records {
		rec := &records[i]
		row := []interface{}{
			rec.Path,
			path.Base(rec.Path),
			joinLicenses(rec.Matches),
			rec.MaxConfidence(),
			displayExtension(rec.Extension),
			float64(rec.Size) / 1024,
			string(rec.Detection),
		}
		if err := f.SetSheetRow(filesSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("failed to write files row for %s: %w", rec.Path, err)
		}
	}
	return nil
}

func sortedKeys(m domain.CountMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
