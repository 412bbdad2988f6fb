package export

import (
	"bytes"
	"encoding/csv"
	"reflect"
	"testing"

	"github.com/ossprey/licenscope/internal/domain"
)

func sampleExportRecords() []domain.FileRecord {
	return []domain.FileRecord{
		{
			Index:     0,
			Path:      "LICENSE",
			Size:      512,
			Extension: "",
			Matches: domain.MatchList{
				{LicenseID: "mit", Confidence: 99.5},
				{LicenseID: "x11", Confidence: 30},
			},
			Detection: domain.DetectionDone,
		},
		{
			Index:     1,
			Path:      "src/main.py",
			Size:      2048,
			Extension: ".py",
			Matches:   domain.MatchList{},
			Detection: domain.DetectionSkipped,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleExportRecords()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if !reflect.DeepEqual(rows[0], csvHeader) {
		t.Errorf("header = %v, want %v", rows[0], csvHeader)
	}

	want1 := []string{"LICENSE", "LICENSE", "mit;x11", "99.50", "", "0.50", "done"}
	if !reflect.DeepEqual(rows[1], want1) {
		t.Errorf("row 1 = %v, want %v", rows[1], want1)
	}
	want2 := []string{"src/main.py", "main.py", "", "0.00", ".py", "2.00", "skipped"}
	if !reflect.DeepEqual(rows[2], want2) {
		t.Errorf("row 2 = %v, want %v", rows[2], want2)
	}
}

func TestWriteCSVNoRecords(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows, want header only", len(rows))
	}
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatCSV},
		{in: "csv", want: FormatCSV},
		{in: "CSV", want: FormatCSV},
		{in: "xlsx", want: FormatXLSX},
		{in: " Excel ", want: FormatXLSX},
		{in: "pdf", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q) expected error, got %s", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseFormat(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestFilenameAndContentType(t *testing.T) {
	if got := Filename("abc123", FormatCSV); got != "license_report_abc123.csv" {
		t.Errorf("csv filename = %q", got)
	}
	if got := Filename("abc123", FormatXLSX); got != "license_report_abc123.xlsx" {
		t.Errorf("xlsx filename = %q", got)
	}
	if got := FormatCSV.ContentType(); got != "text/csv" {
		t.Errorf("csv content type = %q", got)
	}
	if got := FormatXLSX.ContentType(); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("xlsx content type = %q", got)
	}
}
