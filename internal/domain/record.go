package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
)

// Classification tags what kind of file the classifier saw.
type Classification string

const (
	ClassCode        Classification = "code"
	ClassLicenseFile Classification = "license_file"
	ClassBinary      Classification = "binary"
	ClassOther       Classification = "other"
	ClassUnreadable  Classification = "unreadable"
)

// DetectionStatus is the per-file outcome of the detection stage.
// timed_out and error are non-fatal: the job still completes.
type DetectionStatus string

const (
	DetectionPending  DetectionStatus = "pending"
	DetectionDone     DetectionStatus = "done"
	DetectionSkipped  DetectionStatus = "skipped"
	DetectionTimedOut DetectionStatus = "timed_out"
	DetectionError    DetectionStatus = "error"
)

// LicenseMatch is one detected license occurrence within a file. Scores are
// whatever the engine reported on a 0-100 scale, passed through unmodified.
type LicenseMatch struct {
	LicenseID  string  `json:"license_id"`
	Confidence float64 `json:"confidence"`
	Excerpt    string  `json:"excerpt,omitempty"`
}

// MatchList is a custom type for storing license matches as JSON in the database.
type MatchList []LicenseMatch

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (m MatchList) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (m *MatchList) Scan(value interface{}) error {
	if value == nil {
		*m = MatchList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan MatchList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// NormalizeExtension lowercases an extension and guarantees a leading dot,
// so "PY", "py" and ".Py" all compare equal. Empty stays empty.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// FileRecord is the per-file scan outcome. The classifier creates the
// skeleton (index, path, size, classification); the detection stage fills in
// matches and timing. Records are immutable once their detection status is
// set.
type FileRecord struct {
	RowID          uint            `gorm:"primaryKey;autoIncrement" json:"-"`
	JobID          string          `gorm:"type:text;not null;index:idx_file_records_job" json:"-"`
	Index          int             `gorm:"column:file_index" json:"index"`
	Path           string          `gorm:"type:text;not null" json:"path"`
	Size           int64           `json:"size"`
	Extension      string          `gorm:"type:text" json:"extension"`
	MIMEType       string          `gorm:"type:text" json:"mime_type"`
	Classification Classification  `gorm:"type:text" json:"classification"`
	Scannable      bool            `gorm:"-" json:"-"`
	Matches        MatchList       `gorm:"type:text" json:"matches"`
	Detection      DetectionStatus `gorm:"type:text" json:"detection"`
	ScanDurationMS int64           `json:"scan_duration_ms"`
}

// TableName returns the database table name for FileRecord.
func (FileRecord) TableName() string {
	return "file_records"
}

// TopMatch returns the highest-confidence match, or nil when the file has
// none.
func (r *FileRecord) TopMatch() *LicenseMatch {
	if len(r.Matches) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(r.Matches); i++ {
		if r.Matches[i].Confidence > r.Matches[best].Confidence {
			best = i
		}
	}
	return &r.Matches[best]
}

// MaxConfidence returns the confidence of the best match, or 0 with no matches.
func (r *FileRecord) MaxConfidence() float64 {
	if m := r.TopMatch(); m != nil {
		return m.Confidence
	}
	return 0
}
