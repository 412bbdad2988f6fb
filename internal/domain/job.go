package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status represents the lifecycle state of a scan job.
//
// Valid status graph:
//
//	created -> extracting -> classifying -> detecting -> aggregating -> completed
//
// Every non-terminal state may also move to failed or cancelled.
// completed, failed and cancelled are terminal states.
type Status string

const (
	StatusCreated     Status = "created"
	StatusExtracting  Status = "extracting"
	StatusClassifying Status = "classifying"
	StatusDetecting   Status = "detecting"
	StatusAggregating Status = "aggregating"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// validTransitions lists every allowed (from -> to) pair.
var validTransitions = map[Status][]Status{
	StatusCreated:     {StatusExtracting, StatusFailed, StatusCancelled},
	StatusExtracting:  {StatusClassifying, StatusFailed, StatusCancelled},
	StatusClassifying: {StatusDetecting, StatusFailed, StatusCancelled},
	StatusDetecting:   {StatusAggregating, StatusFailed, StatusCancelled},
	StatusAggregating: {StatusCompleted, StatusFailed, StatusCancelled},
	// completed, failed and cancelled are terminal — no outgoing transitions
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusCreated, StatusExtracting, StatusClassifying, StatusDetecting,
		StatusAggregating, StatusCompleted, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// CanTransition returns true when moving from -> to is permitted by the
// state machine.
func CanTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state — no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true when the status has no outgoing transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ScanOptions holds the per-job classification options captured at creation.
type ScanOptions struct {
	Recursive     bool     `json:"recursive"`
	IncludeBinary bool     `json:"include_binary"`
	Extensions    []string `json:"extensions,omitempty"` // empty means all scannable extensions
}

// Value implements the driver.Valuer interface for database serialization.
func (o ScanOptions) Value() (driver.Value, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (o *ScanOptions) Scan(value interface{}) error {
	if value == nil {
		*o = ScanOptions{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan ScanOptions")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, o)
}

// Job represents one end-to-end scan run over a single uploaded archive.
// Owned by the orchestrator while running; read-only afterwards except
// deletion.
type Job struct {
	ID                string      `gorm:"type:text;primaryKey" json:"id"`
	ArchiveName       string      `gorm:"type:text;not null" json:"archive_name"`
	ArchiveSize       int64       `json:"archive_size"`
	ArchiveFormat     string      `gorm:"type:text" json:"archive_format"`
	ArchiveKey        string      `gorm:"type:text" json:"-"`
	Status            Status      `gorm:"type:text;index:idx_scan_jobs_status;default:created" json:"status"`
	Options           ScanOptions `gorm:"type:text" json:"options"`
	TotalFiles        int         `gorm:"default:0" json:"total_files"`
	ProcessedFiles    int         `gorm:"default:0" json:"processed_files"`
	DetectionFailures int         `gorm:"default:0" json:"detection_failures"`
	ErrorKind         string      `gorm:"type:text" json:"error_kind,omitempty"`
	ErrorDetail       string      `gorm:"type:text" json:"error_detail,omitempty"`
	StartedAt         *time.Time  `json:"started_at,omitempty"`
	FinishedAt        *time.Time  `json:"finished_at,omitempty"`
	DurationMS        int64       `gorm:"default:0" json:"duration_ms"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Job.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Job) TableName() string {
	return "scan_jobs"
}
