package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// ConfidenceBucketCount is the number of fixed histogram buckets:
// [0,25) [25,50) [50,75) [75,100].
const ConfidenceBucketCount = 4

// StringList is a custom type for storing string slices as JSON in the database.
type StringList []string

// Value implements the driver.Valuer interface for database serialization.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, l)
}

// CountMap is a custom type for storing string-to-count maps as JSON in the database.
type CountMap map[string]int

// Value implements the driver.Valuer interface for database serialization.
func (m CountMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *CountMap) Scan(value interface{}) error {
	if value == nil {
		*m = CountMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan CountMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// BucketList is a custom type for storing the confidence histogram as JSON in
// the database. Index i counts matches with confidence in bucket i.
type BucketList []int

// Value implements the driver.Valuer interface for database serialization.
func (b BucketList) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (b *BucketList) Scan(value interface{}) error {
	if value == nil {
		*b = BucketList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan BucketList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, b)
}

// ReportSummary is the derived aggregate over a job's file records. It is a
// pure function of the record set and is never mutated independently.
type ReportSummary struct {
	JobID             string     `gorm:"type:text;primaryKey" json:"-"`
	TotalFiles        int        `json:"total_files"`
	TotalMatches      int        `json:"total_matches"`
	FilesWithMatches  int        `json:"files_with_matches"`
	DistinctLicenses  StringList `gorm:"type:text" json:"distinct_licenses"`
	LicenseCounts     CountMap   `gorm:"type:text" json:"license_counts"`
	ExtensionCounts   CountMap   `gorm:"type:text" json:"extension_counts"`
	ConfidenceBuckets BucketList `gorm:"type:text" json:"confidence_buckets"`
	AvgConfidence     float64    `json:"avg_confidence"`
	MinConfidence     float64    `json:"min_confidence"`
}

// TableName returns the database table name for ReportSummary.
func (ReportSummary) TableName() string {
	return "report_summaries"
}
