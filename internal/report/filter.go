package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ossprey/licenscope/internal/domain"
)

// SortKey selects the ordering of file query results.
type SortKey string

const (
	// SortByPath orders by relative path, ascending by default.
	SortByPath SortKey = "path"
	// SortByConfidence orders by each file's best match confidence,
	// descending by default.
	SortByConfidence SortKey = "confidence"
	// SortByLicense orders by each file's best match license id, ascending
	// by default. Files without matches sort first.
	SortByLicense SortKey = "license"
)

// Explicit sort directions overriding a key's default.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ParseSortKey validates a user-supplied sort key. Empty input falls back
// to path order.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortByPath:
		return SortByPath, nil
	case SortByConfidence:
		return SortByConfidence, nil
	case SortByLicense:
		return SortByLicense, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

// Filter narrows and orders per-file query results. The zero value keeps
// every record in path order. Filters never mutate their input and applying
// the same filter twice yields the same result.
type Filter struct {
	// License keeps files where any match's license id contains this
	// substring, case-insensitively.
	License string
	// Extension keeps files with this extension; compared dot-normalized
	// and case-insensitively, so "py", ".py" and "PY" are equivalent.
	Extension string
	// MinConfidence keeps files with at least one match at or above the
	// threshold. Zero disables the check.
	MinConfidence float64
	// SortBy is the ordering key; empty means SortByPath.
	SortBy SortKey
	// Order overrides the key's default direction with OrderAsc/OrderDesc.
	Order string
}

// Apply returns the records that pass the filter, ordered by the sort key,
// with ties broken by file index. The input slice is left untouched.
func (f Filter) Apply(records []domain.FileRecord) []domain.FileRecord {
	out := make([]domain.FileRecord, 0, len(records))
	for i := range records {
		if f.keep(&records[i]) {
			out = append(out, records[i])
		}
	}
	f.sortRecords(out)
	return out
}

func (f Filter) keep(r *domain.FileRecord) bool {
	if f.License != "" {
		needle := strings.ToLower(f.License)
		found := false
		for _, m := range r.Matches {
			if strings.Contains(strings.ToLower(m.LicenseID), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Extension != "" && r.Extension != domain.NormalizeExtension(f.Extension) {
		return false
	}
	if f.MinConfidence > 0 && r.MaxConfidence() < f.MinConfidence {
		return false
	}
	return true
}

func (f Filter) sortRecords(records []domain.FileRecord) {
	key := f.SortBy
	if key == "" {
		key = SortByPath
	}

	var compare func(a, b *domain.FileRecord) int
	switch key {
	case SortByConfidence:
		compare = func(a, b *domain.FileRecord) int {
			switch ca, cb := a.MaxConfidence(), b.MaxConfidence(); {
			case ca < cb:
				return -1
			case ca > cb:
				return 1
			default:
				return 0
			}
		}
	case SortByLicense:
		compare = func(a, b *domain.FileRecord) int {
			return strings.Compare(topLicenseID(a), topLicenseID(b))
		}
	default:
		compare = func(a, b *domain.FileRecord) int {
			return strings.Compare(a.Path, b.Path)
		}
	}

	descending := key == SortByConfidence
	switch strings.ToLower(f.Order) {
	case OrderAsc:
		descending = false
	case OrderDesc:
		descending = true
	}

	sort.SliceStable(records, func(i, j int) bool {
		c := compare(&records[i], &records[j])
		if descending {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		// Equal keys fall back to classification order so pagination stays
		// stable across calls.
		return records[i].Index < records[j].Index
	})
}

func topLicenseID(r *domain.FileRecord) string {
	if m := r.TopMatch(); m != nil {
		return m.LicenseID
	}
	return ""
}
