package scan

import (
	"sort"

	"github.com/ossprey/licenscope/internal/domain"
)

// Aggregate folds a job's full record set into its report summary. It is a
// pure function: the same records in any order produce the same summary, the
// input is never mutated, and it cannot fail.
//
// Every record counts toward TotalFiles and the extension histogram,
// including skipped and unreadable ones; the confidence statistics cover
// matches only.
func Aggregate(records []domain.FileRecord) domain.ReportSummary {
	summary := domain.ReportSummary{
		TotalFiles:        len(records),
		DistinctLicenses:  domain.StringList{},
		LicenseCounts:     domain.CountMap{},
		ExtensionCounts:   domain.CountMap{},
		ConfidenceBuckets: make(domain.BucketList, domain.ConfidenceBucketCount),
	}

	var confidenceSum, minConfidence float64
	distinct := make(map[string]struct{})

	for i := range records {
		r := &records[i]
		summary.ExtensionCounts[r.Extension]++
		if len(r.Matches) > 0 {
			summary.FilesWithMatches++
		}
		for _, match := range r.Matches {
			if summary.TotalMatches == 0 || match.Confidence < minConfidence {
				minConfidence = match.Confidence
			}
			summary.TotalMatches++
			summary.LicenseCounts[match.LicenseID]++
			summary.ConfidenceBuckets[bucketFor(match.Confidence)]++
			confidenceSum += match.Confidence
			distinct[match.LicenseID] = struct{}{}
		}
	}

	for id := range distinct {
		summary.DistinctLicenses = append(summary.DistinctLicenses, id)
	}
	sort.Strings(summary.DistinctLicenses)

	if summary.TotalMatches > 0 {
		summary.AvgConfidence = confidenceSum / float64(summary.TotalMatches)
		summary.MinConfidence = minConfidence
	}
	return summary
}

// bucketFor maps a 0-100 confidence to its histogram bucket:
// [0,25) [25,50) [50,75) [75,100].
func bucketFor(confidence float64) int {
	switch {
	case confidence < 25:
		return 0
	case confidence < 50:
		return 1
	case confidence < 75:
		return 2
	default:
		return 3
	}
}
