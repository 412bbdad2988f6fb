package scan

import (
	"math"
	"reflect"
	"testing"

	"github.com/ossprey/licenscope/internal/domain"
)

func m(id string, confidence float64) domain.LicenseMatch {
	return domain.LicenseMatch{LicenseID: id, Confidence: confidence}
}

func rec(index int, path, ext string, matches ...domain.LicenseMatch) domain.FileRecord {
	r := domain.FileRecord{
		Index:     index,
		Path:      path,
		Extension: ext,
		Matches:   domain.MatchList(matches),
		Detection: domain.DetectionDone,
	}
	if len(matches) == 0 {
		r.Matches = domain.MatchList{}
		r.Detection = domain.DetectionSkipped
	}
	return r
}

func sampleRecords() []domain.FileRecord {
	return []domain.FileRecord{
		rec(0, "LICENSE", "", m("mit", 99.5), m("x11", 30)),
		rec(1, "README.md", ".md"),
		rec(2, "src/main.py", ".py", m("mit", 91)),
		rec(3, "vendor/lib.js", ".js", m("apache-2.0", 88)),
		rec(4, "src/weak.py", ".py", m("gpl-2.0", 45)),
	}
}

func TestAggregateBasic(t *testing.T) {
	summary := Aggregate(sampleRecords())

	if summary.TotalFiles != 5 {
		t.Errorf("TotalFiles = %d, want 5", summary.TotalFiles)
	}
	if summary.TotalMatches != 5 {
		t.Errorf("TotalMatches = %d, want 5", summary.TotalMatches)
	}
	if summary.FilesWithMatches != 4 {
		t.Errorf("FilesWithMatches = %d, want 4", summary.FilesWithMatches)
	}

	wantDistinct := domain.StringList{"apache-2.0", "gpl-2.0", "mit", "x11"}
	if !reflect.DeepEqual(summary.DistinctLicenses, wantDistinct) {
		t.Errorf("DistinctLicenses = %v, want %v", summary.DistinctLicenses, wantDistinct)
	}

	wantLicenses := domain.CountMap{"mit": 2, "x11": 1, "apache-2.0": 1, "gpl-2.0": 1}
	if !reflect.DeepEqual(summary.LicenseCounts, wantLicenses) {
		t.Errorf("LicenseCounts = %v, want %v", summary.LicenseCounts, wantLicenses)
	}

	wantExtensions := domain.CountMap{"": 1, ".md": 1, ".py": 2, ".js": 1}
	if !reflect.DeepEqual(summary.ExtensionCounts, wantExtensions) {
		t.Errorf("ExtensionCounts = %v, want %v", summary.ExtensionCounts, wantExtensions)
	}

	wantBuckets := domain.BucketList{0, 2, 0, 3}
	if !reflect.DeepEqual(summary.ConfidenceBuckets, wantBuckets) {
		t.Errorf("ConfidenceBuckets = %v, want %v", summary.ConfidenceBuckets, wantBuckets)
	}

	if want := 70.7; math.Abs(summary.AvgConfidence-want) > 1e-9 {
		t.Errorf("AvgConfidence = %v, want %v", summary.AvgConfidence, want)
	}
	if want := 30.0; summary.MinConfidence != want {
		t.Errorf("MinConfidence = %v, want %v", summary.MinConfidence, want)
	}
}

func TestAggregateEmpty(t *testing.T) {
	for name, records := range map[string][]domain.FileRecord{
		"nil":   nil,
		"empty": {},
	} {
		summary := Aggregate(records)

		if summary.TotalFiles != 0 || summary.TotalMatches != 0 || summary.FilesWithMatches != 0 {
			t.Errorf("%s: counts = %d/%d/%d, want zeros",
				name, summary.TotalFiles, summary.TotalMatches, summary.FilesWithMatches)
		}
		if summary.AvgConfidence != 0 || summary.MinConfidence != 0 {
			t.Errorf("%s: confidence stats = %v/%v, want zeros",
				name, summary.AvgConfidence, summary.MinConfidence)
		}
		if summary.DistinctLicenses == nil || len(summary.DistinctLicenses) != 0 {
			t.Errorf("%s: DistinctLicenses = %v, want empty non-nil", name, summary.DistinctLicenses)
		}
		if summary.LicenseCounts == nil || len(summary.LicenseCounts) != 0 {
			t.Errorf("%s: LicenseCounts = %v, want empty non-nil", name, summary.LicenseCounts)
		}
		if summary.ExtensionCounts == nil || len(summary.ExtensionCounts) != 0 {
			t.Errorf("%s: ExtensionCounts = %v, want empty non-nil", name, summary.ExtensionCounts)
		}
		if len(summary.ConfidenceBuckets) != domain.ConfidenceBucketCount {
			t.Fatalf("%s: bucket count = %d, want %d",
				name, len(summary.ConfidenceBuckets), domain.ConfidenceBucketCount)
		}
		for i, n := range summary.ConfidenceBuckets {
			if n != 0 {
				t.Errorf("%s: bucket %d = %d, want 0", name, i, n)
			}
		}
	}
}

func TestAggregateBucketBoundaries(t *testing.T) {
	records := []domain.FileRecord{
		rec(0, "a.py", ".py", m("l0", 0), m("l1", 24.9)),
		rec(1, "b.py", ".py", m("l2", 25), m("l3", 49.9)),
		rec(2, "c.py", ".py", m("l4", 50), m("l5", 74.9)),
		rec(3, "d.py", ".py", m("l6", 75), m("l7", 100)),
	}

	summary := Aggregate(records)

	want := domain.BucketList{2, 2, 2, 2}
	if !reflect.DeepEqual(summary.ConfidenceBuckets, want) {
		t.Errorf("ConfidenceBuckets = %v, want %v", summary.ConfidenceBuckets, want)
	}
	if summary.TotalMatches != 8 {
		t.Errorf("TotalMatches = %d, want 8", summary.TotalMatches)
	}
	if summary.MinConfidence != 0 {
		t.Errorf("MinConfidence = %v, want 0", summary.MinConfidence)
	}
}

func TestAggregateDuplicateLicenseIDs(t *testing.T) {
	records := []domain.FileRecord{
		rec(0, "dual.py", ".py", m("mit", 90), m("mit", 60)),
	}

	summary := Aggregate(records)

	if summary.TotalMatches != 2 {
		t.Errorf("TotalMatches = %d, want 2", summary.TotalMatches)
	}
	if summary.FilesWithMatches != 1 {
		t.Errorf("FilesWithMatches = %d, want 1", summary.FilesWithMatches)
	}
	if got := summary.LicenseCounts["mit"]; got != 2 {
		t.Errorf("LicenseCounts[mit] = %d, want 2", got)
	}
	if want := domain.StringList{"mit"}; !reflect.DeepEqual(summary.DistinctLicenses, want) {
		t.Errorf("DistinctLicenses = %v, want %v", summary.DistinctLicenses, want)
	}
	if summary.MinConfidence != 60 {
		t.Errorf("MinConfidence = %v, want 60", summary.MinConfidence)
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	base := sampleRecords()

	reversed := make([]domain.FileRecord, len(base))
	for i, r := range base {
		reversed[len(base)-1-i] = r
	}
	shuffled := []domain.FileRecord{base[2], base[0], base[4], base[1], base[3]}

	want := Aggregate(base)
	for name, records := range map[string][]domain.FileRecord{
		"reversed": reversed,
		"shuffled": shuffled,
	} {
		if got := Aggregate(records); !reflect.DeepEqual(got, want) {
			t.Errorf("%s: summary differs from original order:\n got %+v\nwant %+v", name, got, want)
		}
	}
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	records := sampleRecords()
	snapshot := make([]domain.FileRecord, len(records))
	copy(snapshot, records)

	first := Aggregate(records)
	second := Aggregate(records)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated aggregation differs:\n got %+v\nwant %+v", second, first)
	}
	if !reflect.DeepEqual(records, snapshot) {
		t.Error("Aggregate mutated its input")
	}
}
