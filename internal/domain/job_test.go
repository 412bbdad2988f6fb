package domain

import "testing"

func TestParseStatus(t *testing.T) {
	valid := []string{
		"created", "extracting", "classifying", "detecting",
		"aggregating", "completed", "failed", "cancelled",
	}
	for _, s := range valid {
		got, err := ParseStatus(s)
		if err != nil {
			t.Errorf("ParseStatus(%q) returned unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseStatus(%q) = %q, want %q", s, got, s)
		}
	}

	for _, s := range []string{"", "running", "CREATED", "done"} {
		if _, err := ParseStatus(s); err == nil {
			t.Errorf("ParseStatus(%q) expected error, got nil", s)
		}
	}
}

func TestCanTransitionPipelineOrder(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
	}{
		{StatusCreated, StatusExtracting},
		{StatusExtracting, StatusClassifying},
		{StatusClassifying, StatusDetecting},
		{StatusDetecting, StatusAggregating},
		{StatusAggregating, StatusCompleted},
	}
	for _, c := range cases {
		if !CanTransition(c.from, c.to) {
			t.Errorf("CanTransition(%s -> %s) should be true", c.from, c.to)
		}
	}
}

func TestCanTransitionToFailedAndCancelled(t *testing.T) {
	nonTerminals := []Status{
		StatusCreated, StatusExtracting, StatusClassifying,
		StatusDetecting, StatusAggregating,
	}
	for _, from := range nonTerminals {
		if !CanTransition(from, StatusFailed) {
			t.Errorf("CanTransition(%s -> failed) should be true", from)
		}
		if !CanTransition(from, StatusCancelled) {
			t.Errorf("CanTransition(%s -> cancelled) should be true", from)
		}
	}
}

func TestCanTransitionFromTerminal(t *testing.T) {
	terminals := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	targets := []Status{
		StatusCreated, StatusExtracting, StatusClassifying, StatusDetecting,
		StatusAggregating, StatusCompleted, StatusFailed, StatusCancelled,
	}
	for _, from := range terminals {
		for _, to := range targets {
			if CanTransition(from, to) {
				t.Errorf("CanTransition(%s -> %s) should be false (terminal state)", from, to)
			}
		}
	}
}

func TestCanTransitionSkipLevel(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
	}{
		{StatusCreated, StatusClassifying},
		{StatusCreated, StatusDetecting},
		{StatusCreated, StatusCompleted},
		{StatusExtracting, StatusDetecting},
		{StatusClassifying, StatusAggregating},
		{StatusDetecting, StatusCompleted},
	}
	for _, c := range cases {
		if CanTransition(c.from, c.to) {
			t.Errorf("CanTransition(%s -> %s) should be false (skip-level)", c.from, c.to)
		}
	}
}

func TestCanTransitionBackwardsAndSelf(t *testing.T) {
	backwards := []struct {
		from Status
		to   Status
	}{
		{StatusExtracting, StatusCreated},
		{StatusClassifying, StatusExtracting},
		{StatusDetecting, StatusClassifying},
		{StatusAggregating, StatusDetecting},
	}
	for _, c := range backwards {
		if CanTransition(c.from, c.to) {
			t.Errorf("CanTransition(%s -> %s) should be false (backwards)", c.from, c.to)
		}
	}

	all := []Status{
		StatusCreated, StatusExtracting, StatusClassifying, StatusDetecting,
		StatusAggregating, StatusCompleted, StatusFailed, StatusCancelled,
	}
	for _, s := range all {
		if CanTransition(s, s) {
			t.Errorf("CanTransition(%s -> %s) should be false (self)", s, s)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	cases := []struct {
		status Status
		want   bool
	}{
		{StatusCreated, false},
		{StatusExtracting, false},
		{StatusClassifying, false},
		{StatusDetecting, false},
		{StatusAggregating, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, c := range cases {
		if got := c.status.IsTerminal(); got != c.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"unsupported format", ErrUnsupportedFormat, KindUnsupportedFormat},
		{"unsafe archive", ErrUnsafeArchive, KindUnsafeArchive},
		{"too large", ErrArchiveTooLarge, KindArchiveTooLarge},
		{"already running", ErrJobAlreadyRunning, KindJobAlreadyRunning},
		{"cancelled", ErrJobCancelled, KindCancelled},
		{"unknown", errFake, KindInternal},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := KindOf(c.err); got != c.want {
				t.Errorf("KindOf(%v) = %s, want %s", c.err, got, c.want)
			}
		})
	}
}

var errFake = errString("boom")

type errString string

func (e errString) Error() string { return string(e) }

func TestTopMatchAndMaxConfidence(t *testing.T) {
	rec := FileRecord{
		Matches: MatchList{
			{LicenseID: "apache-2.0", Confidence: 72.5},
			{LicenseID: "mit", Confidence: 99.1},
			{LicenseID: "mit", Confidence: 40.0},
		},
	}
	top := rec.TopMatch()
	if top == nil {
		t.Fatal("TopMatch returned nil for record with matches")
	}
	if top.LicenseID != "mit" || top.Confidence != 99.1 {
		t.Errorf("TopMatch = %s/%.1f, want mit/99.1", top.LicenseID, top.Confidence)
	}
	if got := rec.MaxConfidence(); got != 99.1 {
		t.Errorf("MaxConfidence = %.1f, want 99.1", got)
	}

	empty := FileRecord{}
	if empty.TopMatch() != nil {
		t.Error("TopMatch on empty record should be nil")
	}
	if empty.MaxConfidence() != 0 {
		t.Error("MaxConfidence on empty record should be 0")
	}
}
