package report

import (
	"context"

	"github.com/ossprey/licenscope/internal/domain"
)

// Store persists jobs, per-file records and summaries, and answers the
// read-side queries. Implementations must be safe for concurrent use: the
// orchestrator's worker pool and the API handlers share one Store.
type Store interface {
	// CreateJob persists a brand-new job in its initial state.
	CreateJob(ctx context.Context, job *domain.Job) error

	// GetJob returns the job or domain.ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)

	// UpdateJob persists the given job snapshot.
	UpdateJob(ctx context.Context, job *domain.Job) error

	// UpdateJobProgress sets the live counters without touching the rest of
	// the job row. Called once per finished file by the detection stage.
	UpdateJobProgress(ctx context.Context, jobID string, processed, failures int) error

	// ListJobs returns jobs newest-first. limit <= 0 means no limit.
	ListJobs(ctx context.Context, limit, offset int) ([]domain.Job, error)

	// DeleteJob removes the job together with its records and summary.
	// Returns domain.ErrJobNotFound for unknown ids.
	DeleteJob(ctx context.Context, jobID string) error

	// SaveRecords persists a job's classification skeletons in one shot,
	// replacing whatever was stored before.
	SaveRecords(ctx context.Context, jobID string, records []domain.FileRecord) error

	// UpdateRecord overwrites the record identified by jobID and rec.Index
	// with its detection outcome.
	UpdateRecord(ctx context.Context, jobID string, rec *domain.FileRecord) error

	// GetRecords returns all records for the job in file-index order. An
	// unknown job yields an empty slice, not an error.
	GetRecords(ctx context.Context, jobID string) ([]domain.FileRecord, error)

	// QueryFiles returns the job's records narrowed and ordered by the
	// filter.
	QueryFiles(ctx context.Context, jobID string, f Filter) ([]domain.FileRecord, error)

	// SaveSummary stores or replaces the aggregated summary for a job.
	SaveSummary(ctx context.Context, summary *domain.ReportSummary) error

	// GetSummary returns the stored summary, or domain.ErrReportNotReady
	// when aggregation has not produced one yet.
	GetSummary(ctx context.Context, jobID string) (*domain.ReportSummary, error)
}

// Report bundles everything known about a scan for the report endpoints.
type Report struct {
	Job     *domain.Job           `json:"job"`
	Summary *domain.ReportSummary `json:"summary"`
	Files   []domain.FileRecord   `json:"files"`
}

// GetReport loads a job with its records and summary in one shot.
// Parameters:
//   - ctx: request context.
//   - s: backing store.
//   - jobID: job identifier.
//
// Returns:
//   - *Report: complete report with files in index order.
//   - error: domain.ErrJobNotFound for unknown ids, domain.ErrReportNotReady
//     before aggregation has run.
func GetReport(ctx context.Context, s Store, jobID string) (*Report, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	summary, err := s.GetSummary(ctx, jobID)
	if err != nil {
		return nil, err
	}
	files, err := s.GetRecords(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &Report{Job: job, Summary: summary, Files: files}, nil
}
