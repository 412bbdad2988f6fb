package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ossprey/licenscope/internal/domain"
	"github.com/ossprey/licenscope/internal/report"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// recordInsertBatchSize bounds a single INSERT when persisting classification
// results, so huge archives don't blow the SQLite variable limit.
const recordInsertBatchSize = 500

// ScanStore is the GORM-backed report.Store. It persists jobs, per-file
// records and summaries to the configured database.
type ScanStore struct {
	db *gorm.DB
}

var _ report.Store = (*ScanStore)(nil)

// NewScanStore creates a new ScanStore.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ScanStore: store instance bound to db.
func NewScanStore(db *gorm.DB) *ScanStore {
	return &ScanStore{db: db}
}

// CreateJob inserts a new scan job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (s *ScanStore) CreateJob(ctx context.Context, job *domain.Job) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob retrieves a scan job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
// Returns:
//   - *domain.Job: job record if found.
//   - error: domain.ErrJobNotFound for unknown ids.
func (s *ScanStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return &job, nil
}

// UpdateJob persists the full job snapshot, zero fields included.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record with updated fields.
// Returns:
//   - error: domain.ErrJobNotFound when the job no longer exists.
func (s *ScanStore) UpdateJob(ctx context.Context, job *domain.Job) error {
	res := s.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", job.ID).
		Select("*").Omit("id", "created_at").
		Updates(job)
	if res.Error != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// UpdateJobProgress sets the live counters without touching the rest of the
// job row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
//   - processed: number of files finished so far.
//   - failures: number of files whose detection did not succeed.
// Returns:
//   - error: domain.ErrJobNotFound when the job no longer exists.
func (s *ScanStore) UpdateJobProgress(ctx context.Context, jobID string, processed, failures int) error {
	res := s.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"processed_files":    processed,
			"detection_failures": failures,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update progress for job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// ListJobs retrieves scan jobs newest-first with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return; <= 0 means no limit.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Job: matching job records.
//   - error: non-nil if the query fails.
func (s *ScanStore) ListJobs(ctx context.Context, limit, offset int) ([]domain.Job, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	jobs := []domain.Job{}
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// DeleteJob removes a job together with its records and summary.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier to delete.
// Returns:
//   - error: domain.ErrJobNotFound for unknown ids.
func (s *ScanStore) DeleteJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&domain.Job{}, "id = ?", jobID)
		if res.Error != nil {
			return fmt.Errorf("failed to delete job %s: %w", jobID, res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrJobNotFound
		}
		if err := tx.Delete(&domain.FileRecord{}, "job_id = ?", jobID).Error; err != nil {
			return fmt.Errorf("failed to delete records for job %s: %w", jobID, err)
		}
		if err := tx.Delete(&domain.ReportSummary{}, "job_id = ?", jobID).Error; err != nil {
			return fmt.Errorf("failed to delete summary for job %s: %w", jobID, err)
		}
		return nil
	})
}

// SaveRecords replaces the job's record set in one transaction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job identifier.
//   - records: classification results to persist.
// Returns:
//   - error: non-nil if the replace fails.
func (s *ScanStore) SaveRecords(ctx context.Context, jobID string, records []domain.FileRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.FileRecord{}, "job_id = ?", jobID).Error; err != nil {
			return fmt.Errorf("failed to clear records for job %s: %w", jobID, err)
		}
		if len(records) == 0 {
			return nil
		}
		rows := make([]domain.FileRecord, len(records))
		copy(rows, records)
		for i := range rows {
			rows[i].RowID = 0 // force fresh primary keys on replace
			rows[i].JobID = jobID
		}
		if err := tx.CreateInBatches(&rows, recordInsertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert records for job %s: %w", jobID, err)
		}
		return nil
	})
}

// UpdateRecord overwrites one record's detection outcome, matched by job ID
// and file index.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job identifier.
//   - rec: record carrying the detection outcome to store.
// Returns:
//   - error: domain.ErrJobNotFound when no such record exists.
func (s *ScanStore) UpdateRecord(ctx context.Context, jobID string, rec *domain.FileRecord) error {
	res := s.db.WithContext(ctx).Model(&domain.FileRecord{}).
		Where("job_id = ? AND file_index = ?", jobID, rec.Index).
		Updates(map[string]interface{}{
			"matches":          rec.Matches,
			"detection":        rec.Detection,
			"scan_duration_ms": rec.ScanDurationMS,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update record %d for job %s: %w", rec.Index, jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s has no record with index %d: %w", jobID, rec.Index, domain.ErrJobNotFound)
	}
	return nil
}

// GetRecords retrieves all records for a job in file-index order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job identifier.
// Returns:
//   - []domain.FileRecord: records for the job; empty for unknown jobs.
//   - error: non-nil if the query fails.
func (s *ScanStore) GetRecords(ctx context.Context, jobID string) ([]domain.FileRecord, error) {
	records := []domain.FileRecord{}
	if err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("file_index").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get records for job %s: %w", jobID, err)
	}
	return records, nil
}

// QueryFiles returns the job's records narrowed and ordered by the filter.
// Filtering matches the in-memory store so both backends paginate
// identically.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job identifier.
//   - f: filter to apply.
// Returns:
//   - []domain.FileRecord: filtered records.
//   - error: non-nil if the query fails.
func (s *ScanStore) QueryFiles(ctx context.Context, jobID string, f report.Filter) ([]domain.FileRecord, error) {
	records, err := s.GetRecords(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return f.Apply(records), nil
}

// SaveSummary stores or replaces the aggregated summary for a job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - summary: summary record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (s *ScanStore) SaveSummary(ctx context.Context, summary *domain.ReportSummary) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(summary).Error
	if err != nil {
		return fmt.Errorf("failed to save summary for job %s: %w", summary.JobID, err)
	}
	return nil
}

// GetSummary retrieves the aggregated summary for a job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job identifier.
// Returns:
//   - *domain.ReportSummary: summary if aggregation has run.
//   - error: domain.ErrReportNotReady when no summary exists yet.
func (s *ScanStore) GetSummary(ctx context.Context, jobID string) (*domain.ReportSummary, error) {
	var summary domain.ReportSummary
	err := s.db.WithContext(ctx).First(&summary, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrReportNotReady
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary for job %s: %w", jobID, err)
	}
	return &summary, nil
}
