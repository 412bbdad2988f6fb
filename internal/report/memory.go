package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ossprey/licenscope/internal/domain"
)

// MemoryStore keeps everything in process memory. It is the default store
// for the CLI and for tests; the GORM-backed store in internal/repository
// provides durability. All values are copied on the way in and out so
// callers never share memory with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]domain.Job
	order     []string // job ids in creation order
	records   map[string][]domain.FileRecord
	summaries map[string]domain.ReportSummary
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]domain.Job),
		records:   make(map[string][]domain.FileRecord),
		summaries: make(map[string]domain.ReportSummary),
	}
}

var _ Store = (*MemoryStore)(nil)

// CreateJob persists a brand-new job.
func (s *MemoryStore) CreateJob(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = *job
	s.order = append(s.order, job.ID)
	return nil
}

// GetJob returns a copy of the job or domain.ErrJobNotFound.
func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &job, nil
}

// UpdateJob replaces the stored job snapshot.
func (s *MemoryStore) UpdateJob(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return domain.ErrJobNotFound
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[job.ID] = *job
	return nil
}

// UpdateJobProgress sets the live counters only.
func (s *MemoryStore) UpdateJobProgress(_ context.Context, jobID string, processed, failures int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.ProcessedFiles = processed
	job.DetectionFailures = failures
	job.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = job
	return nil
}

// ListJobs returns jobs newest-first.
func (s *MemoryStore) ListJobs(_ context.Context, limit, offset int) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Job, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.jobs[s.order[i]])
	}
	if offset > 0 {
		if offset >= len(out) {
			return []domain.Job{}, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// DeleteJob removes the job with its records and summary.
func (s *MemoryStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return domain.ErrJobNotFound
	}
	delete(s.jobs, jobID)
	delete(s.records, jobID)
	delete(s.summaries, jobID)
	for i, id := range s.order {
		if id == jobID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// SaveRecords replaces the job's record set.
func (s *MemoryStore) SaveRecords(_ context.Context, jobID string, records []domain.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]domain.FileRecord, len(records))
	for i := range records {
		stored[i] = cloneRecord(&records[i])
		stored[i].JobID = jobID
	}
	s.records[jobID] = stored
	return nil
}

// UpdateRecord overwrites one record slot, matched by file index.
func (s *MemoryStore) UpdateRecord(_ context.Context, jobID string, rec *domain.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.records[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	for i := range list {
		if list[i].Index == rec.Index {
			updated := cloneRecord(rec)
			updated.JobID = jobID
			list[i] = updated
			return nil
		}
	}
	return fmt.Errorf("job %s has no record with index %d: %w", jobID, rec.Index, domain.ErrJobNotFound)
}

// GetRecords returns copies of the job's records in file-index order.
func (s *MemoryStore) GetRecords(_ context.Context, jobID string) ([]domain.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.records[jobID]
	out := make([]domain.FileRecord, len(list))
	for i := range list {
		out[i] = cloneRecord(&list[i])
	}
	return out, nil
}

// QueryFiles returns the job's records narrowed and ordered by the filter.
func (s *MemoryStore) QueryFiles(ctx context.Context, jobID string, f Filter) ([]domain.FileRecord, error) {
	records, err := s.GetRecords(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return f.Apply(records), nil
}

// SaveSummary stores or replaces the job's summary.
func (s *MemoryStore) SaveSummary(_ context.Context, summary *domain.ReportSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[summary.JobID] = cloneSummary(summary)
	return nil
}

// GetSummary returns a copy of the stored summary or domain.ErrReportNotReady.
func (s *MemoryStore) GetSummary(_ context.Context, jobID string) (*domain.ReportSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[jobID]
	if !ok {
		return nil, domain.ErrReportNotReady
	}
	out := cloneSummary(&summary)
	return &out, nil
}

func cloneRecord(r *domain.FileRecord) domain.FileRecord {
	c := *r
	c.Matches = append(domain.MatchList{}, r.Matches...)
	return c
}

func cloneSummary(s *domain.ReportSummary) domain.ReportSummary {
	c := *s
	c.DistinctLicenses = append(domain.StringList{}, s.DistinctLicenses...)
	c.ConfidenceBuckets = append(domain.BucketList{}, s.ConfidenceBuckets...)
	c.LicenseCounts = make(domain.CountMap, len(s.LicenseCounts))
	for k, v := range s.LicenseCounts {
		c.LicenseCounts[k] = v
	}
	c.ExtensionCounts = make(domain.CountMap, len(s.ExtensionCounts))
	for k, v := range s.ExtensionCounts {
		c.ExtensionCounts[k] = v
	}
	return c
}
