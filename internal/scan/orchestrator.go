package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ossprey/licenscope/internal/archive"
	"github.com/ossprey/licenscope/internal/classify"
	"github.com/ossprey/licenscope/internal/domain"
	"github.com/ossprey/licenscope/internal/engine"
	"github.com/ossprey/licenscope/internal/logger"
	"github.com/ossprey/licenscope/internal/report"
)

// Orchestrator drives a job through the scan pipeline:
// extracting -> classifying -> detecting -> aggregating -> completed.
// Detecting is the only parallel stage.
type Orchestrator struct {
	store      report.Store
	extractor  *archive.Extractor
	classifier *classify.Classifier
	gateway    *engine.Gateway
	logger     *logger.Logger
	workers    int

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// Config holds orchestrator settings.
type Config struct {
	Workers int // detection pool size; <= 0 means NumCPU
}

// NewOrchestrator wires the pipeline stages together.
// Parameters:
//   - store: job/record/summary persistence.
//   - extractor: archive extraction stage.
//   - classifier: file classification stage.
//   - gateway: per-file detection with timeout policy.
//   - log: base logger used when the context carries none.
//   - cfg: worker pool settings.
//
// Returns:
//   - *Orchestrator: ready-to-use orchestrator.
func NewOrchestrator(
	store report.Store,
	extractor *archive.Extractor,
	classifier *classify.Classifier,
	gateway *engine.Gateway,
	log *logger.Logger,
	cfg Config,
) *Orchestrator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Orchestrator{
		store:      store,
		extractor:  extractor,
		classifier: classifier,
		gateway:    gateway,
		logger:     log,
		workers:    workers,
		running:    make(map[string]context.CancelFunc),
	}
}

// log returns a logger from context if available, otherwise the orchestrator's own.
func (o *Orchestrator) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return o.logger
}

// NewJobParams describes the upload a job is created for.
type NewJobParams struct {
	ArchiveName string
	ArchiveSize int64
	Format      archive.Format
	StorageKey  string
	Options     domain.ScanOptions
}

// CreateJob registers a new job in the created state. The returned job is
// ready to be handed to Run.
func (o *Orchestrator) CreateJob(ctx context.Context, p NewJobParams) (*domain.Job, error) {
	job := &domain.Job{
		ID:            uuid.NewString(),
		ArchiveName:   p.ArchiveName,
		ArchiveSize:   p.ArchiveSize,
		ArchiveFormat: string(p.Format),
		ArchiveKey:    p.StorageKey,
		Status:        domain.StatusCreated,
		Options:       p.Options,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}
	return job, nil
}

// Cancel requests cancellation of a running job and returns immediately.
// The job stops scheduling new detections, lets in-flight ones finish or
// time out, then lands in the cancelled state with its counters frozen.
// Returns domain.ErrJobNotRunning when the job is not being processed.
func (o *Orchestrator) Cancel(jobID string) error {
	o.mu.Lock()
	cancel, ok := o.running[jobID]
	o.mu.Unlock()
	if !ok {
		return domain.ErrJobNotRunning
	}
	cancel()
	return nil
}

// Running reports whether the job is currently being processed.
func (o *Orchestrator) Running(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[jobID]
	return ok
}

// Run executes the whole pipeline for a job created by CreateJob and blocks
// until the job reaches a terminal state. A job id runs exactly once:
// concurrent or repeated starts return domain.ErrJobAlreadyRunning.
// Parameters:
//   - ctx: cancelling it has the same effect as Cancel(jobID).
//   - jobID: id returned by CreateJob.
//   - data: raw archive bytes.
//
// Returns:
//   - error: nil on completion; domain.ErrJobCancelled when cancelled; the
//     failing stage's error otherwise.
func (o *Orchestrator) Run(ctx context.Context, jobID string, data []byte) error {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if _, dup := o.running[jobID]; dup {
		o.mu.Unlock()
		return domain.ErrJobAlreadyRunning
	}
	o.running[jobID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.running, jobID)
		o.mu.Unlock()
	}()

	// Store writes must survive cancellation: a cancelled job still
	// persists its records, counters and terminal status.
	persistCtx := context.WithoutCancel(ctx)
	jobCtx = logger.SetJobID(jobCtx, jobID)

	job, err := o.store.GetJob(persistCtx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.StatusCreated {
		return fmt.Errorf("job already %s: %w", job.Status, domain.ErrJobAlreadyRunning)
	}

	start := time.Now().UTC()
	job.StartedAt = &start

	o.log(jobCtx).WithFields(logger.Fields{
		"archive":        job.ArchiveName,
		"format":         job.ArchiveFormat,
		logger.FieldSize: job.ArchiveSize,
	}).Info("Starting scan")

	// Extracting
	if err := o.advance(persistCtx, job, domain.StatusExtracting); err != nil {
		return o.fail(persistCtx, jobCtx, job, err)
	}
	root, fileCount, err := o.extractor.Extract(data, archive.Format(job.ArchiveFormat))
	if err != nil {
		return o.fail(persistCtx, jobCtx, job, err)
	}
	defer func() {
		if err := os.RemoveAll(root); err != nil {
			o.log(jobCtx).WithError(err).Warn("Failed to remove working directory")
		}
	}()
	o.log(jobCtx).WithField(logger.FieldCount, fileCount).Info("Archive extracted")

	if jobCtx.Err() != nil {
		return o.cancelJob(persistCtx, jobCtx, job)
	}

	// Classifying
	if err := o.advance(persistCtx, job, domain.StatusClassifying); err != nil {
		return o.fail(persistCtx, jobCtx, job, err)
	}
	records, err := o.classifier.Classify(root, job.Options)
	if err != nil {
		return o.fail(persistCtx, jobCtx, job, err)
	}
	for i := range records {
		records[i].JobID = job.ID
	}
	job.TotalFiles = len(records)
	if err := o.store.SaveRecords(persistCtx, job.ID, records); err != nil {
		return o.fail(persistCtx, jobCtx, job, err)
	}
	o.log(jobCtx).WithField(logger.FieldCount, len(records)).Info("Files classified")

	if jobCtx.Err() != nil {
		return o.cancelJob(persistCtx, jobCtx, job)
	}

	// Detecting — the only parallel stage.
	if err := o.advance(persistCtx, job, domain.StatusDetecting); err != nil {
		return o.fail(persistCtx, jobCtx, job, err)
	}
	o.detectAll(jobCtx, persistCtx, job, root, records)

	// The summary is stored even for a cancelled job so partial results
	// stay queryable.
	summary := Aggregate(records)
	summary.JobID = job.ID
	if jobCtx.Err() != nil {
		if err := o.store.SaveSummary(persistCtx, &summary); err != nil {
			o.log(jobCtx).WithError(err).Error("Failed to persist summary")
		}
		return o.cancelJob(persistCtx, jobCtx, job)
	}

	// Aggregating
	if err := o.advance(persistCtx, job, domain.StatusAggregating); err != nil {
		return o.fail(persistCtx, jobCtx, job, err)
	}
	if err := o.store.SaveSummary(persistCtx, &summary); err != nil {
		return o.fail(persistCtx, jobCtx, job, err)
	}

	// Completed
	job.Status = domain.StatusCompleted
	o.stampFinished(job)
	if err := o.store.UpdateJob(persistCtx, job); err != nil {
		return o.fail(persistCtx, jobCtx, job, err)
	}

	o.log(jobCtx).WithFields(logger.Fields{
		"total":                 job.TotalFiles,
		"processed":             job.ProcessedFiles,
		"detection_failures":    job.DetectionFailures,
		"licenses":              len(summary.DistinctLicenses),
		logger.FieldDurationMs: job.DurationMS,
	}).Info("Scan completed")
	return nil
}

type detectResult struct {
	index  int
	failed bool
}

// detectAll fans the records out to a bounded worker pool. Workers write to
// disjoint record slots keyed by file index, so the slice needs no locking;
// a collector goroutine serializes the live progress counter writes. On
// cancellation the feeder stops scheduling and in-flight detections finish
// under their own budget.
func (o *Orchestrator) detectAll(jobCtx, persistCtx context.Context, job *domain.Job, root string, records []domain.FileRecord) {
	indexes := make(chan int)
	results := make(chan detectResult, o.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.detectWorker(jobCtx, persistCtx, job.ID, root, records, indexes, results)
		}()
	}

	done := make(chan struct{})
	go func() {
		processed, failures := 0, 0
		for res := range results {
			processed++
			if res.failed {
				failures++
			}
			if err := o.store.UpdateJobProgress(persistCtx, job.ID, processed, failures); err != nil {
				o.log(jobCtx).WithField("file_index", res.index).WithError(err).Warn("Failed to update progress")
			}
		}
		job.ProcessedFiles = processed
		job.DetectionFailures = failures
		close(done)
	}()

feed:
	for i := range records {
		select {
		case indexes <- i:
		case <-jobCtx.Done():
			break feed
		}
	}
	close(indexes)
	wg.Wait()
	close(results)
	<-done
}

func (o *Orchestrator) detectWorker(jobCtx, persistCtx context.Context, jobID, root string, records []domain.FileRecord, indexes <-chan int, results chan<- detectResult) {
	for i := range indexes {
		rec := &records[i]
		if !rec.Scannable {
			// Nothing to detect; the file still counts toward progress.
			results <- detectResult{index: i}
			continue
		}

		target := filepath.Join(root, filepath.FromSlash(rec.Path))
		start := time.Now()
		matches, status := o.gateway.Detect(jobCtx, target)
		rec.Matches = matches
		rec.Detection = status
		rec.ScanDurationMS = time.Since(start).Milliseconds()

		if err := o.store.UpdateRecord(persistCtx, jobID, rec); err != nil {
			o.log(jobCtx).WithFields(logger.Fields{
				logger.FieldPath: rec.Path,
			}).WithError(err).Error("Failed to persist record")
		}
		results <- detectResult{index: i, failed: status != domain.DetectionDone}
	}
}

// advance moves the job to the next pipeline state and persists it.
func (o *Orchestrator) advance(ctx context.Context, job *domain.Job, next domain.Status) error {
	if !domain.CanTransition(job.Status, next) {
		return fmt.Errorf("invalid transition %s -> %s", job.Status, next)
	}
	job.Status = next
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist %s state: %w", next, err)
	}
	return nil
}

// fail lands the job in the failed state, keeping the cause's kind and
// detail on the record. Cancellation arriving as an error is routed to the
// cancelled state instead.
func (o *Orchestrator) fail(persistCtx, jobCtx context.Context, job *domain.Job, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, domain.ErrJobCancelled) {
		return o.cancelJob(persistCtx, jobCtx, job)
	}
	job.Status = domain.StatusFailed
	job.ErrorKind = string(domain.KindOf(cause))
	job.ErrorDetail = cause.Error()
	o.stampFinished(job)
	if err := o.store.UpdateJob(persistCtx, job); err != nil {
		o.log(jobCtx).WithError(err).Error("Failed to persist failed state")
	}
	o.log(jobCtx).WithField("error_kind", job.ErrorKind).WithError(cause).Error("Scan failed")
	return cause
}

// cancelJob lands the job in the cancelled terminal state with frozen
// counters.
func (o *Orchestrator) cancelJob(persistCtx, jobCtx context.Context, job *domain.Job) error {
	job.Status = domain.StatusCancelled
	job.ErrorKind = string(domain.KindCancelled)
	job.ErrorDetail = domain.ErrJobCancelled.Error()
	o.stampFinished(job)
	if err := o.store.UpdateJob(persistCtx, job); err != nil {
		o.log(jobCtx).WithError(err).Error("Failed to persist cancelled state")
	}
	o.log(jobCtx).WithFields(logger.Fields{
		"processed": job.ProcessedFiles,
		"total":     job.TotalFiles,
	}).Info("Scan cancelled")
	return domain.ErrJobCancelled
}

func (o *Orchestrator) stampFinished(job *domain.Job) {
	now := time.Now().UTC()
	job.FinishedAt = &now
	if job.StartedAt != nil {
		job.DurationMS = now.Sub(*job.StartedAt).Milliseconds()
	}
}
