package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ossprey/licenscope/internal/archive"
	"github.com/ossprey/licenscope/internal/domain"
	"github.com/ossprey/licenscope/internal/logger"
	"github.com/ossprey/licenscope/internal/report"
	"github.com/ossprey/licenscope/internal/scan"
	"github.com/ossprey/licenscope/internal/storage"
)

// ScanHandler handles scan job endpoints.
type ScanHandler struct {
	orchestrator *scan.Orchestrator
	store        report.Store
	objects      storage.ObjectStorage
	maxArchive   int64
	defaults     domain.ScanOptions
	logger       *logger.Logger
}

// ScanHandlerConfig carries the upload policy applied before a job exists.
type ScanHandlerConfig struct {
	// MaxArchiveBytes rejects uploads above this size; <= 0 falls back to
	// 100 MiB.
	MaxArchiveBytes int64
	// DefaultOptions fills per-job options the upload form leaves unset.
	DefaultOptions domain.ScanOptions
}

// NewScanHandler creates a new scan handler.
// Parameters:
//   - orchestrator: pipeline runner owning job lifecycles.
//   - store: job/record/summary persistence.
//   - objects: archive blob storage.
//   - log: fallback logger when the request context carries none.
//   - cfg: upload policy.
// Returns:
//   - *ScanHandler: initialized handler.
func NewScanHandler(
	orchestrator *scan.Orchestrator,
	store report.Store,
	objects storage.ObjectStorage,
	log *logger.Logger,
	cfg ScanHandlerConfig,
) *ScanHandler {
	maxArchive := cfg.MaxArchiveBytes
	if maxArchive <= 0 {
		maxArchive = 100 << 20
	}
	return &ScanHandler{
		orchestrator: orchestrator,
		store:        store,
		objects:      objects,
		maxArchive:   maxArchive,
		defaults:     cfg.DefaultOptions,
		logger:       log,
	}
}

// log returns a logger from Gin context if available, otherwise returns the handler's own
func (h *ScanHandler) log(c *gin.Context) *logger.Logger {
	if l := logger.FromContext(c.Request.Context()); l != nil {
		return l
	}
	return h.logger
}

// Create handles POST /api/v1/scans. It accepts a multipart upload ("file"
// field plus optional "recursive", "include_binary" and "extensions" form
// values), stores the archive, creates the job and launches the pipeline in
// the background.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ScanHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart 'file' field is required"})
		return
	}
	if fileHeader.Size > h.maxArchive {
		logger.CtxWarn(ctx, "Upload rejected, too large: archive=%s, size=%d, limit=%d",
			fileHeader.Filename, fileHeader.Size, h.maxArchive)
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "archive exceeds the upload size limit",
			"limit": h.maxArchive,
		})
		return
	}

	opts, err := h.parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open upload: " + err.Error()})
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload: " + err.Error()})
		return
	}

	// Content wins over the declared filename, so a mislabelled tarball
	// still extracts with the right codec.
	format, err := archive.SniffFormat(data, fileHeader.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.orchestrator.CreateJob(ctx, scan.NewJobParams{
		ArchiveName: fileHeader.Filename,
		ArchiveSize: int64(len(data)),
		Format:      format,
		Options:     opts,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job: " + err.Error()})
		return
	}

	key := "archives/" + job.ID + format.Ext()
	if err := h.objects.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), format.ContentType()); err != nil {
		h.log(c).WithError(err).Error("Failed to store archive")
		if delErr := h.store.DeleteJob(ctx, job.ID); delErr != nil {
			h.log(c).WithError(delErr).Warn("Failed to roll back job after storage error")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store archive"})
		return
	}
	job.ArchiveKey = key
	if err := h.store.UpdateJob(ctx, job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist job: " + err.Error()})
		return
	}

	logger.CtxInfo(ctx, "Scan job accepted: job_id=%s, archive=%s, format=%s, size=%d, client_ip=%s",
		job.ID, job.ArchiveName, job.ArchiveFormat, job.ArchiveSize, c.ClientIP())

	// The pipeline outlives this request. Run logs its own failures and
	// always lands the job in a terminal state.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		_ = h.orchestrator.Run(runCtx, job.ID, data)
	}()

	c.JSON(http.StatusAccepted, job)
}

// parseOptions merges the upload form values over the configured defaults.
func (h *ScanHandler) parseOptions(c *gin.Context) (domain.ScanOptions, error) {
	opts := domain.ScanOptions{
		Recursive:     h.defaults.Recursive,
		IncludeBinary: h.defaults.IncludeBinary,
	}
	if v := c.PostForm("recursive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.New("invalid 'recursive' value: " + v)
		}
		opts.Recursive = b
	}
	if v := c.PostForm("include_binary"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.New("invalid 'include_binary' value: " + v)
		}
		opts.IncludeBinary = b
	}
	if v := c.PostForm("extensions"); v != "" {
		for _, ext := range strings.Split(v, ",") {
			if ext = strings.TrimSpace(ext); ext != "" {
				opts.Extensions = append(opts.Extensions, ext)
			}
		}
	}
	return opts, nil
}

// List handles GET /api/v1/scans.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ScanHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, err := h.store.ListJobs(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// StatusResponse is the cheap poll-safe job snapshot.
type StatusResponse struct {
	ID                string        `json:"id"`
	Status            domain.Status `json:"status"`
	TotalFiles        int           `json:"total_files"`
	ProcessedFiles    int           `json:"processed_files"`
	DetectionFailures int           `json:"detection_failures"`
	ErrorKind         string        `json:"error_kind,omitempty"`
	ErrorDetail       string        `json:"error_detail,omitempty"`
	DurationMS        int64         `json:"duration_ms"`
}

// Status handles GET /api/v1/scans/:id/status.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ScanHandler) Status(c *gin.Context) {
	job, ok := h.getJob(c)
	if !ok {
		return
	}

	resp := StatusResponse{
		ID:                job.ID,
		Status:            job.Status,
		TotalFiles:        job.TotalFiles,
		ProcessedFiles:    job.ProcessedFiles,
		DetectionFailures: job.DetectionFailures,
		ErrorKind:         job.ErrorKind,
		ErrorDetail:       job.ErrorDetail,
		DurationMS:        job.DurationMS,
	}
	// A job still in flight reports its elapsed time so pollers see movement.
	if !job.Status.IsTerminal() && job.StartedAt != nil {
		resp.DurationMS = time.Since(*job.StartedAt).Milliseconds()
	}
	c.JSON(http.StatusOK, resp)
}

// Cancel handles POST /api/v1/scans/:id/cancel.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ScanHandler) Cancel(c *gin.Context) {
	job, ok := h.getJob(c)
	if !ok {
		return
	}

	if err := h.orchestrator.Cancel(job.ID); err != nil {
		if errors.Is(err, domain.ErrJobNotRunning) {
			c.JSON(http.StatusConflict, gin.H{
				"error":  "job is not running",
				"status": job.Status,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.CtxInfo(c.Request.Context(), "Cancellation requested: job_id=%s, client_ip=%s", job.ID, c.ClientIP())
	c.JSON(http.StatusAccepted, gin.H{
		"id":      job.ID,
		"message": "cancellation requested",
	})
}

// Delete handles DELETE /api/v1/scans/:id. Running jobs must be cancelled
// first; the stored archive goes before the job row so a blob failure leaves
// the job visible for a retry.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ScanHandler) Delete(c *gin.Context) {
	job, ok := h.getJob(c)
	if !ok {
		return
	}
	if h.orchestrator.Running(job.ID) {
		c.JSON(http.StatusConflict, gin.H{"error": "job is running, cancel it first"})
		return
	}

	ctx := c.Request.Context()
	if job.ArchiveKey != "" {
		if err := h.objects.Delete(ctx, job.ArchiveKey); err != nil {
			h.log(c).WithField(logger.FieldJobID, job.ID).WithError(err).Error("Failed to delete archive")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete stored archive"})
			return
		}
	}
	if err := h.store.DeleteJob(ctx, job.ID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete job: " + err.Error()})
		return
	}

	logger.CtxInfo(ctx, "Scan job deleted: job_id=%s, client_ip=%s", job.ID, c.ClientIP())
	c.Status(http.StatusNoContent)
}

// getJob loads the job named by the :id route parameter, writing the error
// response itself when the lookup fails.
func (h *ScanHandler) getJob(c *gin.Context) (*domain.Job, bool) {
	id := c.Param("id")
	job, err := h.store.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job: " + err.Error()})
		return nil, false
	}
	return job, true
}
