package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ossprey/licenscope/internal/domain"
	"github.com/ossprey/licenscope/internal/export"
	"github.com/ossprey/licenscope/internal/logger"
	"github.com/ossprey/licenscope/internal/report"
)

// ReportHandler serves aggregated results for finished jobs.
type ReportHandler struct {
	store  report.Store
	logger *logger.Logger
}

// NewReportHandler creates a new report handler.
// Parameters:
//   - store: job/record/summary persistence.
//   - log: fallback logger when the request context carries none.
// Returns:
//   - *ReportHandler: initialized handler.
func NewReportHandler(store report.Store, log *logger.Logger) *ReportHandler {
	return &ReportHandler{store: store, logger: log}
}

// log returns a logger from Gin context if available, otherwise returns the handler's own
func (h *ReportHandler) log(c *gin.Context) *logger.Logger {
	if l := logger.FromContext(c.Request.Context()); l != nil {
		return l
	}
	return h.logger
}

// ReportResponse is the filtered, paginated report payload.
type ReportResponse struct {
	Job     *domain.Job           `json:"job"`
	Summary *domain.ReportSummary `json:"summary"`
	Files   []domain.FileRecord   `json:"files"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// Report handles GET /api/v1/scans/:id/report with optional license,
// extension, min_confidence, sort, order, limit and offset query parameters.
// Completed and cancelled jobs serve reports; cancelled ones carry whatever
// was detected before the stop.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ReportHandler) Report(c *gin.Context) {
	job, summary, ok := h.loadFinished(c)
	if !ok {
		return
	}

	f, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	files, err := h.store.QueryFiles(c.Request.Context(), job.ID, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query files: " + err.Error()})
		return
	}

	total := len(files)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	files = page(files, limit, offset)

	c.JSON(http.StatusOK, ReportResponse{
		Job:     job,
		Summary: summary,
		Files:   files,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// Export handles GET /api/v1/scans/:id/export?format=csv|xlsx, streaming the
// full record set as an attachment.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes the attachment).
func (h *ReportHandler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, summary, ok := h.loadFinished(c)
	if !ok {
		return
	}

	records, err := h.store.GetRecords(c.Request.Context(), job.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load records: " + err.Error()})
		return
	}

	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(job.ID, format)+`"`)
	c.Status(http.StatusOK)

	switch format {
	case export.FormatXLSX:
		err = export.WriteXLSX(c.Writer, job, summary, records)
	default:
		err = export.WriteCSV(c.Writer, records)
	}
	if err != nil {
		// Headers are gone; all that's left is the log trail.
		h.log(c).WithField(logger.FieldJobID, job.ID).WithError(err).Error("Failed to stream export")
	}
}

// loadFinished loads the job plus summary and enforces the report gate:
// only terminal jobs with stored aggregates (completed or cancelled) qualify.
func (h *ReportHandler) loadFinished(c *gin.Context) (*domain.Job, *domain.ReportSummary, bool) {
	id := c.Param("id")
	ctx := c.Request.Context()

	job, err := h.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return nil, nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job: " + err.Error()})
		return nil, nil, false
	}

	if job.Status != domain.StatusCompleted && job.Status != domain.StatusCancelled {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "report not ready",
			"status": job.Status,
		})
		return nil, nil, false
	}

	summary, err := h.store.GetSummary(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrReportNotReady) {
			c.JSON(http.StatusConflict, gin.H{
				"error":  "report not ready",
				"status": job.Status,
			})
			return nil, nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load summary: " + err.Error()})
		return nil, nil, false
	}
	return job, summary, true
}

// parseFilter builds the record filter from query parameters.
func parseFilter(c *gin.Context) (report.Filter, error) {
	f := report.Filter{
		License:   c.Query("license"),
		Extension: c.Query("extension"),
	}
	if v := c.Query("min_confidence"); v != "" {
		mc, err := strconv.ParseFloat(v, 64)
		if err != nil || mc < 0 || mc > 100 {
			return f, errors.New("invalid 'min_confidence' value: " + v)
		}
		f.MinConfidence = mc
	}
	sortKey, err := report.ParseSortKey(c.Query("sort"))
	if err != nil {
		return f, err
	}
	f.SortBy = sortKey
	switch order := c.Query("order"); order {
	case "", report.OrderAsc, report.OrderDesc:
		f.Order = order
	default:
		return f, errors.New("invalid 'order' value: " + order)
	}
	return f, nil
}

// page slices out one result window. limit <= 0 means everything from offset.
func page(files []domain.FileRecord, limit, offset int) []domain.FileRecord {
	if offset > 0 {
		if offset >= len(files) {
			return []domain.FileRecord{}
		}
		files = files[offset:]
	}
	if limit > 0 && limit < len(files) {
		files = files[:limit]
	}
	return files
}
