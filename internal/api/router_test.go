package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ossprey/licenscope/internal/api/handler"
	"github.com/ossprey/licenscope/internal/api/middleware"
	"github.com/ossprey/licenscope/internal/archive"
	"github.com/ossprey/licenscope/internal/catalog"
	"github.com/ossprey/licenscope/internal/classify"
	"github.com/ossprey/licenscope/internal/domain"
	"github.com/ossprey/licenscope/internal/engine"
	"github.com/ossprey/licenscope/internal/logger"
	"github.com/ossprey/licenscope/internal/report"
	"github.com/ossprey/licenscope/internal/scan"
	"github.com/ossprey/licenscope/internal/storage"
)

// stubEngine serves canned matches keyed by base filename. When block is
// non-nil every detection waits until the channel closes, and started
// receives the base name as each detection begins.
type stubEngine struct {
	matches map[string][]domain.LicenseMatch
	block   chan struct{}
	started chan string
}

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) Detect(ctx context.Context, path string) ([]domain.LicenseMatch, error) {
	base := filepath.Base(path)
	if e.started != nil {
		select {
		case e.started <- base:
		default:
		}
	}
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return append([]domain.LicenseMatch(nil), e.matches[base]...), nil
}

func newTestRouter(t *testing.T, eng engine.Engine) (*gin.Engine, storage.ObjectStorage) {
	t.Helper()

	store := report.NewMemoryStore()
	objects, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	log := logger.New(&logger.Config{Level: "error", Output: io.Discard, ServiceName: "test"})

	orch := scan.NewOrchestrator(
		store,
		archive.NewExtractor(t.TempDir(), archive.Limits{}),
		classify.New(classify.Config{
			ScannableExtensions: []string{".py", ".js", ".txt"},
			LicenseFilenames:    []string{"license", "readme"},
		}),
		engine.NewGateway(eng, 5*time.Second),
		log,
		scan.Config{Workers: 2},
	)

	router := SetupRouter(Deps{
		Orchestrator: orch,
		Store:        store,
		Objects:      objects,
		Catalog:      cat,
		Logger:       log,
		Mode:         "test",
		CORS:         middleware.CORSConfig{AllowAllOrigins: true},
		Upload: handler.ScanHandlerConfig{
			MaxArchiveBytes: 1 << 20,
			DefaultOptions:  domain.ScanOptions{Recursive: true},
		},
	})
	return router, objects
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func postArchive(t *testing.T, router *gin.Engine, content []byte, filename string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field %s: %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return doRequest(router, http.MethodPost, "/api/v1/scans", &body, mw.FormDataContentType())
}

func doRequest(router *gin.Engine, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func waitForTerminal(t *testing.T, router *gin.Engine, jobID string) handler.StatusResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := doRequest(router, http.MethodGet, "/api/v1/scans/"+jobID+"/status", nil, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status returned %d: %s", w.Code, w.Body.String())
		}
		var snap handler.StatusResponse
		decodeJSON(t, w, &snap)
		if snap.Status.IsTerminal() {
			return snap
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state in time")
	return handler.StatusResponse{}
}

func TestScanLifecycle(t *testing.T) {
	eng := &stubEngine{matches: map[string][]domain.LicenseMatch{
		"LICENSE": {{LicenseID: "mit", Confidence: 99.5}},
		"main.py": {{LicenseID: "mit", Confidence: 91}},
	}}
	router, objects := newTestRouter(t, eng)

	zipData := buildZip(t, map[string]string{
		"LICENSE":     "MIT License\n\nPermission is hereby granted...",
		"src/main.py": "# license: MIT\nprint('hi')\n",
		"notes.bin":   "\x00\x01\x02\x03",
	})
	w := postArchive(t, router, zipData, "project.zip", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("upload returned %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("response is missing the X-Request-ID header")
	}
	var job domain.Job
	decodeJSON(t, w, &job)
	if job.ID == "" {
		t.Fatal("accepted job has no id")
	}
	if job.Status != domain.StatusCreated {
		t.Errorf("accepted job status = %q, want %q", job.Status, domain.StatusCreated)
	}

	key := "archives/" + job.ID + ".zip"
	if ok, err := objects.Exists(context.Background(), key); err != nil || !ok {
		t.Errorf("archive %s not stored (exists=%v, err=%v)", key, ok, err)
	}

	snap := waitForTerminal(t, router, job.ID)
	if snap.Status != domain.StatusCompleted {
		t.Fatalf("job finished as %q (%s), want completed", snap.Status, snap.ErrorDetail)
	}
	if snap.TotalFiles != 3 || snap.ProcessedFiles != 3 || snap.DetectionFailures != 0 {
		t.Errorf("counters = %d/%d/%d, want 3/3/0",
			snap.TotalFiles, snap.ProcessedFiles, snap.DetectionFailures)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/scans", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list returned %d: %s", w.Code, w.Body.String())
	}
	var list struct {
		Jobs  []domain.Job `json:"jobs"`
		Count int          `json:"count"`
	}
	decodeJSON(t, w, &list)
	if list.Count != 1 || len(list.Jobs) != 1 || list.Jobs[0].ID != job.ID {
		t.Errorf("list = %+v, want exactly the accepted job", list)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/scans/"+job.ID+"/report", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("report returned %d: %s", w.Code, w.Body.String())
	}
	var rep handler.ReportResponse
	decodeJSON(t, w, &rep)
	if rep.Total != 3 || len(rep.Files) != 3 {
		t.Errorf("report total = %d with %d files, want 3 and 3", rep.Total, len(rep.Files))
	}
	if rep.Files[0].Path != "LICENSE" {
		t.Errorf("first file = %q, want LICENSE (path order)", rep.Files[0].Path)
	}
	if rep.Summary == nil || rep.Summary.FilesWithMatches != 2 {
		t.Errorf("summary = %+v, want 2 files with matches", rep.Summary)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/scans/"+job.ID+"/report?license=mit", nil, "")
	decodeJSON(t, w, &rep)
	if rep.Total != 2 {
		t.Errorf("license=mit filter total = %d, want 2", rep.Total)
	}
	w = doRequest(router, http.MethodGet, "/api/v1/scans/"+job.ID+"/report?min_confidence=95", nil, "")
	decodeJSON(t, w, &rep)
	if rep.Total != 1 || len(rep.Files) != 1 || rep.Files[0].Path != "LICENSE" {
		t.Errorf("min_confidence=95 kept %d files, want only LICENSE", rep.Total)
	}
	w = doRequest(router, http.MethodGet, "/api/v1/scans/"+job.ID+"/report?sort=sideways", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad sort key returned %d, want 400", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/scans/"+job.ID+"/export?format=csv", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("csv export returned %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "license_report_"+job.ID+".csv") {
		t.Errorf("Content-Disposition = %q, want the csv filename", cd)
	}
	firstLine := strings.SplitN(w.Body.String(), "\n", 2)[0]
	if firstLine != "File Path,File Name,Licenses,Confidence,Extension,File Size (KB),Detection" {
		t.Errorf("csv header = %q", firstLine)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/scans/"+job.ID+"/export?format=xlsx", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("xlsx export returned %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheet") {
		t.Errorf("xlsx Content-Type = %q", ct)
	}
	w = doRequest(router, http.MethodGet, "/api/v1/scans/"+job.ID+"/export?format=pdf", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("pdf export returned %d, want 400", w.Code)
	}

	w = doRequest(router, http.MethodDelete, "/api/v1/scans/"+job.ID, nil, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete returned %d: %s", w.Code, w.Body.String())
	}
	if ok, _ := objects.Exists(context.Background(), key); ok {
		t.Error("archive still stored after job deletion")
	}
	w = doRequest(router, http.MethodGet, "/api/v1/scans/"+job.ID+"/status", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status after delete returned %d, want 404", w.Code)
	}
	w = doRequest(router, http.MethodDelete, "/api/v1/scans/"+job.ID, nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete returned %d, want 404", w.Code)
	}
}

func TestScanUploadValidation(t *testing.T) {
	router, _ := newTestRouter(t, &stubEngine{})

	// No file field at all.
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("recursive", "true"); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	w := doRequest(router, http.MethodPost, "/api/v1/scans", &body, mw.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file returned %d, want 400", w.Code)
	}

	// Over the configured 1 MiB cap. Content never gets sniffed.
	w = postArchive(t, router, make([]byte, 2<<20), "huge.zip", nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversize upload returned %d, want 413", w.Code)
	}

	// Not an archive and no recognizable extension.
	w = postArchive(t, router, []byte("just some text"), "upload.weird", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unsniffable upload returned %d, want 400", w.Code)
	}

	// Malformed option values.
	zipData := buildZip(t, map[string]string{"LICENSE": "MIT"})
	w = postArchive(t, router, zipData, "project.zip", map[string]string{"recursive": "sometimes"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad recursive value returned %d, want 400", w.Code)
	}
	w = postArchive(t, router, zipData, "project.zip", map[string]string{"include_binary": "nope"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad include_binary value returned %d, want 400", w.Code)
	}
}

func TestCancelAndReportGate(t *testing.T) {
	eng := &stubEngine{
		matches: map[string][]domain.LicenseMatch{},
		block:   make(chan struct{}),
		started: make(chan string, 4),
	}
	router, _ := newTestRouter(t, eng)

	zipData := buildZip(t, map[string]string{
		"a.py": "print('a')\n",
		"b.py": "print('b')\n",
	})
	w := postArchive(t, router, zipData, "project.zip", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("upload returned %d: %s", w.Code, w.Body.String())
	}
	var job domain.Job
	decodeJSON(t, w, &job)

	select {
	case <-eng.started:
	case <-time.After(5 * time.Second):
		t.Fatal("detection never started")
	}

	// Not terminal yet: no report, no delete.
	w = doRequest(router, http.MethodGet, "/api/v1/scans/"+job.ID+"/report", nil, "")
	if w.Code != http.StatusConflict {
		t.Errorf("report on running job returned %d, want 409", w.Code)
	}
	w = doRequest(router, http.MethodDelete, "/api/v1/scans/"+job.ID, nil, "")
	if w.Code != http.StatusConflict {
		t.Errorf("delete on running job returned %d, want 409", w.Code)
	}

	w = doRequest(router, http.MethodPost, "/api/v1/scans/"+job.ID+"/cancel", nil, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("cancel returned %d: %s", w.Code, w.Body.String())
	}
	close(eng.block)

	snap := waitForTerminal(t, router, job.ID)
	if snap.Status != domain.StatusCancelled {
		t.Fatalf("job finished as %q, want cancelled", snap.Status)
	}
	if snap.ErrorKind != string(domain.KindCancelled) {
		t.Errorf("error kind = %q, want %q", snap.ErrorKind, domain.KindCancelled)
	}

	// Cancelled jobs still serve whatever was aggregated.
	w = doRequest(router, http.MethodGet, "/api/v1/scans/"+job.ID+"/report", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("report on cancelled job returned %d, want 200", w.Code)
	}

	w = doRequest(router, http.MethodPost, "/api/v1/scans/"+job.ID+"/cancel", nil, "")
	if w.Code != http.StatusConflict {
		t.Errorf("cancel on finished job returned %d, want 409", w.Code)
	}
	w = doRequest(router, http.MethodPost, "/api/v1/scans/no-such-job/cancel", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("cancel on unknown job returned %d, want 404", w.Code)
	}
}

func TestLicenseCatalogEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, &stubEngine{})

	w := doRequest(router, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("health returned %d", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/licenses", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("licenses returned %d", w.Code)
	}
	var list struct {
		Total int `json:"total"`
	}
	decodeJSON(t, w, &list)
	if list.Total < 20 {
		t.Errorf("catalog total = %d, want at least 20", list.Total)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/licenses/mit", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("licenses/mit returned %d", w.Code)
	}
	var entry struct {
		SPDXID   string `json:"spdx_id"`
		Category string `json:"category"`
	}
	decodeJSON(t, w, &entry)
	if entry.SPDXID != "MIT" || entry.Category != "permissive" {
		t.Errorf("mit entry = %+v", entry)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/licenses/definitely-not-a-license", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown license returned %d, want 404", w.Code)
	}
}
