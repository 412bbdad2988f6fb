package domain

import "errors"

// Job-fatal and caller-misuse errors. Extraction errors abort the pipeline;
// per-file detection problems are represented as DetectionStatus values on
// the record instead and never surface here.
var (
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	ErrUnsafeArchive     = errors.New("archive entry escapes extraction root")
	ErrArchiveTooLarge   = errors.New("archive exceeds extraction limits")
	ErrJobAlreadyRunning = errors.New("job is already running")
	ErrJobNotRunning     = errors.New("job is not running")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobCancelled      = errors.New("job cancelled")
	ErrReportNotReady    = errors.New("report not ready")
)

// ErrorKind is the stable string attached to a failed or cancelled job and
// surfaced by the status endpoint.
type ErrorKind string

const (
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindUnsafeArchive     ErrorKind = "unsafe_archive"
	KindArchiveTooLarge   ErrorKind = "archive_too_large"
	KindJobAlreadyRunning ErrorKind = "job_already_running"
	KindCancelled         ErrorKind = "cancelled"
	KindInternal          ErrorKind = "internal"
)

// KindOf maps an error to its ErrorKind. Unknown errors are reported as
// internal so the job record never carries a raw error chain as its kind.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ErrUnsafeArchive):
		return KindUnsafeArchive
	case errors.Is(err, ErrArchiveTooLarge):
		return KindArchiveTooLarge
	case errors.Is(err, ErrJobAlreadyRunning):
		return KindJobAlreadyRunning
	case errors.Is(err, ErrJobCancelled):
		return KindCancelled
	default:
		return KindInternal
	}
}
