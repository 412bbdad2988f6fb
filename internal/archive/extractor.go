package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/ossprey/licenscope/internal/domain"
)

// Limits bounds the resources one extraction may consume. Both limits are
// enforced with streaming accounting so oversized archives abort before the
// extraction completes.
type Limits struct {
	MaxTotalBytes int64 // total uncompressed bytes across all entries
	MaxEntries    int   // total entries (files, directories, links)
}

// DefaultLimits matches the service defaults: 1 GiB uncompressed, 50k entries.
func DefaultLimits() Limits {
	return Limits{
		MaxTotalBytes: 1 << 30,
		MaxEntries:    50000,
	}
}

// Extractor unpacks uploaded archives into isolated per-job working
// directories under workRoot. The caller owns the returned directory and
// removes it once the job reaches a terminal state; a failed extraction
// leaves nothing on disk.
type Extractor struct {
	workRoot string
	limits   Limits
}

// NewExtractor creates an Extractor rooted at workRoot.
// Parameters:
//   - workRoot: directory under which per-job extraction directories are created.
//   - limits: resource limits; zero-valued fields fall back to DefaultLimits.
// Returns:
//   - *Extractor: initialized extractor.
func NewExtractor(workRoot string, limits Limits) *Extractor {
	def := DefaultLimits()
	if limits.MaxTotalBytes <= 0 {
		limits.MaxTotalBytes = def.MaxTotalBytes
	}
	if limits.MaxEntries <= 0 {
		limits.MaxEntries = def.MaxEntries
	}
	return &Extractor{workRoot: workRoot, limits: limits}
}

// Extract validates and unpacks the archive into a fresh working directory.
// Only regular files are materialized: directories are created as needed,
// symlinks and special entries are never written to disk. Any entry whose
// name would resolve outside the destination root rejects the whole archive.
// Parameters:
//   - data: raw archive bytes.
//   - format: container format, validated by ParseFormat or SniffFormat.
// Returns:
//   - string: root of the extracted tree.
//   - int: number of regular files written.
//   - error: ErrUnsupportedFormat, ErrUnsafeArchive or ErrArchiveTooLarge;
//     the working directory is removed on every error path.
func (e *Extractor) Extract(data []byte, format Format) (string, int, error) {
	if err := os.MkdirAll(e.workRoot, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create work root: %w", err)
	}
	root := filepath.Join(e.workRoot, "scan-"+uuid.NewString())
	if err := os.Mkdir(root, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create working directory: %w", err)
	}

	var count int
	var err error
	switch format {
	case FormatZip:
		count, err = e.extractZip(root, data)
	case FormatTar:
		count, err = e.extractTar(root, bytes.NewReader(data))
	case FormatTarGz:
		var gz *gzip.Reader
		gz, err = gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("%w: malformed gzip stream", domain.ErrUnsupportedFormat)
			break
		}
		count, err = e.extractTar(root, gz)
		if cerr := gz.Close(); cerr != nil && err == nil {
			err = cerr
		}
	default:
		err = fmt.Errorf("%q: %w", format, domain.ErrUnsupportedFormat)
	}

	if err != nil {
		// Reject the whole archive rather than leave a partial extraction
		// the caller could mistake for a complete one.
		os.RemoveAll(root)
		return "", 0, err
	}
	return root, count, nil
}

// budget tracks the remaining extraction allowance across entries.
type budget struct {
	bytesLeft   int64
	entriesLeft int
}

func (b *budget) entry() error {
	b.entriesLeft--
	if b.entriesLeft < 0 {
		return fmt.Errorf("entry count limit exceeded: %w", domain.ErrArchiveTooLarge)
	}
	return nil
}

func (e *Extractor) newBudget() *budget {
	return &budget{bytesLeft: e.limits.MaxTotalBytes, entriesLeft: e.limits.MaxEntries}
}

func (e *Extractor) extractZip(root string, data []byte) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return 0, fmt.Errorf("entry path escapes the destination: %w", domain.ErrUnsafeArchive)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: malformed zip archive", domain.ErrUnsupportedFormat)
	}

	b := e.newBudget()
	count := 0
	for _, zf := range zr.File {
		if err := b.entry(); err != nil {
			return count, err
		}
		target, err := safeJoin(root, zf.Name)
		if err != nil {
			return count, err
		}
		info := zf.FileInfo()
		switch {
		case info.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, fmt.Errorf("failed to create directory: %w", err)
			}
		case info.Mode().IsRegular():
			// The header's declared size is only a hint; enforcement happens
			// while copying so a lying header cannot bypass the budget.
			if int64(zf.UncompressedSize64) > b.bytesLeft {
				return count, fmt.Errorf("declared size exceeds limit: %w", domain.ErrArchiveTooLarge)
			}
			rc, err := zf.Open()
			if err != nil {
				return count, fmt.Errorf("failed to open zip entry %q: %w", zf.Name, err)
			}
			err = writeEntry(target, rc, b)
			rc.Close()
			if err != nil {
				return count, err
			}
			count++
		default:
			// Symlinks and special entries are never materialized.
		}
	}
	return count, nil
}

func (e *Extractor) extractTar(root string, r io.Reader) (int, error) {
	tr := tar.NewReader(r)
	b := e.newBudget()
	count := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return count, fmt.Errorf("entry path escapes the destination: %w", domain.ErrUnsafeArchive)
		}
		if err != nil {
			return count, fmt.Errorf("%w: malformed tar archive", domain.ErrUnsupportedFormat)
		}
		if err := b.entry(); err != nil {
			return count, err
		}
		target, err := safeJoin(root, hdr.Name)
		if err != nil {
			return count, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if hdr.Size > b.bytesLeft {
				return count, fmt.Errorf("declared size exceeds limit: %w", domain.ErrArchiveTooLarge)
			}
			if err := writeEntry(target, tr, b); err != nil {
				return count, err
			}
			count++
		default:
			// Symlinks, hard links and devices are never materialized, so a
			// later entry cannot be redirected through them.
		}
	}
}

// safeJoin resolves an archive entry name beneath root, rejecting absolute
// paths and any name that escapes the destination.
func safeJoin(root, name string) (string, error) {
	cleaned := filepath.FromSlash(name)
	if !filepath.IsLocal(cleaned) {
		return "", fmt.Errorf("entry %q: %w", name, domain.ErrUnsafeArchive)
	}
	return filepath.Join(root, cleaned), nil
}

// writeEntry streams one regular file to disk, charging the byte budget for
// every byte actually written.
func writeEntry(target string, r io.Reader, b *budget) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, b.bytesLeft+1))
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if n > b.bytesLeft {
		return fmt.Errorf("uncompressed size limit exceeded: %w", domain.ErrArchiveTooLarge)
	}
	b.bytesLeft -= n
	return nil
}
