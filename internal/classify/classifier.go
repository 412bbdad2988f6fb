package classify

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/ossprey/licenscope/internal/domain"
)

// sampleSize is how much of each file is read for MIME detection and the
// binary heuristic.
const sampleSize = 8 * 1024

// licenseSuffixes are the extensions a license filename may carry and still
// count as a license file.
var licenseSuffixes = []string{".txt", ".md", ".rst"}

// Config carries the static classification rules shared by every scan.
type Config struct {
	// ScannableExtensions is the allow-list of extensions sent to the
	// detection engine when the file is not a license file or binary.
	ScannableExtensions []string
	// LicenseFilenames are the case-insensitive stems (license, copying, ...)
	// matched as license files regardless of extension.
	LicenseFilenames []string
}

// Classifier walks an extracted tree and produces one FileRecord skeleton
// per regular file. It is stateless across scans and safe for concurrent use.
type Classifier struct {
	scannable map[string]struct{}
	stems     map[string]struct{}
}

// New builds a Classifier from the configured rules.
// Parameters:
//   - cfg: extension allow-list and license filename stems.
//
// Returns:
//   - *Classifier: ready-to-use classifier.
func New(cfg Config) *Classifier {
	c := &Classifier{
		scannable: make(map[string]struct{}, len(cfg.ScannableExtensions)),
		stems:     make(map[string]struct{}, len(cfg.LicenseFilenames)),
	}
	for _, ext := range cfg.ScannableExtensions {
		if n := domain.NormalizeExtension(ext); n != "" {
			c.scannable[n] = struct{}{}
		}
	}
	for _, stem := range cfg.LicenseFilenames {
		c.stems[strings.ToLower(strings.TrimSpace(stem))] = struct{}{}
	}
	return c
}

// Classify walks root and returns one skeleton record per regular file, in
// lexicographic order of the slash-separated relative path, with Index
// assigned in that order. Directories are not recorded and symlinks are
// neither recorded nor followed. Files that cannot be read are tagged
// unreadable instead of aborting the walk.
// Parameters:
//   - root: extracted tree produced by the archive extractor.
//   - opts: per-job options (recursion, binary handling, extension filter).
//
// Returns:
//   - []domain.FileRecord: skeletons with Detection pending or skipped.
//   - error: non-nil only when the tree itself cannot be walked.
func (c *Classifier) Classify(root string, opts domain.ScanOptions) ([]domain.FileRecord, error) {
	filter := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		if n := domain.NormalizeExtension(ext); n != "" {
			filter[n] = struct{}{}
		}
	}

	var records []domain.FileRecord
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if !opts.Recursive && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		records = append(records, c.classifyFile(path, filepath.ToSlash(rel), d, opts, filter))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	// WalkDir is lexical per directory, not per full path ("foo.txt" sorts
	// after "foo/bar" in walk order but before it byte-wise).
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	for i := range records {
		records[i].Index = i
	}
	return records, nil
}

func (c *Classifier) classifyFile(path, rel string, d fs.DirEntry, opts domain.ScanOptions, filter map[string]struct{}) domain.FileRecord {
	rec := domain.FileRecord{
		Path:      rel,
		Extension: domain.NormalizeExtension(filepath.Ext(rel)),
		Matches:   domain.MatchList{},
		Detection: domain.DetectionSkipped,
	}

	info, err := d.Info()
	if err != nil {
		rec.Classification = domain.ClassUnreadable
		return rec
	}
	rec.Size = info.Size()

	sample, err := readSample(path)
	if err != nil {
		rec.Classification = domain.ClassUnreadable
		return rec
	}
	rec.MIMEType = mimetype.Detect(sample).String()

	passes := func(ext string) bool {
		if len(filter) == 0 {
			return true
		}
		_, ok := filter[ext]
		return ok
	}

	switch name := strings.ToLower(d.Name()); {
	case c.isLicenseName(name):
		// License files are always worth scanning, whatever the filter says.
		rec.Classification = domain.ClassLicenseFile
		rec.Scannable = true
	case isBinary(sample):
		rec.Classification = domain.ClassBinary
		rec.Scannable = opts.IncludeBinary && passes(rec.Extension)
	case c.isScannableExt(rec.Extension):
		rec.Classification = domain.ClassCode
		rec.Scannable = passes(rec.Extension)
	default:
		rec.Classification = domain.ClassOther
	}
	if rec.Scannable {
		rec.Detection = domain.DetectionPending
	}
	return rec
}

// isLicenseName matches a lowercase basename against the configured stems,
// bare or with one of the allowed suffixes ("license", "license.md", ...).
func (c *Classifier) isLicenseName(name string) bool {
	if _, ok := c.stems[name]; ok {
		return true
	}
	for _, suffix := range licenseSuffixes {
		stem, found := strings.CutSuffix(name, suffix)
		if !found {
			continue
		}
		if _, ok := c.stems[stem]; ok {
			return true
		}
	}
	return false
}

func (c *Classifier) isScannableExt(ext string) bool {
	_, ok := c.scannable[ext]
	return ok
}

// isBinary reports whether the sampled content looks like non-text data.
func isBinary(sample []byte) bool {
	return bytes.IndexByte(sample, 0x00) >= 0
}

func readSample(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, sampleSize))
}
