package archive

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ossprey/licenscope/internal/domain"
)

// Format identifies a supported archive container.
type Format string

const (
	FormatZip   Format = "zip"
	FormatTar   Format = "tar"
	FormatTarGz Format = "tar.gz"
)

// Magic byte prefixes for container sniffing. Tar has no prefix magic; its
// "ustar" marker lives at offset 257.
var (
	zipMagic  = []byte{0x50, 0x4b, 0x03, 0x04}
	gzipMagic = []byte{0x1f, 0x8b}
)

const tarMagicOffset = 257

// Ext returns the canonical filename extension for the format, dot included.
func (f Format) Ext() string {
	switch f {
	case FormatTar:
		return ".tar"
	case FormatTarGz:
		return ".tar.gz"
	default:
		return ".zip"
	}
}

// ContentType returns the MIME type used when storing the archive.
func (f Format) ContentType() string {
	switch f {
	case FormatTar:
		return "application/x-tar"
	case FormatTarGz:
		return "application/gzip"
	default:
		return "application/zip"
	}
}

// ParseFormat maps a declared format string or filename to a Format.
// Parameters:
//   - s: format name ("zip", "tar", "tar.gz", "tgz") or a filename with a
//     recognized extension.
// Returns:
//   - Format: parsed format.
//   - error: ErrUnsupportedFormat for anything unrecognized.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "zip":
		return FormatZip, nil
	case "tar":
		return FormatTar, nil
	case "tar.gz", "tgz", "gz", "gzip":
		return FormatTarGz, nil
	}
	switch {
	case strings.HasSuffix(name, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(name, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(name, ".gz"):
		return FormatTarGz, nil
	}
	return "", fmt.Errorf("%q: %w", s, domain.ErrUnsupportedFormat)
}

// SniffFormat detects the archive format from magic bytes, falling back to
// the declared name when the content is ambiguous.
// Parameters:
//   - data: archive bytes (only the head is inspected).
//   - name: declared format or filename used as fallback.
// Returns:
//   - Format: detected format.
//   - error: ErrUnsupportedFormat when neither content nor name match.
func SniffFormat(data []byte, name string) (Format, error) {
	if bytes.HasPrefix(data, zipMagic) {
		return FormatZip, nil
	}
	if bytes.HasPrefix(data, gzipMagic) {
		return FormatTarGz, nil
	}
	if len(data) > tarMagicOffset+5 && bytes.Equal(data[tarMagicOffset:tarMagicOffset+5], []byte("ustar")) {
		return FormatTar, nil
	}
	return ParseFormat(name)
}
