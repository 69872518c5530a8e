// Package export renders immutable document versions to PDF and DOCX.
package export

import (
	"errors"

	"lexdraft/api/internal/store"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat accepts the lower-case format names used in query strings.
func ParseFormat(value string) (Format, bool) {
	switch Format(value) {
	case FormatPDF, FormatDOCX:
		return Format(value), true
	default:
		return "", false
	}
}

func (f Format) mimeType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

// Request contains parameters for an export operation
type Request struct {
	Version store.DocumentVersion
	Format  Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	// Source is "archive" when served from object storage, "rendered" otherwise.
	Source string
}

const (
	SourceArchive  = "archive"
	SourceRendered = "rendered"
)

var (
	// ErrUnsupportedFormat indicates the requested format has no renderer.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
