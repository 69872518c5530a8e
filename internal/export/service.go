package export

import (
	"context"
	"fmt"

	"lexdraft/api/internal/logging"
)

type renderFunc func(ctx context.Context, html string) ([]byte, error)

// Service provides version export functionality
type Service struct {
	archive   Archive
	renderers map[Format]renderFunc
	logger    logging.Logger
}

// NewService creates an export service. archive may be nil.
func NewService(chromePath string, archive Archive) *Service {
	return &Service{
		archive: archive,
		renderers: map[Format]renderFunc{
			FormatPDF: func(ctx context.Context, html string) ([]byte, error) {
				return renderPDF(ctx, chromePath, html)
			},
			FormatDOCX: renderDOCX,
		},
		logger: logging.New("export"),
	}
}

// Export returns the requested version in the requested format, from the
// archive when a previous render was stored there.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	render, ok := s.renderers[req.Format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	v := req.Version
	filename := fmt.Sprintf("%s-v%d.%s", sanitizeFilename(v.Title), v.Version, req.Format)
	key := ArchiveKey(v.DocumentID, v.Version, req.Format)

	if s.archive != nil {
		data, found, err := s.archive.Get(ctx, key)
		if err != nil {
			s.logger.Warnf("archive lookup %s: %v", key, err)
		} else if found {
			return &Result{Data: data, Filename: filename, MimeType: req.Format.mimeType(), Source: SourceArchive}, nil
		}
	}

	html, err := RenderDocumentHTML(TemplateDataFor(req))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	data, err := render(ctx, html)
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		if err := s.archive.Put(ctx, key, data, req.Format.mimeType()); err != nil {
			s.logger.Warnf("archive store %s: %v", key, err)
		}
	}
	return &Result{Data: data, Filename: filename, MimeType: req.Format.mimeType(), Source: SourceRendered}, nil
}

// sanitizeFilename creates a safe filename from a title
func sanitizeFilename(title string) string {
	var result []rune
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result = append(result, r)
		case r == ' ':
			result = append(result, '-')
		case r == '-', r == '_':
			result = append(result, r)
		}
	}
	if len(result) > 50 {
		result = result[:50]
	}
	if len(result) == 0 {
		return "document"
	}
	return string(result)
}
