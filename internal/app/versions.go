package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lexdraft/api/internal/changes"
	"lexdraft/api/internal/export"
	"lexdraft/api/internal/metrics"
	"lexdraft/api/internal/rbac"
	"lexdraft/api/internal/store"
)

func (s *Service) ListVersions(ctx context.Context, session Session, documentID string) ([]VersionView, error) {
	if _, _, err := s.authorize(ctx, session, documentID, rbac.ActionRead); err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	views := make([]VersionView, 0, len(versions))
	for _, version := range versions {
		views = append(views, versionView(version))
	}
	return views, nil
}

func (s *Service) getVersion(ctx context.Context, documentID string, number int) (store.DocumentVersion, error) {
	if number < 1 {
		return store.DocumentVersion{}, notFound("Version")
	}
	version, err := s.store.GetVersion(ctx, documentID, number)
	if errors.Is(err, store.ErrNotFound) {
		return store.DocumentVersion{}, notFound("Version")
	}
	if err != nil {
		return store.DocumentVersion{}, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

func (s *Service) GetVersion(ctx context.Context, session Session, documentID string, number int) (VersionView, error) {
	if _, _, err := s.authorize(ctx, session, documentID, rbac.ActionRead); err != nil {
		return VersionView{}, err
	}
	version, err := s.getVersion(ctx, documentID, number)
	if err != nil {
		return VersionView{}, err
	}
	return versionView(version), nil
}

// RestoreVersion copies a version's snapshot back onto the document by
// appending a new version. History is never rewritten.
func (s *Service) RestoreVersion(ctx context.Context, session Session, documentID string, number int) (UpdateResult, error) {
	if _, _, err := s.authorize(ctx, session, documentID, rbac.ActionWrite); err != nil {
		return UpdateResult{}, err
	}
	version, err := s.getVersion(ctx, documentID, number)
	if err != nil {
		return UpdateResult{}, err
	}
	target := changes.Snapshot{
		Title:        version.Title,
		Content:      version.Content,
		Status:       version.Status,
		DocumentType: version.DocumentType,
		Jurisdiction: version.Jurisdiction,
	}
	return s.commit(ctx, session, documentID, "document.restored", map[string]any{"restoredFrom": number},
		func(current changes.Snapshot) (changes.Snapshot, string) {
			change := changes.Classify(&current, target)
			return target, fmt.Sprintf("Restored version %d: %s", number, strings.ToLower(change.Summary[:1])+change.Summary[1:])
		})
}

// ExportVersion renders a version to PDF or DOCX.
func (s *Service) ExportVersion(ctx context.Context, session Session, documentID string, number int, format string) (*export.Result, error) {
	if _, _, err := s.authorize(ctx, session, documentID, rbac.ActionRead); err != nil {
		return nil, err
	}
	exportFormat, ok := export.ParseFormat(strings.ToLower(strings.TrimSpace(format)))
	if !ok {
		return nil, validation("format must be pdf or docx")
	}
	version, err := s.getVersion(ctx, documentID, number)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, unavailable("EXPORT_UNAVAILABLE", "Export is not configured")
	}

	result, err := s.exporter.Export(ctx, export.Request{Version: version, Format: exportFormat})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			return nil, unavailable("EXPORT_UNAVAILABLE", "Export renderer is not installed")
		}
		return nil, fmt.Errorf("export version: %w", err)
	}
	metrics.ExportsRendered.WithLabelValues(string(exportFormat), result.Source).Inc()
	return result, nil
}
