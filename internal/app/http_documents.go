package app

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

func (s *HTTPServer) handleDocumentCollection(w http.ResponseWriter, r *http.Request, session Session) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		payload, err := s.service.ListDocuments(r.Context(), session, ListDocumentsInput{
			Query:        query.Get("q"),
			Status:       strings.TrimSpace(query.Get("status")),
			Jurisdiction: strings.TrimSpace(query.Get("jurisdiction")),
			Limit:        queryInt(r, "limit", 20),
			Offset:       queryInt(r, "offset", 0),
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPost:
		var body CreateDocumentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.CreateDocument(r.Context(), session, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, session Session, documentID string, parts []string) {
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			document, err := s.service.GetDocument(r.Context(), session, documentID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"document": document})
		case http.MethodPatch, http.MethodPut:
			var body UpdateDocumentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.UpdateDocument(r.Context(), session, documentID, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		case http.MethodDelete:
			if err := s.service.DeleteDocument(r.Context(), session, documentID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch parts[3] {
	case "versions":
		s.handleVersions(w, r, session, documentID, parts)
		return
	case "shares":
		s.handleShares(w, r, session, documentID, parts)
		return
	case "audit-events":
		if len(parts) == 4 && r.Method == http.MethodGet {
			events, err := s.service.ListAuditEvents(r.Context(), session, documentID, queryInt(r, "limit", 100))
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"events": events})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleVersions(w http.ResponseWriter, r *http.Request, session Session, documentID string, parts []string) {
	if len(parts) == 4 && r.Method == http.MethodGet {
		versions, err := s.service.ListVersions(r.Context(), session, documentID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
		return
	}
	if len(parts) < 5 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	number, err := strconv.Atoi(parts[4])
	if err != nil || number < 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Version not found", nil)
		return
	}

	if len(parts) == 5 && r.Method == http.MethodGet {
		version, err := s.service.GetVersion(r.Context(), session, documentID, number)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"version": version})
		return
	}

	if len(parts) == 6 && parts[5] == "restore" && r.Method == http.MethodPost {
		result, err := s.service.RestoreVersion(r.Context(), session, documentID, number)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if len(parts) == 6 && parts[5] == "export" && r.Method == http.MethodGet {
		format := r.URL.Query().Get("format")
		if format == "" {
			format = "pdf"
		}
		result, err := s.service.ExportVersion(r.Context(), session, documentID, number, format)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
