package app

import (
	"errors"
	"net/http"
	"strconv"
)

func (s *HTTPServer) handleShares(w http.ResponseWriter, r *http.Request, session Session, documentID string, parts []string) {
	if len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			shares, err := s.service.ListShares(r.Context(), session, documentID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"shares": shares})
		case http.MethodPost:
			var body CreateShareInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.CreateShare(r.Context(), session, documentID, body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, result)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) != 5 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	shareID := parts[4]

	switch r.Method {
	case http.MethodGet:
		share, err := s.service.GetShare(r.Context(), session, documentID, shareID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"share": share})
	case http.MethodPatch:
		var body UpdateShareInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		share, err := s.service.UpdateShare(r.Context(), session, documentID, shareID, body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"share": share})
	case http.MethodDelete:
		if err := s.service.RevokeShare(r.Context(), session, documentID, shareID); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

// handleResolveShare serves GET /api/share/{token}?password= and
// POST /api/share/{token} with a {"password"} body.
func (s *HTTPServer) handleResolveShare(w http.ResponseWriter, r *http.Request, token string) {
	var password string
	switch r.Method {
	case http.MethodGet:
		password = r.URL.Query().Get("password")
	case http.MethodPost:
		var body struct {
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		password = body.Password
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	shared, err := s.service.ResolveShare(r.Context(), token, password, s.clientKey(r))
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) && domainErr.Status == http.StatusTooManyRequests {
			if details, ok := domainErr.Details.(map[string]any); ok {
				if seconds, ok := details["retryAfterSeconds"].(int); ok && seconds > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(seconds))
				}
			}
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shared)
}
