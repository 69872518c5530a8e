package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lexdraft/api/internal/auth"
)

func newTestHTTPServer(t *testing.T, fs *fakeStore, deps Dependencies) (*Service, http.Handler) {
	t.Helper()
	svc, _ := newTestService(t, fs, deps)
	return svc, NewHTTPServer(svc, "*", nil).Handler()
}

func issueToken(t *testing.T, session Session) string {
	t.Helper()
	cfg := testConfig()
	token, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer).IssueToken(auth.Claims{
		Name:             session.UserName,
		OrgID:            session.OrgID,
		RegisteredClaims: jwt.RegisteredClaims{Subject: session.UserID},
	}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:51234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func TestHealthAndReady(t *testing.T) {
	fs := newFakeStore(t)
	_, handler := newTestHTTPServer(t, fs, Dependencies{})

	rec := doRequest(t, handler, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from ready, got %d", rec.Code)
	}

	fs.pingFn = func(context.Context) error { return errors.New("db down") }
	rec = doRequest(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the store is down, got %d", rec.Code)
	}
	if payload := decodeResponse(t, rec); payload["status"] != "not_ready" {
		t.Fatalf("unexpected ready payload %+v", payload)
	}
}

func TestDocumentRoutesRequireToken(t *testing.T) {
	_, handler := newTestHTTPServer(t, newFakeStore(t), Dependencies{})

	rec := doRequest(t, handler, http.MethodGet, "/api/documents", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/documents", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/session", issueToken(t, owner), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for session, got %d", rec.Code)
	}
	if payload := decodeResponse(t, rec); payload["userId"] != owner.UserID || payload["orgId"] != owner.OrgID {
		t.Fatalf("unexpected session payload %+v", payload)
	}
}

func TestDocumentVersionFlowOverHTTP(t *testing.T) {
	_, handler := newTestHTTPServer(t, newFakeStore(t), Dependencies{})
	token := issueToken(t, owner)

	rec := doRequest(t, handler, http.MethodPost, "/api/documents", token, map[string]any{"title": "NDA", "content": "v1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeResponse(t, rec)
	docID := created["document"].(map[string]any)["id"].(string)

	rec = doRequest(t, handler, http.MethodPatch, "/api/documents/"+docID, token, map[string]any{"content": "v2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from update, got %d: %s", rec.Code, rec.Body.String())
	}
	version := decodeResponse(t, rec)["version"].(map[string]any)
	if version["version"].(float64) != 2 || version["changeType"] != "CONTENT" {
		t.Fatalf("unexpected version %+v", version)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/documents/"+docID+"/versions", token, nil)
	versions := decodeResponse(t, rec)["versions"].([]any)
	if len(versions) != 2 || versions[0].(map[string]any)["version"].(float64) != 2 {
		t.Fatalf("unexpected versions %+v", versions)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/documents/"+docID+"/versions/1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for version 1, got %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodGet, "/api/documents/"+docID+"/versions/7", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing version, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/documents/"+docID, issueToken(t, outsider), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another tenant, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPatch, "/api/documents/"+docID, token, map[string]any{"status": "SIGNED"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad status, got %d", rec.Code)
	}
	if payload := decodeResponse(t, rec); payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error payload %+v", payload)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	bad := httptest.NewRecorder()
	handler.ServeHTTP(bad, req)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", bad.Code)
	}
}

func TestShareFlowOverHTTP(t *testing.T) {
	_, handler := newTestHTTPServer(t, newFakeStore(t), Dependencies{})
	token := issueToken(t, owner)

	rec := doRequest(t, handler, http.MethodPost, "/api/documents", token, map[string]any{"title": "NDA", "content": "v1"})
	docID := decodeResponse(t, rec)["document"].(map[string]any)["id"].(string)

	rec = doRequest(t, handler, http.MethodPost, "/api/documents/"+docID+"/shares", token, map[string]any{"permission": "VIEW", "password": "secret"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 from share create, got %d: %s", rec.Code, rec.Body.String())
	}
	share := decodeResponse(t, rec)["share"].(map[string]any)
	shareToken := share["token"].(string)
	if _, leaked := share["passwordHash"]; leaked {
		t.Fatal("password hash must not be serialized")
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/share/"+shareToken, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without password, got %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	details, _ := payload["details"].(map[string]any)
	if payload["code"] != "PASSWORD_REQUIRED" || details["passwordRequired"] != true {
		t.Fatalf("expected passwordRequired flag, got %+v", payload)
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/share/"+shareToken, "", map[string]any{"password": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with password, got %d: %s", rec.Code, rec.Body.String())
	}
	resolved := decodeResponse(t, rec)
	if resolved["viewCount"].(float64) != 1 || resolved["document"].(map[string]any)["content"] != "v1" {
		t.Fatalf("unexpected resolution %+v", resolved)
	}

	rec = doRequest(t, handler, http.MethodPatch, "/api/documents/"+docID+"/shares/"+share["id"].(string), token, map[string]any{"password": nil})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from share update, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, handler, http.MethodGet, "/api/share/"+shareToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected password to be cleared, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodDelete, "/api/documents/"+docID+"/shares/"+share["id"].(string), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from revoke, got %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodGet, "/api/share/"+shareToken, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after revoke, got %d", rec.Code)
	}
}

func TestShareRateLimitSetsRetryAfter(t *testing.T) {
	svc, handler := newTestHTTPServer(t, newFakeStore(t), Dependencies{})
	docID := createNDA(t, svc)
	created, err := svc.CreateShare(context.Background(), owner, docID, CreateShareInput{Password: strPtr("secret")})
	if err != nil {
		t.Fatalf("CreateShare() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		doRequest(t, handler, http.MethodGet, "/api/share/"+created.Share.Token+"?password=nope", "", nil)
	}
	rec := doRequest(t, handler, http.MethodGet, "/api/share/"+created.Share.Token+"?password=secret", "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestExportOverHTTP(t *testing.T) {
	svc, handler := newTestHTTPServer(t, newFakeStore(t), Dependencies{Exporter: &fakeExporter{}})
	docID := createNDA(t, svc)
	token := issueToken(t, owner)

	rec := doRequest(t, handler, http.MethodGet, "/api/documents/"+docID+"/versions/1/export", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from export, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="NDA-v1.pdf"` {
		t.Fatalf("unexpected content disposition %q", got)
	}
	if rec.Body.String() != "%PDF" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/documents/"+docID+"/versions/1/export?format=rtf", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rec.Code)
	}
}

func TestRedactPathHidesShareTokens(t *testing.T) {
	if got := redactPath("/api/share/abc123"); got != "/api/share/:token" {
		t.Fatalf("unexpected redaction %q", got)
	}
	if got := redactPath("/api/documents/doc_1"); got != "/api/documents/doc_1" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestClientKeyIgnoresForwardedForFromUntrustedPeers(t *testing.T) {
	server := NewHTTPServer(nil, "*", nil)
	req := httptest.NewRequest(http.MethodGet, "/api/share/x", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	if got := server.clientKey(req); got != "203.0.113.7" {
		t.Fatalf("expected socket peer, got %q", got)
	}
}

func TestClientKeyHonorsTrustedProxies(t *testing.T) {
	server := NewHTTPServer(nil, "*", nil)
	if err := server.TrustProxies([]string{"10.0.0.0/8", "192.0.2.1"}); err != nil {
		t.Fatalf("TrustProxies() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/share/x", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	if got := server.clientKey(req); got != "10.0.0.1" {
		t.Fatalf("expected proxy address without header, got %q", got)
	}

	// The client prepends a forged hop; the proxy appends the real one.
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 198.51.100.4, 192.0.2.1")
	if got := server.clientKey(req); got != "198.51.100.4" {
		t.Fatalf("expected rightmost untrusted hop, got %q", got)
	}

	if err := server.TrustProxies([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected invalid proxy entry to be rejected")
	}
}

func TestShareRateLimitIgnoresRotatedForwardedFor(t *testing.T) {
	svc, handler := newTestHTTPServer(t, newFakeStore(t), Dependencies{})
	docID := createNDA(t, svc)
	created, err := svc.CreateShare(context.Background(), owner, docID, CreateShareInput{Password: strPtr("secret")})
	if err != nil {
		t.Fatalf("CreateShare() error = %v", err)
	}

	path := "/api/share/" + created.Share.Token
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, path+"?password=nope", nil)
		req.RemoteAddr = "203.0.113.7:51234"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, path+"?password=secret", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("X-Forwarded-For", "198.51.100.99")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 despite rotated header, got %d", rec.Code)
	}
}

func TestRequestIDIsGeneratedWhenMissing(t *testing.T) {
	_, handler := newTestHTTPServer(t, newFakeStore(t), Dependencies{})

	rec := doRequest(t, handler, http.MethodGet, "/api/health", "", nil)
	if got := rec.Header().Get("X-Request-ID"); !strings.HasPrefix(got, "req_") || len(got) <= len("req_") {
		t.Fatalf("expected generated request id, got %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "upstream-1")
	echoed := httptest.NewRecorder()
	handler.ServeHTTP(echoed, req)
	if got := echoed.Header().Get("X-Request-ID"); got != "upstream-1" {
		t.Fatalf("expected caller request id to be kept, got %q", got)
	}
}
