package export

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"lexdraft/api/internal/store"
)

type memoryArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
	puts    int
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{objects: map[string][]byte{}}
}

func (a *memoryArchive) Get(_ context.Context, key string) ([]byte, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.getErr != nil {
		return nil, false, a.getErr
	}
	data, ok := a.objects[key]
	return data, ok, nil
}

func (a *memoryArchive) Put(_ context.Context, key string, data []byte, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.puts++
	a.objects[key] = data
	return nil
}

func testVersion() store.DocumentVersion {
	return store.DocumentVersion{
		ID:            "ver_1",
		DocumentID:    "doc_1",
		Version:       3,
		Title:         "Master Services Agreement",
		Content:       "ARTICLE I\n\nThe parties agree <as follows>.\nSecond line.",
		Status:        store.StatusFinal,
		DocumentType:  "MSA",
		Jurisdiction:  "US-NY",
		ChangeSummary: "Updated status",
		ActorID:       "user_1",
		ActorName:     "Ada",
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestService(archive Archive, calls *int) *Service {
	svc := NewService("", archive)
	svc.renderers[FormatPDF] = func(_ context.Context, html string) ([]byte, error) {
		*calls++
		return []byte("PDF:" + html), nil
	}
	return svc
}

func TestExportRendersAndArchives(t *testing.T) {
	archive := newMemoryArchive()
	calls := 0
	svc := newTestService(archive, &calls)

	first, err := svc.Export(context.Background(), Request{Version: testVersion(), Format: FormatPDF})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if first.Source != SourceRendered || first.Filename != "Master-Services-Agreement-v3.pdf" || first.MimeType != "application/pdf" {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if _, ok := archive.objects["exports/doc_1/v3.pdf"]; !ok {
		t.Fatalf("expected render to be archived, got keys %v", archive.objects)
	}

	second, err := svc.Export(context.Background(), Request{Version: testVersion(), Format: FormatPDF})
	if err != nil {
		t.Fatalf("Export() second error = %v", err)
	}
	if second.Source != SourceArchive || string(second.Data) != string(first.Data) {
		t.Fatalf("expected archived copy, got %+v", second)
	}
	if calls != 1 {
		t.Fatalf("expected one render, got %d", calls)
	}
}

func TestExportFallsBackToRenderWhenArchiveFails(t *testing.T) {
	archive := newMemoryArchive()
	archive.getErr = errors.New("unreachable")
	calls := 0
	svc := newTestService(archive, &calls)

	result, err := svc.Export(context.Background(), Request{Version: testVersion(), Format: FormatPDF})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Source != SourceRendered || calls != 1 {
		t.Fatalf("expected render despite archive error, got %+v calls=%d", result, calls)
	}
}

func TestExportWithoutArchive(t *testing.T) {
	calls := 0
	svc := newTestService(nil, &calls)
	if _, err := svc.Export(context.Background(), Request{Version: testVersion(), Format: FormatPDF}); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if _, err := svc.Export(context.Background(), Request{Version: testVersion(), Format: FormatPDF}); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected a render per call without archive, got %d", calls)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := NewService("", nil)
	_, err := svc.Export(context.Background(), Request{Version: testVersion(), Format: "odt"})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	if f, ok := ParseFormat("docx"); !ok || f != FormatDOCX {
		t.Fatalf("ParseFormat(docx) = %q, %v", f, ok)
	}
	if _, ok := ParseFormat("PDF"); ok {
		t.Fatal("expected upper-case format to be rejected")
	}
}

func TestTextToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "paragraphs", input: "First.\n\nSecond.", expected: "<p>First.</p>\n<p>Second.</p>\n"},
		{name: "line breaks", input: "One\nTwo", expected: "<p>One<br>Two</p>\n"},
		{name: "escaping", input: "a < b & c", expected: "<p>a &lt; b &amp; c</p>\n"},
		{name: "article heading", input: "ARTICLE IV", expected: "<h2>ARTICLE IV</h2>\n"},
		{name: "numbered heading", input: "12. Governing Law", expected: "<h2>12. Governing Law</h2>\n"},
		{name: "crlf", input: "One\r\n\r\nTwo", expected: "<p>One</p>\n<p>Two</p>\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TextToHTML(tt.input); got != tt.expected {
				t.Errorf("TextToHTML(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Lease v1.2", "Lease-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "document"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := sanitizeFilename(tt.input); result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"§", "%C2%A7"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := percentEncodeForDataURL(tt.input); result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderDocumentHTML(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateDataFor(Request{Version: testVersion(), Format: FormatPDF}))
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}
	for _, want := range []string{
		"Master Services Agreement",
		"Version 3",
		"status-final",
		"US-NY",
		"Updated status by Ada",
		"Mar 1, 2026 12:00 UTC",
		"<h2>ARTICLE I</h2>",
		"&lt;as follows&gt;",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Contains(html, "&lt;p&gt;") {
		t.Error("content HTML was escaped")
	}
}
