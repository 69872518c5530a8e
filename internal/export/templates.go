package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.UTC().Format(layout)
	},
}).Parse(documentHTML))

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title         string
	Version       int
	Status        string
	DocumentType  string
	Jurisdiction  string
	ChangeSummary string
	Author        string
	CreatedAt     time.Time
	ContentHTML   template.HTML
}

// TemplateDataFor builds template data from a version snapshot.
func TemplateDataFor(req Request) TemplateData {
	v := req.Version
	author := v.ActorName
	if author == "" {
		author = v.ActorID
	}
	return TemplateData{
		Title:         v.Title,
		Version:       v.Version,
		Status:        string(v.Status),
		DocumentType:  v.DocumentType,
		Jurisdiction:  v.Jurisdiction,
		ChangeSummary: v.ChangeSummary,
		Author:        author,
		CreatedAt:     v.CreatedAt,
		ContentHTML:   template.HTML(TextToHTML(v.Content)),
	}
}

// RenderDocumentHTML renders the document template with provided data
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    @page { size: Letter; margin: 0.75in; }
    body { font-family: "Times New Roman", Times, serif; line-height: 1.5; max-width: 800px; margin: 0 auto; }
    h1 { text-align: center; text-transform: uppercase; font-size: 1.4em; }
    h2 { font-size: 1.1em; margin-top: 1.5em; }
    .meta { color: #555; font-size: 0.85em; border-bottom: 1px solid #999; padding-bottom: 0.5rem; margin-bottom: 1.5rem; }
    .status-draft { color: #a15c00; }
    .status-final { color: #1b6b2f; }
    .status-archived { color: #666; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">
    Version {{.Version}} | <span class="status-{{lower .Status}}">{{.Status}}</span>
    {{if .DocumentType}} | {{.DocumentType}}{{end}}
    {{if .Jurisdiction}} | {{.Jurisdiction}}{{end}}
    <br>{{.ChangeSummary}}{{if .Author}} by {{.Author}}{{end}} on {{formatDate .CreatedAt "Jan 2, 2006 15:04 UTC"}}
  </div>
  <div>{{.ContentHTML}}</div>
</body>
</html>`
