package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var clauseHeading = regexp.MustCompile(`^(ARTICLE|SECTION|SCHEDULE|EXHIBIT)\b|^\d+(\.\d+)*\.?\s+[A-Z][A-Za-z ,&'-]{0,80}$`)

// TextToHTML converts plain-text contract content into HTML. Blank lines
// separate paragraphs; single line breaks are kept. Lines that look like
// clause headings ("ARTICLE I", "12. Governing Law") become <h2>.
func TextToHTML(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var out strings.Builder
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) == 1 && clauseHeading.MatchString(lines[0]) {
			fmt.Fprintf(&out, "<h2>%s</h2>\n", html.EscapeString(lines[0]))
			continue
		}
		escaped := make([]string, len(lines))
		for i, line := range lines {
			escaped[i] = html.EscapeString(strings.TrimRight(line, " \t"))
		}
		fmt.Fprintf(&out, "<p>%s</p>\n", strings.Join(escaped, "<br>"))
	}
	return out.String()
}
