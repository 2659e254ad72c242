package httpapi

import (
	"bytes"
	"strings"
)

// cleanMarkdown strips an outer code fence the model sometimes wraps answers in.
func cleanMarkdown(input string) string {
	cleaned := strings.TrimSpace(input)
	if !strings.HasPrefix(cleaned, "```") || !strings.HasSuffix(cleaned, "```") || len(cleaned) < 6 {
		return cleaned
	}
	cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "```"), "```")
	cleaned = strings.TrimPrefix(cleaned, "markdown")
	return strings.TrimSpace(cleaned)
}

// renderMarkdown converts an agent answer to HTML for the chat widget.
func (s *Server) renderMarkdown(answer string) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(cleanMarkdown(answer)), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
