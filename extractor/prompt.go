package extractor

import (
	"fmt"
	"os"
	"strings"
)

// PromptTemplate is the user-editable extraction instruction file. Its text
// dictates the fields and JSON shape the model returns; this package treats
// it as opaque and only splices the page content around it.
type PromptTemplate struct {
	text string
}

// LoadPromptTemplate reads the template from path.
func LoadPromptTemplate(path string) (*PromptTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompt template %s: %w", path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("prompt template %s is empty", path)
	}
	return &PromptTemplate{text: text}, nil
}

// NewPromptTemplate wraps literal template text. Used by tests and by
// callers that source the template from somewhere other than a file.
func NewPromptTemplate(text string) *PromptTemplate {
	return &PromptTemplate{text: text}
}

// System returns the system message: the template verbatim.
func (p *PromptTemplate) System() string {
	return p.text
}

// User composes the user message carrying the cleaned page content.
func (p *PromptTemplate) User(content string, sourceURL string) string {
	return fmt.Sprintf(`Extract the requested data from the following web page content.

URL: %s

Content:
%s

Return the extracted data as valid JSON only, with no additional text or explanation.`, sourceURL, content)
}
