package models

import (
	"net/url"
)

// ParseRequest is the payload for POST /parse.
type ParseRequest struct {
	// URL is the page to render and extract from. Required.
	// Must be an absolute http/https URL.
	URL string `json:"url" binding:"required"`
}

// ValidateURL checks that raw is a syntactically valid absolute URL with an
// http or https scheme. The gin "url" binding tag accepts any scheme
// (ftp://, file://, ...), so the scheme check lives here instead.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return NewParseError(ErrCodeInvalidInput, "URL is not parseable", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewParseError(ErrCodeInvalidInput, "URL scheme must be http or https", nil)
	}
	if u.Host == "" {
		return NewParseError(ErrCodeInvalidInput, "URL must be absolute (missing host)", nil)
	}
	return nil
}
