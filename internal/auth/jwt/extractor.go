package jwt

import (
	"errors"
	"net/http"
	"strings"
)

// Common errors for token extraction.
var (
	ErrMissingHeader = errors.New("missing authorization header")
	ErrInvalidPrefix = errors.New("invalid authorization prefix")
)

// HeaderExtractor extracts tokens from an HTTP header.
type HeaderExtractor struct {
	header string
	prefix string
}

// NewHeaderExtractor creates a new header extractor.
// If header is empty, it defaults to "Authorization".
// If prefix is empty, it defaults to "Bearer ".
func NewHeaderExtractor(header, prefix string) *HeaderExtractor {
	if header == "" {
		header = "Authorization"
	}
	if prefix == "" {
		prefix = "Bearer "
	}
	return &HeaderExtractor{
		header: header,
		prefix: prefix,
	}
}

// Extract extracts the token from the request header.
func (e *HeaderExtractor) Extract(r *http.Request) (string, error) {
	return e.ExtractValue(r.Header.Get(e.header))
}

// ExtractValue extracts the token from a raw header value. The prefix is
// matched case-insensitively.
func (e *HeaderExtractor) ExtractValue(value string) (string, error) {
	if value == "" {
		return "", ErrMissingHeader
	}
	if len(value) < len(e.prefix) || !strings.EqualFold(value[:len(e.prefix)], e.prefix) {
		return "", ErrInvalidPrefix
	}
	token := strings.TrimSpace(value[len(e.prefix):])
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}
