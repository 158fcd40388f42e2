package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/bidwatch/bidwatch/internal/model"
	"github.com/bidwatch/bidwatch/internal/service"
)

// ReadabilityExtractor extracts plain text from HTML and plain-text
// attachment payloads. Binary document formats (PDF, Word) belong to an
// external extraction collaborator and yield an error here.
type ReadabilityExtractor struct{}

// NewReadabilityExtractor creates the default text extractor.
func NewReadabilityExtractor() *ReadabilityExtractor {
	return &ReadabilityExtractor{}
}

// Extract implements service.TextExtractor.
func (e *ReadabilityExtractor) Extract(_ context.Context, payload model.AttachmentPayload) (string, error) {
	contentType := strings.ToLower(payload.ContentType)

	switch {
	case strings.Contains(contentType, "text/plain"):
		return string(payload.Data), nil
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "xhtml"):
		pageURL, _ := url.Parse(payload.URL)
		article, err := readability.FromReader(bytes.NewReader(payload.Data), pageURL)
		if err != nil {
			return "", fmt.Errorf("readability extraction failed for %s: %w", payload.Name, err)
		}
		return article.TextContent, nil
	default:
		return "", fmt.Errorf("unsupported attachment content type %q for %s", payload.ContentType, payload.Name)
	}
}

var _ service.TextExtractor = (*ReadabilityExtractor)(nil)
