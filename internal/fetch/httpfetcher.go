package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/model"
	"github.com/bidwatch/bidwatch/internal/service"
)

const (
	maxAttachments    = 5
	maxAttachmentSize = 10 << 20 // 10 MiB
	maxPageSize       = 4 << 20
)

// Attachment link suffixes worth downloading from a detail page.
var attachmentExtensions = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".zip"}

// HTTPFetcher is the default detail fetch collaborator: it loads the
// listing's detail page, extracts readable text, and downloads linked
// documents as opaque payloads.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTP detail fetcher with the given per-request
// timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// FetchDetail implements service.DetailFetcher.
func (f *HTTPFetcher) FetchDetail(ctx context.Context, item model.FeedItem) (*model.ListingDetail, error) {
	pageURL, err := url.Parse(item.Link)
	if err != nil {
		return nil, &common.RetryableError{
			Err:       fmt.Errorf("invalid detail URL %q: %w", item.Link, err),
			Retryable: false,
		}
	}

	body, err := f.get(ctx, item.Link, maxPageSize)
	if err != nil {
		return nil, err
	}

	detail := &model.ListingDetail{Title: item.Title}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		if article.Title != "" {
			detail.Title = article.Title
		}
		if article.SiteName != "" {
			detail.Institution = article.SiteName
		}
		detail.Description = article.TextContent
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		// The page text alone is still a usable detail result.
		return detail, nil
	}

	for _, link := range f.attachmentLinks(doc, pageURL) {
		if len(detail.Attachments) >= maxAttachments {
			break
		}
		payload, payloadErr := f.download(ctx, link)
		if payloadErr != nil {
			continue
		}
		detail.Attachments = append(detail.Attachments, *payload)
	}
	if len(detail.Attachments) > 0 {
		detail.DownloadURL = detail.Attachments[0].URL
	}

	return detail, nil
}

func (f *HTTPFetcher) attachmentLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		ext := strings.ToLower(path.Ext(resolved.Path))
		for _, want := range attachmentExtensions {
			if ext == want {
				abs := resolved.String()
				if !seen[abs] {
					seen[abs] = true
					links = append(links, abs)
				}
				return
			}
		}
	})
	return links
}

func (f *HTTPFetcher) download(ctx context.Context, link string) (*model.AttachmentPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment download status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize))
	if err != nil {
		return nil, err
	}

	parsed, _ := url.Parse(link)
	name := "attachment"
	if parsed != nil && path.Base(parsed.Path) != "" {
		name = path.Base(parsed.Path)
	}

	return &model.AttachmentPayload{
		Name:        name,
		URL:         link,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (f *HTTPFetcher) get(ctx context.Context, link string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, &common.RetryableError{Err: err, Retryable: false}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &common.RetryableError{Err: err, Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, common.ErrRateLimit
	case resp.StatusCode >= 500:
		return nil, &common.RetryableError{
			Err:       fmt.Errorf("detail page status %d", resp.StatusCode),
			Retryable: true,
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &common.RetryableError{
			Err:       fmt.Errorf("detail page status %d", resp.StatusCode),
			Retryable: false,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, &common.RetryableError{Err: err, Retryable: true}
	}
	return body, nil
}

var _ service.DetailFetcher = (*HTTPFetcher)(nil)
