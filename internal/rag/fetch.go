package rag

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BrowserUserAgent is sent with every fetch; some sites refuse default Go clients.
const BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/122.0.0.0 Safari/537.36"

const maxPageBytes = 20 << 20

// Page is a downloaded document. ContentType is the raw header value and
// carries the charset when the server declares one.
type Page struct {
	Body        []byte
	ContentType string
}

// Fetcher downloads web pages for training.
type Fetcher struct {
	client *http.Client
	// MaxBytes bounds the page size; larger pages are an error.
	MaxBytes int64
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client, MaxBytes: maxPageBytes}
}

// Fetch GETs url and returns the page. Non-2xx responses are errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%d %s for url: %s", resp.StatusCode, http.StatusText(resp.StatusCode), url)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = maxPageBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("page larger than %d bytes: %s", limit, url)
	}
	return &Page{Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}
