package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"dartup/internal/config"
)

// fetchOutcome classifies one download attempt.
type fetchOutcome int

const (
	fetchFetched fetchOutcome = iota
	fetchNotModified
	fetchNotFound
	fetchEmpty
	fetchFailed
)

func (o fetchOutcome) String() string {
	switch o {
	case fetchFetched:
		return "fetched"
	case fetchNotModified:
		return "not_modified"
	case fetchNotFound:
		return "not_found"
	case fetchEmpty:
		return "empty"
	default:
		return "failed"
	}
}

// downloader performs conditional GETs with bounded timeouts and retries.
type downloader struct {
	client  *http.Client
	baseURL string
	retries int
}

func newDownloader(panel config.WebPanel) *downloader {
	dialer := &net.Dialer{Timeout: time.Duration(panel.ConnectTimeout) * time.Second}
	client := &http.Client{
		Timeout: time.Duration(panel.RequestTimeout) * time.Second,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: time.Duration(panel.ConnectTimeout) * time.Second,
		},
	}
	return &downloader{client: client, baseURL: panel.BaseURL, retries: panel.DownloadRetries}
}

// fetch downloads one manifest entry. When force is false and the
// destination exists, the request is conditional on the destination's
// modification time so unchanged remotes are not transferred.
func (d *downloader) fetch(ctx context.Context, entry Entry, force bool) (fetchOutcome, []byte, error) {
	url := d.baseURL + "/" + entry.Remote

	var since time.Time
	if !force {
		if info, err := os.Stat(entry.Dest); err == nil {
			since = info.ModTime()
		}
	}

	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		outcome, body, err := d.attempt(ctx, url, since)
		if err == nil {
			return outcome, body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return fetchFailed, nil, lastErr
}

func (d *downloader) attempt(ctx context.Context, url string, since time.Time) (fetchOutcome, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetchFailed, nil, err
	}
	if !since.IsZero() {
		req.Header.Set("If-Modified-Since", since.UTC().Format(http.TimeFormat))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fetchFailed, nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return fetchNotModified, nil, nil
	case resp.StatusCode == http.StatusNotFound:
		return fetchNotFound, nil, nil
	case resp.StatusCode != http.StatusOK:
		// Other statuses are classified, not retried.
		return fetchFailed, nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetchFailed, nil, err
	}
	if len(body) == 0 {
		return fetchEmpty, nil, nil
	}
	return fetchFetched, body, nil
}

// normalizeText strips a leading byte order mark and converts CRLF line
// endings, so files edited on other platforms install cleanly.
func normalizeText(data []byte) ([]byte, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	stripped, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return nil, fmt.Errorf("strip byte order mark: %w", err)
	}
	return bytes.ReplaceAll(stripped, []byte("\r\n"), []byte("\n")), nil
}
