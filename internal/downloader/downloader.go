// Package downloader fetches papers from the web into the object store.
package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dgallion1/papertrans/internal/parser"
	"github.com/dgallion1/papertrans/internal/storage"
	"github.com/temoto/robotstxt"
)

var (
	ErrInvalidURL         = errors.New("invalid url")
	ErrDisallowed         = errors.New("disallowed by robots.txt")
	ErrUnsupportedContent = errors.New("unsupported content type")
	ErrTooLarge           = errors.New("download exceeds size limit")
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout || e.StatusCode >= 500
}

var supportedContentTypes = map[string]bool{
	"application/pdf":        true,
	"application/postscript": true,
	"application/x-tex":      true,
	"text/plain":             true,
	"application/msword":     true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

const htmlContentType = "text/html"

type Config struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	MaxBytes   int64 // 0 means no limit
}

// Downloader fetches paper URLs and uploads them to a Store.
type Downloader struct {
	store   storage.Store
	client  *http.Client
	cfg     Config
	log     *slog.Logger
	backoff func(int) time.Duration
}

func New(store storage.Store, cfg Config, log *slog.Logger) *Downloader {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Downloader{
		store:  store,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		log:    log,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
	}
}

// Result describes a stored download.
type Result struct {
	URL              string    `json:"url"`
	Object           string    `json:"object_name"`
	Size             int       `json:"size"`
	ContentType      string    `json:"content_type"`
	OriginalFilename string    `json:"original_filename"`
	DownloadedAt     time.Time `json:"download_time"`
}

// ValidateURL requires an absolute http(s) URL with a host.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}

// Download fetches rawURL and stores it as objectName, or as a name
// derived from the URL when objectName is empty. HTML landing pages that
// advertise citation_pdf_url are followed once.
func (d *Downloader) Download(ctx context.Context, rawURL, objectName string) (*Result, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	log := d.log.With("url", u.String())
	log.Info("downloading paper")

	if !d.allowedByRobots(ctx, u) {
		log.Warn("robots.txt disallows fetch")
		return nil, fmt.Errorf("%w: %s", ErrDisallowed, u)
	}

	dl, err := d.fetchWithRetry(ctx, u)
	if err != nil {
		return nil, err
	}
	if dl.contentType == htmlContentType {
		pdfURL, ok := landingPagePDF(u, dl.data)
		if !ok {
			return nil, fmt.Errorf("%w: %s (html page without citation_pdf_url)", ErrUnsupportedContent, u)
		}
		log.Info("following landing page pdf link", "pdf_url", pdfURL.String())
		if !d.allowedByRobots(ctx, pdfURL) {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, pdfURL)
		}
		dl, err = d.fetchWithRetry(ctx, pdfURL)
		if err != nil {
			return nil, err
		}
		if dl.contentType == htmlContentType {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedContent, pdfURL)
		}
	}

	if objectName == "" {
		objectName = storage.SafeObjectName(dl.url, dl.contentType)
	}
	if err := d.store.Put(ctx, objectName, dl.data, dl.contentType); err != nil {
		return nil, fmt.Errorf("store %s: %w", objectName, err)
	}

	log.Info("paper stored", "object", objectName, "bytes", len(dl.data), "content_type", dl.contentType)
	return &Result{
		URL:              rawURL,
		Object:           objectName,
		Size:             len(dl.data),
		ContentType:      dl.contentType,
		OriginalFilename: dl.filename,
		DownloadedAt:     time.Now(),
	}, nil
}

// Fetch downloads rawURL under a derived name and returns the object name.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, error) {
	res, err := d.Download(ctx, rawURL, "")
	if err != nil {
		return "", err
	}
	return res.Object, nil
}

type download struct {
	url         string
	data        []byte
	contentType string
	filename    string
}

func (d *Downloader) fetchWithRetry(ctx context.Context, u *url.URL) (*download, error) {
	var lastErr error
	for attempt := range d.cfg.MaxRetries {
		dl, err := d.fetch(ctx, u)
		if err == nil {
			return dl, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil || attempt == d.cfg.MaxRetries-1 {
			break
		}
		d.log.Warn("download failed, retrying", "url", u.String(), "attempt", attempt+1, "error", err)
		select {
		case <-time.After(d.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	if errors.Is(err, ErrUnsupportedContent) || errors.Is(err, ErrTooLarge) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.retryable()
	}
	return !errors.Is(err, context.Canceled)
}

func (d *Downloader) fetch(ctx context.Context, u *url.URL) (*download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	d.setHeaders(req)
	req.Header.Set("Accept", "application/pdf,text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{URL: u.String(), StatusCode: resp.StatusCode}
	}

	ct := mediaType(resp.Header.Get("Content-Type"))
	if ct != htmlContentType && !supportedContentTypes[ct] {
		return nil, fmt.Errorf("%w: %q from %s", ErrUnsupportedContent, ct, u)
	}
	if d.cfg.MaxBytes > 0 && resp.ContentLength > d.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	body := io.Reader(resp.Body)
	if d.cfg.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, d.cfg.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	if d.cfg.MaxBytes > 0 && int64(len(data)) > d.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, d.cfg.MaxBytes)
	}

	final := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &download{
		url:         final,
		data:        data,
		contentType: ct,
		filename:    responseFilename(resp, final, ct),
	}, nil
}

func (d *Downloader) setHeaders(req *http.Request) {
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
}

// allowedByRobots checks the host's robots.txt. Unreachable or failing
// robots.txt allows the fetch.
func (d *Downloader) allowedByRobots(ctx context.Context, u *url.URL) bool {
	robotsURL := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return true
	}
	d.setHeaders(req)
	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Warn("robots.txt check failed", "url", robotsURL.String(), "error", err)
		return true
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return true
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return true
	}
	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		d.log.Warn("robots.txt unreadable", "url", robotsURL.String(), "error", err)
		return true
	}
	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return robots.TestAgent(target, d.cfg.UserAgent)
}

func landingPagePDF(page *url.URL, data []byte) (*url.URL, bool) {
	raw, ok := parser.MetaContent(bytes.NewReader(data), "citation_pdf_url")
	if !ok {
		return nil, false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	resolved := page.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil, false
	}
	return resolved, true
}

func mediaType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
	}
	return mt
}

// responseFilename prefers Content-Disposition, then the URL's last path
// segment, adding an extension from the content type when missing.
func responseFilename(resp *http.Response, rawURL, contentType string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	var name string
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "/" || name == "." {
		name = ""
	}
	if !strings.Contains(name, ".") {
		name += storage.ExtensionFor(contentType)
	}
	return name
}
