// Package crawler fetches site pages and stores them as documents.
//
// Each configured path is fetched from the base URL, retried on throttling
// and server errors, and fetched once more from the fallback base when the
// primary keeps failing. Requests are paced by a token bucket. A path with a
// fragment ("/#contact") stores only the section around the element with that
// id, under a URL that keeps the fragment.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bambicim/copilot/internal/config"
	"github.com/bambicim/copilot/internal/metrics"
	"github.com/bambicim/copilot/internal/resilience"
	"github.com/bambicim/copilot/internal/storage"
	"github.com/bambicim/copilot/pkg/types"
)

const (
	fetchOperation = "crawler.fetch"
	maxBodyBytes   = 8 << 20
)

// ErrNoBaseURL is returned when no base URL is configured.
var ErrNoBaseURL = errors.New("crawler: base URL is required")

// documentNamespace seeds name-based document IDs derived from page URLs.
var documentNamespace = uuid.MustParse("0b8f4f6e-5d3c-4a1e-8e0f-7c2a9d41b6a3")

// Config describes what to fetch.
type Config struct {
	BaseURL         string
	FallbackBaseURL string
	Paths           []string
	Delay           time.Duration
	Timeout         time.Duration
	UserAgent       string
	IgnoreErrors    bool
}

// ConfigFrom converts the file/env crawler section.
func ConfigFrom(c config.Crawler) Config {
	return Config{
		BaseURL:         c.BaseURL,
		FallbackBaseURL: c.FallbackBaseURL,
		Paths:           c.Paths,
		Delay:           time.Duration(c.DelayMillis) * time.Millisecond,
		Timeout:         time.Duration(c.TimeoutSeconds) * time.Second,
		UserAgent:       c.UserAgent,
	}
}

// Page is one fetched and extracted page.
type Page struct {
	URL      string // stored URL, fragment included
	FetchURL string // URL actually requested
	Title    string
	Text     string
}

// Result summarizes a crawl.
type Result struct {
	Stored        int
	Failed        int
	ErrorMessages []string
}

// Crawler fetches pages and upserts them into a document store.
type Crawler struct {
	cfg     Config
	store   storage.DocumentStore
	client  *http.Client
	exec    *resilience.Executor
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Crawler) {
		if client != nil {
			c.client = client
		}
	}
}

// WithExecutor replaces the default retry/breaker executor.
func WithExecutor(exec *resilience.Executor) Option {
	return func(c *Crawler) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithMetrics records fetched pages.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Crawler) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a crawler writing into store.
func New(store storage.DocumentStore, cfg Config, opts ...Option) (*Crawler, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.FallbackBaseURL = strings.TrimRight(strings.TrimSpace(cfg.FallbackBaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{"/"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	c := &Crawler{
		cfg:     cfg,
		store:   store,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "crawler")
	if c.exec == nil {
		retry := resilience.DefaultConfig()
		retry.RetryMaxAttempts = 4
		retry.RetryInitialBackoff = 600 * time.Millisecond
		c.exec = resilience.NewExecutor(retry, resilience.WithLogger(c.logger))
	}
	return c, nil
}

// Run fetches every configured path and upserts the pages as documents.
// Without IgnoreErrors the first failing path aborts the crawl.
func (c *Crawler) Run(ctx context.Context) (*Result, error) {
	res := &Result{ErrorMessages: make([]string, 0)}
	for _, path := range c.cfg.Paths {
		page, err := c.Fetch(ctx, path)
		c.metrics.ObserveCrawl(err)
		if err == nil {
			err = c.store.UpsertDocument(ctx, PageDocument(page, c.now()))
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
			if !c.cfg.IgnoreErrors {
				return res, fmt.Errorf("crawl %s: %w", path, err)
			}
			c.logger.Warn("skipping page", "path", path, "error", err)
			continue
		}
		res.Stored++
		c.logger.Info("page stored", "url", page.URL, "title", page.Title, "chars", len(page.Text))
	}
	return res, nil
}

// Fetch downloads and extracts one path, falling back to the fallback base once.
func (c *Crawler) Fetch(ctx context.Context, path string) (*Page, error) {
	stored, fetchURL, fragment, err := resolve(c.cfg.BaseURL, path)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, fetchURL)
	if err != nil && c.cfg.FallbackBaseURL != "" && ctx.Err() == nil {
		_, altURL, _, altErr := resolve(c.cfg.FallbackBaseURL, path)
		if altErr != nil {
			return nil, altErr
		}
		c.logger.Warn("retrying via fallback base", "url", fetchURL, "fallback", altURL, "error", err)
		fetchURL = altURL
		body, err = c.get(ctx, fetchURL)
	}
	if err != nil {
		return nil, err
	}

	title, text, err := Extract(body, fragment)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fetchURL, err)
	}
	if title == "" {
		title = fetchURL
	}
	return &Page{URL: stored, FetchURL: fetchURL, Title: title, Text: text}, nil
}

func (c *Crawler) get(ctx context.Context, target string) ([]byte, error) {
	var body []byte
	err := c.exec.Execute(ctx, fetchOperation, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		if c.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= http.StatusBadRequest {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &resilience.HTTPStatusError{
				Operation:  "fetch " + target,
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       string(snippet),
			}
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return err
	}, resilience.ClassifyHTTP)
	return body, err
}

// resolve joins base and path. It returns the URL to store (with fragment),
// the URL to request (without fragment) and the fragment.
func resolve(base, path string) (stored, fetch, fragment string, err error) {
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	stored = base + path

	u, err := url.Parse(stored)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid page url %q: %w", stored, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", "", fmt.Errorf("invalid page url %q: missing scheme or host", stored)
	}
	fragment = u.Fragment
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return stored, u.String(), fragment, nil
}

// DocumentID derives a stable document id from a page URL.
func DocumentID(pageURL string) string {
	return uuid.NewSHA1(documentNamespace, []byte(pageURL)).String()
}

// PageDocument converts a fetched page to a document stamped with now.
func PageDocument(p *Page, now time.Time) *types.Document {
	slug := ""
	if u, err := url.Parse(p.URL); err == nil {
		slug = strings.Trim(u.Path, "/")
		if u.Fragment != "" {
			slug = strings.Trim(slug+"#"+u.Fragment, "#")
		}
	}
	return &types.Document{
		ID:        DocumentID(p.URL),
		Kind:      types.KindPage,
		Slug:      slug,
		Title:     p.Title,
		URL:       p.URL,
		Text:      p.Text,
		UpdatedAt: now,
	}
}
