// Package fetcher downloads source pages, distills their main text, and
// discovers same-host links one level below a feed's base URL.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/dtnitsch/challenge-miner/internal/common"
	"github.com/dtnitsch/challenge-miner/models"
	"github.com/dtnitsch/challenge-miner/pkg/caching"
)

const (
	// maxBodyBytes bounds how much of a response is read.
	maxBodyBytes = 10 << 20

	// maxTextRunes bounds the extracted text stored per document.
	maxTextRunes = 50000
)

// Result is one fetched page, ready to become a raw document.
type Result struct {
	URL          string
	CanonicalURL string
	HTTPStatus   int
	ContentType  string
	Title        string
	TextContent  string
	HashSHA256   string
	FetchedAt    time.Time
	FromCache    bool
}

type Fetcher struct {
	client     *http.Client
	cache      *caching.Cache
	userAgent  string
	maxPerFeed int
	logger     *slog.Logger
}

// New builds a Fetcher from configuration. An empty cache directory
// disables caching.
func New(cfg models.FetcherConfig, logger *slog.Logger) (*Fetcher, error) {
	var cache *caching.Cache
	if cfg.CacheDir != "" {
		var err error
		cache, err = caching.NewCache(cfg.CacheDir, cfg.CacheMaxAge.Std())
		if err != nil {
			return nil, err
		}
	}
	maxPerFeed := cfg.MaxPerFeed
	if maxPerFeed <= 0 {
		maxPerFeed = 10
	}
	return &Fetcher{
		client:     &http.Client{Timeout: cfg.Timeout.Std()},
		cache:      cache,
		userAgent:  cfg.UserAgent,
		maxPerFeed: maxPerFeed,
		logger:     logger,
	}, nil
}

// Fetch downloads one URL and extracts its title and main text. HTML pages
// go through readability distillation; other content types are stored as-is.
// A non-200 response returns an error alongside a Result carrying the status
// code, so the caller can persist the failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	body, fetchedAt, cached := f.cachedBody(rawURL)
	result := Result{
		URL:        rawURL,
		HTTPStatus: http.StatusOK,
		FetchedAt:  fetchedAt,
		FromCache:  cached,
	}

	if !cached {
		var status int
		var err error
		body, status, err = f.get(ctx, rawURL)
		result.HTTPStatus = status
		result.FetchedAt = time.Now().UTC()
		if err != nil {
			return result, err
		}
		if f.cache != nil {
			if err := f.cache.Set(rawURL, body); err != nil {
				f.logger.Warn("cache write failed", "url", rawURL, "error", err)
			}
		}
	}

	result.HashSHA256 = common.ContentHash(body)
	result.ContentType = detectContentType(body)

	if strings.HasPrefix(result.ContentType, "text/html") {
		f.distillHTML(rawURL, body, &result)
	} else {
		result.TextContent = truncateRunes(string(body), maxTextRunes)
	}
	return result, nil
}

// DiscoverLinks fetches a feed's base page and returns same-host links found
// on it, capped at the per-feed limit. This is the depth-1 crawl: only links
// directly on the base page are followed.
func (f *Fetcher) DiscoverLinks(ctx context.Context, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	body, _, cached := f.cachedBody(baseURL)
	if !cached {
		body, _, err = f.get(ctx, baseURL)
		if err != nil {
			return nil, err
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	seen := map[string]bool{baseURL: true}
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		if resolved.Host != base.Host {
			return true
		}
		abs := resolved.String()
		if seen[abs] {
			return true
		}
		seen[abs] = true
		links = append(links, abs)
		return len(links) < f.maxPerFeed
	})
	return links, nil
}

func (f *Fetcher) cachedBody(rawURL string) ([]byte, time.Time, bool) {
	if f.cache == nil {
		return nil, time.Time{}, false
	}
	return f.cache.Get(rawURL)
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("failed to fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// distillHTML fills title, main text, and canonical URL from an HTML body.
// Readability failures degrade to whole-document text rather than failing
// the fetch.
func (f *Fetcher) distillHTML(rawURL string, body []byte, result *Result) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		parsedURL = &url.URL{}
	}

	readabilityParser := readability.NewParser()
	article, err := readabilityParser.Parse(strings.NewReader(string(body)), parsedURL)
	if err == nil {
		result.Title = strings.TrimSpace(article.Title)
		result.TextContent = truncateRunes(normalizeWhitespace(article.TextContent), maxTextRunes)
	} else {
		f.logger.Warn("readability distillation failed", "url", rawURL, "error", err)
	}

	doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if docErr != nil {
		return
	}
	if canonical, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok && canonical != "" {
		result.CanonicalURL = canonical
	}
	if result.Title == "" {
		result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if result.TextContent == "" {
		doc.Find("script,style,noscript").Remove()
		result.TextContent = truncateRunes(normalizeWhitespace(doc.Text()), maxTextRunes)
	}
}

func detectContentType(body []byte) string {
	ct := http.DetectContentType(body)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
