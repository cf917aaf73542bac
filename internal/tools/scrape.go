package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

const scrapeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

// Scrape opens a URL and returns its main text.
type Scrape struct {
	client  *http.Client
	robots  *robotsChecker
	limits  *domainLimiter
	results *cache.Cache
	log     zerolog.Logger
}

func NewScrape(client *http.Client) *Scrape {
	return &Scrape{
		client:  client,
		robots:  newRobotsChecker(client),
		limits:  newDomainLimiter(),
		results: cache.New(30*time.Minute, 10*time.Minute),
		log:     log.With().Str("component", "tools").Str("tool", "open_url").Logger(),
	}
}

func (s *Scrape) Descriptor() Descriptor {
	return Descriptor{
		Name:        "open_url",
		Description: "Opens a URL and returns its contents. Does not support non-text content types.",
		Parameters:  schema([]string{"url"}, [2]string{"url", "The link to open"}),
	}
}

func (s *Scrape) Run(ctx context.Context, args map[string]any) (string, error) {
	raw, err := requireArg(args, "url")
	if err != nil {
		return "", err
	}
	failed := fmt.Sprintf("Failed to open %s", raw)

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return failed, nil
	}
	if cached, ok := s.results.Get(raw); ok {
		return cached.(string), nil
	}

	allowed, delay := s.robots.check(ctx, u)
	if !allowed {
		return fmt.Sprintf("Access to %s is disallowed by robots.txt", raw), nil
	}
	if err := s.limits.wait(ctx, u.Host, delay); err != nil {
		return "", err
	}

	out, err := s.fetch(ctx, u)
	if err != nil {
		s.log.Warn().Err(err).Str("url", raw).Msg("open url failed")
		return failed, nil
	}
	s.results.Set(raw, out, cache.DefaultExpiration)
	return out, nil
}

func (s *Scrape) fetch(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Referer", "https://www.google.com/")
	req.Header.Set("User-Agent", scrapeUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text") {
		return fmt.Sprintf("Contents of %s is not text/html", u), nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("[Contents of %s:]\n%s", u, extractText(body, u)), nil
}

// extractText returns the main content of a page, falling back to the whole
// body text when trafilatura finds nothing.
func extractText(body []byte, u *url.URL) string {
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{OriginalURL: u})
	if err == nil && result != nil && strings.TrimSpace(result.ContentText) != "" {
		return result.ContentText
	}
	return documentText(body)
}

func documentText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return strings.TrimSpace(string(body))
	}
	doc.Find("script, style, noscript, nav, footer").Remove()
	sel := doc.Find("body")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	return strings.Join(strings.Fields(sel.Text()), " ")
}

type robotsChecker struct {
	client *http.Client
	cache  *cache.Cache
}

func newRobotsChecker(client *http.Client) *robotsChecker {
	return &robotsChecker{client: client, cache: cache.New(24*time.Hour, time.Hour)}
}

// check reports whether u may be fetched and the crawl delay to honor.
// Unreachable or malformed robots files allow everything.
func (rc *robotsChecker) check(ctx context.Context, u *url.URL) (bool, time.Duration) {
	origin := u.Scheme + "://" + u.Host
	var data *robotstxt.RobotsData
	if cached, ok := rc.cache.Get(origin); ok {
		data = cached.(*robotstxt.RobotsData)
	} else {
		data = rc.fetch(ctx, origin)
		rc.cache.Set(origin, data, cache.DefaultExpiration)
	}
	if data == nil {
		return true, time.Second
	}
	group := data.FindGroup(scrapeUserAgent)
	delay := time.Second
	if group.CrawlDelay > 0 {
		delay = min(group.CrawlDelay, 10*time.Second)
	}
	return group.Test(u.Path), delay
}

func (rc *robotsChecker) fetch(ctx context.Context, origin string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", scrapeUserAgent)
	resp, err := rc.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data
}

// domainLimiter spaces requests to the same host by its crawl delay.
type domainLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newDomainLimiter() *domainLimiter {
	return &domainLimiter{limiters: map[string]*rate.Limiter{}}
}

func (d *domainLimiter) wait(ctx context.Context, host string, delay time.Duration) error {
	d.mu.Lock()
	l, ok := d.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(delay), 1)
		d.limiters[host] = l
	}
	d.mu.Unlock()
	return l.Wait(ctx)
}
