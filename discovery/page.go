package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-best-rank/models"
	"github.com/aluiziolira/go-best-rank/parser"
)

// PageSource reads the taxonomy embedded in the server-rendered best page
// (the __NEXT_DATA__ script).
type PageSource struct {
	url       string
	collector *colly.Collector
}

// NewPageSource builds a source for pageURL.
func NewPageSource(pageURL, userAgent string) (*PageSource, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse category page url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("category page url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	collector.IgnoreRobotsTxt = true
	return &PageSource{url: pageURL, collector: collector}, nil
}

func (p *PageSource) Discover(ctx context.Context) ([]models.CategoryNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		payload string
		reqErr  error
	)
	c := p.collector.Clone()
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8")
	})
	c.OnHTML("script#__NEXT_DATA__", func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		if payload == "" {
			payload = strings.TrimSpace(e.Text)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		reqErr = fmt.Errorf("status %d: %w", status, err)
	})

	if err := c.Visit(p.url); err != nil && reqErr == nil {
		reqErr = err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if reqErr != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrDiscoveryFailed, p.url, reqErr)
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: %s has no __NEXT_DATA__ script", ErrDiscoveryFailed, p.url)
	}
	nodes, err := parser.ParseCategoryTree([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: page listed no categories", ErrDiscoveryFailed)
	}
	return nodes, nil
}
