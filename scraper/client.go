package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-best-rank/config"
	"github.com/aluiziolira/go-best-rank/models"
	"github.com/aluiziolira/go-best-rank/parser"
)

const (
	ctxKeyStart  = "start"
	ctxKeyStatus = "status"
	ctxKeyBody   = "body"
	ctxKeyParent = "parent"
)

// PageRequest identifies one ranking page of one category.
type PageRequest struct {
	Category models.CategoryNode
	PageNo   int
	PageSize int
}

// PageFetcher fetches and parses one ranking page.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (*parser.Page, error)
}

// Client posts ranking queries through a colly collector. Requests run
// synchronously so each caller gets its own response; parallelism and pacing
// come from the collector's LimitRule.
type Client struct {
	apiURL    string
	request   config.RequestConfig
	collector *colly.Collector
	Metrics   *Metrics
}

// NewClient builds a ranking client configured from cfg.
func NewClient(cfg *config.Config, metrics *Metrics) (*Client, error) {
	parsed, err := url.Parse(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("api url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	c := &Client{
		apiURL:    cfg.APIURL,
		request:   cfg.Request,
		collector: collector,
		Metrics:   metrics,
	}
	c.configureHandlers()
	return c, nil
}

func (c *Client) configureHandlers() {
	c.collector.OnRequest(func(r *colly.Request) {
		if parent, ok := r.Ctx.GetAny(ctxKeyParent).(context.Context); ok && parent.Err() != nil {
			r.Abort()
			return
		}
		r.Ctx.Put(ctxKeyStart, time.Now())
		c.Metrics.IncRequest("started")
	})

	c.collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Request.Ctx.GetAny(ctxKeyStart).(time.Time); ok {
			c.Metrics.ObserveDuration(time.Since(start))
		}
		c.Metrics.IncRequest("completed")
		r.Ctx.Put(ctxKeyBody, r.Body)
	})

	c.collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
			if r.Ctx != nil {
				r.Ctx.Put(ctxKeyStatus, statusCode)
			}
		}
		label := errorTypeLabel(classifyError(err, statusCode))
		c.Metrics.IncRequest("failed")
		c.Metrics.IncError(label)
		slog.Debug("ranking request error",
			slog.Int("status", statusCode),
			slog.String("error_type", label),
			slog.Any("error", err),
		)
	})
}

type rankingPayload struct {
	CustNo     string `json:"custNo"`
	Domain     string `json:"domain"`
	GenderType string `json:"genderType"`
	DateType   string `json:"dateType"`
	AgeGroup   string `json:"ageGroup"`
	Depth1Code string `json:"depth1Code"`
	Depth2Code string `json:"depth2Code"`
	PageSize   int    `json:"pageSize"`
	PageNo     int    `json:"pageNo"`
}

func (c *Client) headers() http.Header {
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	hdr.Set("Accept", "application/json, text/plain, */*")
	if c.request.Origin != "" {
		hdr.Set("Origin", c.request.Origin)
	}
	if c.request.Referer != "" {
		hdr.Set("Referer", c.request.Referer)
	}
	if c.request.APIKey != "" {
		hdr.Set("X-Api-Key", c.request.APIKey)
	}
	return hdr
}

// FetchPage issues one ranking request and parses the response.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*parser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(rankingPayload{
		CustNo:     c.request.CustomerNo,
		Domain:     c.request.Domain,
		GenderType: c.request.GenderType,
		DateType:   c.request.DateType,
		AgeGroup:   c.request.AgeGroup,
		Depth1Code: req.Category.Depth1Code,
		Depth2Code: req.Category.Depth2Code,
		PageSize:   req.PageSize,
		PageNo:     req.PageNo,
	})
	if err != nil {
		return nil, fmt.Errorf("encode ranking request: %w", err)
	}

	rctx := colly.NewContext()
	rctx.Put(ctxKeyParent, ctx)
	reqErr := c.collector.Request(http.MethodPost, c.apiURL, bytes.NewReader(body), rctx, c.headers())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reqErr != nil {
		status, _ := rctx.GetAny(ctxKeyStatus).(int)
		return nil, classifyError(reqErr, status)
	}

	data, ok := rctx.GetAny(ctxKeyBody).([]byte)
	if !ok {
		return nil, MalformedResponseError{Err: errors.New("no response body")}
	}
	page, err := parser.ParseRankingPage(data, parser.PageOptions{PageNo: req.PageNo, PageSize: req.PageSize})
	if err != nil {
		return nil, MalformedResponseError{Err: err}
	}
	return page, nil
}
