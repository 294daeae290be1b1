package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-best-rank/config"
	"github.com/aluiziolira/go-best-rank/models"
	"github.com/aluiziolira/go-best-rank/parser"
)

type fakeClock struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: time.Second, Multiplier: 2, Max: 30 * time.Second, MaxAttempts: 5}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		if got := b.Delay(i + 1); got != w {
			t.Fatalf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	clock := &fakeClock{}
	policy := Backoff{Base: 100 * time.Millisecond, Multiplier: 2, Max: time.Second, MaxAttempts: 5}

	calls := 0
	attempts, err := Retry(context.Background(), policy, clock, func(int) error {
		calls++
		if calls < 3 {
			return ErrServer{Status: 502, Err: errors.New("bad gateway")}
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	waits := clock.Waits()
	if len(waits) != 2 || waits[0] != 100*time.Millisecond || waits[1] != 200*time.Millisecond {
		t.Fatalf("waits = %v, want [100ms 200ms]", waits)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	clock := &fakeClock{}
	policy := Backoff{Base: time.Second, Multiplier: 2, Max: time.Minute, MaxAttempts: 5}

	attempts, err := Retry(context.Background(), policy, clock, func(int) error {
		return MalformedResponseError{Err: errors.New("unexpected shape")}
	}, nil)
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	var malformed MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedResponseError, got %v", err)
	}
	if len(clock.Waits()) != 0 {
		t.Fatalf("non-retryable error should not wait")
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	clock := &fakeClock{}
	policy := Backoff{Base: time.Second, Multiplier: 2, Max: 3 * time.Second, MaxAttempts: 4}

	notified := 0
	attempts, err := Retry(context.Background(), policy, clock, func(int) error {
		return ErrConnection{Err: errors.New("reset")}
	}, func(int, time.Duration, error) { notified++ })
	if attempts != 4 || err == nil {
		t.Fatalf("attempts=%d err=%v, want 4 attempts and an error", attempts, err)
	}
	if notified != 3 {
		t.Fatalf("notified %d times, want 3", notified)
	}
	waits := clock.Waits()
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("waits = %v, want %v", waits, want)
		}
	}
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Backoff{Base: time.Hour, Multiplier: 2, Max: time.Hour, MaxAttempts: 5}

	attempts, err := Retry(ctx, policy, realClock{}, func(int) error {
		cancel()
		return ErrTimeout{Err: context.DeadlineExceeded}
	}, nil)
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
		retryable  bool
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout", retryable: true},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout", retryable: true},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection", retryable: true},
		{name: "transport", err: &url.Error{Op: "Post", URL: "https://api.example.test", Err: io.ErrUnexpectedEOF}, statusCode: 0, expected: "connection", retryable: true},
		{name: "server error", err: errors.New("Internal Server Error"), statusCode: http.StatusInternalServerError, expected: "server_error", retryable: true},
		{name: "bad gateway", err: nil, statusCode: http.StatusBadGateway, expected: "server_error", retryable: true},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited", retryable: true},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "bad request", err: nil, statusCode: http.StatusBadRequest, expected: "client_error"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifyError(tt.err, tt.statusCode)
			if got := errorTypeLabel(classified); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
			if got := IsRetryable(classified); got != tt.retryable {
				t.Fatalf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

// stubFetcher serves scripted pages keyed by category and page number.
type stubFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	serve func(req PageRequest, call int) (*parser.Page, error)
}

func (s *stubFetcher) FetchPage(_ context.Context, req PageRequest) (*parser.Page, error) {
	key := fmt.Sprintf("%s#%d", req.Category.Key(), req.PageNo)
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[key]++
	call := s.calls[key]
	s.mu.Unlock()
	return s.serve(req, call)
}

func listing(brand string, rank int, url string) parser.Listing {
	return parser.Listing{BrandName: brand, ProductName: "Item " + url, SalePrice: 10000, DiscountRate: 5, Rank: rank, ProductURL: url}
}

func testOptions() Options {
	return Options{
		PageSize:    2,
		MaxPages:    5,
		Parallelism: 2,
		Backoff:     Backoff{Base: time.Millisecond, Multiplier: 2, Max: 10 * time.Millisecond, MaxAttempts: 3},
		Brands:      []string{"HACIE"},
		Location:    time.UTC,
	}
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)
}

var (
	catA = models.CategoryNode{Depth1Code: "ALL", Depth1Name: "전체", Depth2Code: "ALL", Depth2Name: "전체"}
	catB = models.CategoryNode{Depth1Code: "10101", Depth1Name: "의류", Depth2Code: "ALL", Depth2Name: "전체"}
	catC = models.CategoryNode{Depth1Code: "10102", Depth1Name: "가방", Depth2Code: "ALL", Depth2Name: "전체"}
)

func TestCollectDeduplicatesAcrossPages(t *testing.T) {
	fetcher := &stubFetcher{serve: func(req PageRequest, _ int) (*parser.Page, error) {
		switch req.PageNo {
		case 1:
			return &parser.Page{Listings: []parser.Listing{listing("HACIE", 3, "u3"), listing("HACIE", 7, "u7")}, HasNext: true}, nil
		case 2:
			return &parser.Page{Listings: []parser.Listing{listing("HACIE", 7, "u7"), listing("hacie", 9, "u9")}, HasNext: false}, nil
		}
		t.Fatalf("unexpected page %d", req.PageNo)
		return nil, nil
	}}

	c := NewCollector(fetcher, testOptions(), WithClock(&fakeClock{}), WithNow(fixedNow))
	result := c.Collect(context.Background(), []models.CategoryNode{catA})

	if len(result.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", result.Failures)
	}
	if len(result.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(result.Records))
	}
	for i, want := range []int{3, 7, 9} {
		if result.Records[i].Rank != want {
			t.Fatalf("record %d rank = %d, want %d", i, result.Records[i].Rank, want)
		}
	}
	rec := result.Records[0]
	if models.DateKey(rec.Date) != "2025-03-04" || !rec.CollectedAt.Equal(fixedNow()) {
		t.Fatalf("unexpected stamps: date=%v collected=%v", rec.Date, rec.CollectedAt)
	}
	if rec.Depth1Name != "전체" || rec.Depth2Code != "ALL" {
		t.Fatalf("category fields not copied: %+v", rec)
	}
	if result.PageCount != 2 || result.Succeeded != 1 {
		t.Fatalf("pages=%d succeeded=%d, want 2/1", result.PageCount, result.Succeeded)
	}
}

func TestCollectFiltersBrandsAndStopsOnEmptyPage(t *testing.T) {
	fetcher := &stubFetcher{serve: func(req PageRequest, _ int) (*parser.Page, error) {
		if req.PageNo == 1 {
			return &parser.Page{Listings: []parser.Listing{
				listing("OTHER", 1, "o1"),
				listing("HACIE STUDIO", 2, "o2"),
				listing(" HACIE ", 4, "h4"),
			}, HasNext: true}, nil
		}
		return &parser.Page{}, nil
	}}

	c := NewCollector(fetcher, testOptions(), WithClock(&fakeClock{}), WithNow(fixedNow))
	result := c.Collect(context.Background(), []models.CategoryNode{catA})

	if len(result.Records) != 1 || result.Records[0].Rank != 4 {
		t.Fatalf("records = %+v, want only rank 4", result.Records)
	}
	if fetcher.calls[catA.Key().String()+"#3"] != 0 {
		t.Fatalf("walk should stop at the empty page")
	}
}

func TestCollectIsolatesCategoryFailures(t *testing.T) {
	fetcher := &stubFetcher{serve: func(req PageRequest, _ int) (*parser.Page, error) {
		switch req.Category.Key() {
		case catA.Key():
			return nil, ErrServer{Status: 503, Err: errors.New("unavailable")}
		case catB.Key():
			return &parser.Page{Listings: []parser.Listing{listing("HACIE", 1, "b1")}}, nil
		default:
			return nil, MalformedResponseError{Err: parser.ErrMalformed}
		}
	}}

	clock := &fakeClock{}
	c := NewCollector(fetcher, testOptions(), WithClock(clock), WithNow(fixedNow), WithMetrics(NewMetrics()))
	result := c.Collect(context.Background(), []models.CategoryNode{catA, catB, catC})

	if len(result.Records) != 1 || result.Records[0].Depth1Code != catB.Depth1Code {
		t.Fatalf("records = %+v, want catB's record", result.Records)
	}
	if len(result.Failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(result.Failures))
	}
	first, second := result.Failures[0], result.Failures[1]
	if first.Category != catA || first.Attempts != 3 || first.ErrorType != "server_error" {
		t.Fatalf("unexpected first failure: %+v", first)
	}
	if second.Category != catC || second.Attempts != 1 || second.ErrorType != "malformed_response" {
		t.Fatalf("unexpected second failure: %+v", second)
	}
	if result.AllFailed() {
		t.Fatalf("run with one success must not count as all failed")
	}
	if result.ErrorsByType["server_error"] != 1 || result.RetryCount != 2 {
		t.Fatalf("errors=%v retries=%d", result.ErrorsByType, result.RetryCount)
	}
}

func TestCollectFailedCategoryKeepsNoPartialRecords(t *testing.T) {
	fetcher := &stubFetcher{serve: func(req PageRequest, _ int) (*parser.Page, error) {
		if req.PageNo == 1 {
			return &parser.Page{Listings: []parser.Listing{listing("HACIE", 1, "a1")}, HasNext: true}, nil
		}
		return nil, ErrForbidden{Err: errors.New("blocked")}
	}}

	c := NewCollector(fetcher, testOptions(), WithClock(&fakeClock{}), WithNow(fixedNow))
	result := c.Collect(context.Background(), []models.CategoryNode{catA})

	if len(result.Records) != 0 {
		t.Fatalf("failed category contributed %d records", len(result.Records))
	}
	if len(result.Failures) != 1 || result.Failures[0].Page != 2 {
		t.Fatalf("failures = %+v, want one failure on page 2", result.Failures)
	}
	if !result.AllFailed() {
		t.Fatalf("expected AllFailed")
	}
}

func TestCollectPreservesInputOrder(t *testing.T) {
	fetcher := &stubFetcher{serve: func(req PageRequest, _ int) (*parser.Page, error) {
		if req.Category.Key() == catA.Key() {
			time.Sleep(20 * time.Millisecond)
		}
		return &parser.Page{Listings: []parser.Listing{listing("HACIE", 1, req.Category.Depth1Code)}}, nil
	}}

	opts := testOptions()
	opts.Parallelism = 3
	c := NewCollector(fetcher, opts, WithClock(&fakeClock{}), WithNow(fixedNow))
	result := c.Collect(context.Background(), []models.CategoryNode{catA, catB, catC})

	if len(result.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(result.Records))
	}
	for i, cat := range []models.CategoryNode{catA, catB, catC} {
		if result.Records[i].Depth1Code != cat.Depth1Code {
			t.Fatalf("record %d from %s, want %s", i, result.Records[i].Depth1Code, cat.Depth1Code)
		}
	}
}

func TestCollectCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &stubFetcher{serve: func(req PageRequest, _ int) (*parser.Page, error) {
		if req.Category.Key() == catB.Key() {
			cancel()
			return nil, context.Canceled
		}
		return &parser.Page{Listings: []parser.Listing{listing("HACIE", 1, "x")}}, nil
	}}

	opts := testOptions()
	opts.Parallelism = 1
	c := NewCollector(fetcher, opts, WithClock(&fakeClock{}), WithNow(fixedNow))
	result := c.Collect(ctx, []models.CategoryNode{catA, catB, catC})

	if result.Succeeded != 1 || len(result.Records) != 1 {
		t.Fatalf("succeeded=%d records=%d, want 1/1", result.Succeeded, len(result.Records))
	}
	if len(result.Failures) != 1 || result.Failures[0].Category != catB || result.Failures[0].ErrorType != "canceled" {
		t.Fatalf("failures = %+v, want catB canceled", result.Failures)
	}
	if len(result.NotAttempted) != 1 || result.NotAttempted[0] != catC {
		t.Fatalf("not attempted = %+v, want [catC]", result.NotAttempted)
	}
}

func TestCollectAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &stubFetcher{serve: func(PageRequest, int) (*parser.Page, error) {
		t.Fatalf("no fetch expected after cancellation")
		return nil, nil
	}}
	c := NewCollector(fetcher, testOptions(), WithClock(&fakeClock{}))
	result := c.Collect(ctx, []models.CategoryNode{catA, catB})

	if len(result.NotAttempted) != 2 || result.Attempted() != 0 || result.AllFailed() {
		t.Fatalf("unexpected result: %+v", result)
	}
}

const testAPIURL = "https://api.example.test/display/api/best/v1/product"

func newTestClient(t *testing.T, transport *httpmock.MockTransport) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.APIURL = testAPIURL
	cfg.Request.APIKey = "secret"
	cfg.Parallelism = 2

	client, err := NewClient(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.collector.WithTransport(transport)
	return client
}

func TestClientFetchPage(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, testAPIURL, func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("X-Api-Key"); got != "secret" {
			t.Errorf("api key header = %q", got)
		}
		if got := req.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type = %q", got)
		}
		var payload map[string]any
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["depth1Code"] != "10101" || payload["depth2Code"] != "ALL" || payload["pageNo"] != float64(2) || payload["domain"] != "WOMEN" {
			t.Errorf("unexpected payload: %v", payload)
		}
		return httpmock.NewStringResponse(200, `{"data":{"totalCount":3,"products":[{"rank":3,"brandName":"HACIE","productName":"Coat","salePrice":1000,"itemCd":"77"}]}}`), nil
	})

	client := newTestClient(t, transport)
	page, err := client.FetchPage(context.Background(), PageRequest{Category: catB, PageNo: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(page.Listings) != 1 || page.Listings[0].Rank != 3 || page.Listings[0].ProductURL != parser.DefaultProductURLPrefix+"77" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.HasNext {
		t.Fatalf("page 2 of 3 items with size 2 should be the last")
	}
}

func TestClientHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		expected  string
		retryable bool
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited", retryable: true},
		{status: http.StatusServiceUnavailable, expected: "server_error", retryable: true},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder(http.MethodPost, testAPIURL, httpmock.NewStringResponder(tt.status, ""))

			client := newTestClient(t, transport)
			_, err := client.FetchPage(context.Background(), PageRequest{Category: catA, PageNo: 1, PageSize: 10})
			if got := errorTypeLabel(err); got != tt.expected {
				t.Fatalf("label = %q, want %q (err=%v)", got, tt.expected, err)
			}
			if IsRetryable(err) != tt.retryable {
				t.Fatalf("IsRetryable = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestClientMalformedBody(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, testAPIURL, httpmock.NewStringResponder(200, `<html>maintenance</html>`))

	client := newTestClient(t, transport)
	_, err := client.FetchPage(context.Background(), PageRequest{Category: catA, PageNo: 1, PageSize: 10})
	var malformed MalformedResponseError
	if !errors.As(err, &malformed) || !errors.Is(err, parser.ErrMalformed) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}

func TestClientWithCollectorRetriesServerErrors(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, testAPIURL, func(*http.Request) (*http.Response, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return httpmock.NewStringResponse(http.StatusInternalServerError, ""), nil
		}
		return httpmock.NewStringResponse(200, `{"products":[{"rank":5,"brandName":"HACIE","productName":"Dress","productUrl":"https://example.test/p/5"}],"hasNext":false}`), nil
	})

	client := newTestClient(t, transport)
	clock := &fakeClock{}
	c := NewCollector(client, testOptions(), WithClock(clock), WithNow(fixedNow))
	result := c.Collect(context.Background(), []models.CategoryNode{catA})

	if len(result.Failures) != 0 || len(result.Records) != 1 {
		t.Fatalf("failures=%v records=%d", result.Failures, len(result.Records))
	}
	if result.RequestCount != 2 || result.RetryCount != 1 || len(clock.Waits()) != 1 {
		t.Fatalf("requests=%d retries=%d waits=%v", result.RequestCount, result.RetryCount, clock.Waits())
	}
}

func BenchmarkCollect(b *testing.B) {
	fetcher := &stubFetcher{serve: func(req PageRequest, _ int) (*parser.Page, error) {
		listings := make([]parser.Listing, 0, 50)
		for i := 0; i < 50; i++ {
			brand := "OTHER"
			if i%5 == 0 {
				brand = "HACIE"
			}
			listings = append(listings, listing(brand, i+1, fmt.Sprintf("%s-%d", req.Category.Depth1Code, i)))
		}
		return &parser.Page{Listings: listings}, nil
	}}

	categories := make([]models.CategoryNode, 0, 64)
	for i := 0; i < 64; i++ {
		categories = append(categories, models.CategoryNode{Depth1Code: fmt.Sprintf("D%d", i), Depth2Code: "ALL"})
	}

	for _, workers := range []int{1, 4, 16} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			opts := testOptions()
			opts.Parallelism = workers
			c := NewCollector(fetcher, opts, WithClock(&fakeClock{}))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				c.Collect(context.Background(), categories)
			}
		})
	}
}
