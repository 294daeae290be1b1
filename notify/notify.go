// Package notify posts run summaries to a chat webhook.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aluiziolira/go-best-rank/models"
	"github.com/aluiziolira/go-best-rank/report"
)

// Notifier delivers a plain-text message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop drops every message. It is used when no webhook is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// Webhook posts {"text": ...} payloads, the shape accepted by Slack-compatible
// incoming webhooks.
type Webhook struct {
	url  string
	http *resty.Client
}

type payload struct {
	Text string `json:"text"`
}

// NewWebhook returns a notifier posting to url.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)
	return &Webhook{url: url, http: client}
}

// New picks the webhook when url is set and Nop otherwise.
func New(url string, timeout time.Duration) Notifier {
	if url == "" {
		return Nop{}
	}
	return NewWebhook(url, timeout)
}

func (w *Webhook) Notify(ctx context.Context, text string) error {
	res, err := w.http.R().
		SetContext(ctx).
		SetBody(payload{Text: text}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("post webhook: unexpected status %d", res.StatusCode())
	}
	slog.Debug("notification sent", slog.Int("status", res.StatusCode()))
	return nil
}

// ReportSummary formats a finished report for chat.
func ReportSummary(r *report.Report, files report.Artifacts) string {
	var b strings.Builder
	period := "주간"
	if r.Window.Kind == report.KindMonthly {
		period = "월간"
	}
	fmt.Fprintf(&b, "📊 %s %s 리포트 생성 완료\n", r.Window.Label, period)
	fmt.Fprintf(&b, "- 총 발견 상품: %d개 (%d/%d일 데이터)\n", r.TotalCount, r.DaysWithData, r.DaysInWindow)
	fmt.Fprintf(&b, "- 일평균: %.1f개\n", r.DailyAverage)
	if r.Window.Kind == report.KindMonthly {
		fmt.Fprintf(&b, "- 평가: %s등급 (이전 기간 %d개)\n", r.Grade, r.PreviousTotal)
	}
	if len(r.Top) > 0 {
		top := r.Top[0].Record
		fmt.Fprintf(&b, "- 최고 순위: %d위 %s (%s)\n", top.Rank, top.ProductName, top.Category().Label())
	}
	if n := len(r.Versions); n > 0 {
		fmt.Fprintf(&b, "- ⚠️ 기간 중 카테고리 구성 변경 %d회\n", n)
	}
	if files.Markdown != "" {
		fmt.Fprintf(&b, "- 파일: %s\n", files.Markdown)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FailureSummary formats a collection run in which no category succeeded.
func FailureSummary(date time.Time, result *models.CollectionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 %s 베스트 수집 실패\n", models.DateKey(date))
	fmt.Fprintf(&b, "- 실패 카테고리: %d개, 미시도: %d개\n", len(result.Failures), len(result.NotAttempted))
	types := make([]string, 0, len(result.ErrorsByType))
	for errType := range result.ErrorsByType {
		types = append(types, errType)
	}
	sort.Strings(types)
	for _, errType := range types {
		fmt.Fprintf(&b, "- %s: %d\n", errType, result.ErrorsByType[errType])
	}
	if len(result.Failures) > 0 {
		f := result.Failures[0]
		fmt.Fprintf(&b, "- 첫 오류: %s page %d (%d회 시도): %v\n", f.Category.Key(), f.Page, f.Attempts, f.Err)
	}
	return strings.TrimRight(b.String(), "\n")
}
