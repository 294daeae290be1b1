package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/aluiziolira/go-best-rank/models"
)

const timestampLayout = "2006-01-02 15:04:05"

// RenderMarkdown renders the narrative artifact. Every number printed here is
// read from r, the same value RenderCSV writes.
func RenderMarkdown(r *Report) string {
	var b strings.Builder
	monthly := r.Window.Kind == KindMonthly
	period := "주간"
	if monthly {
		period = "월간"
	}

	fmt.Fprintf(&b, "# 📊 %s 브랜드 %s 통계 리포트\n\n", brandOrDefault(r.Brand), period)
	fmt.Fprintf(&b, "**분석 기간:** %s (%s ~ %s)\n\n",
		r.Window.Label, models.DateKey(r.Window.Start), models.DateKey(r.Window.End))

	fmt.Fprintf(&b, "## 📈 %s 요약\n\n", period)
	if r.ZeroActivity() {
		b.WriteString("> 이 기간에는 베스트 순위에 진입한 상품이 없습니다.\n\n")
	}
	fmt.Fprintf(&b, "- **총 발견 상품:** %d개\n", r.TotalCount)
	fmt.Fprintf(&b, "- **분석 일수:** %d일 / %d일 (%s 커버리지)\n", r.DaysWithData, r.DaysInWindow, percent(r.Coverage))
	fmt.Fprintf(&b, "- **일평균 상품 수:** %s개\n", fixed1(r.DailyAverage))
	fmt.Fprintf(&b, "- **평균 순위:** %s위\n", fixed1(r.MeanRank))
	fmt.Fprintf(&b, "- **고유 상품 수:** %d개\n", r.UniqueProducts)
	if monthly {
		fmt.Fprintf(&b, "- **이전 기간 상품 수:** %d개\n", r.PreviousTotal)
	}
	b.WriteString("\n")

	if monthly {
		writeWeeks(&b, r)
	} else {
		writeDaily(&b, r)
	}
	writeCategories(&b, r, period)
	writeTop(&b, r, period)
	if monthly {
		writePrices(&b, r)
	}
	writeInsights(&b, r, period)

	if notes := r.Notes(); len(notes) > 0 {
		b.WriteString("## ⚠️ 참고 사항\n\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n\n*생성 일시: %s*\n", r.GeneratedAt.Format(timestampLayout))
	return b.String()
}

func writeDaily(b *strings.Builder, r *Report) {
	b.WriteString("## 📅 일별 통계\n\n")
	t := newMarkdownTable(table.Row{"날짜", "상품 수"}, 2)
	for _, d := range r.Daily {
		count := strconv.Itoa(d.Count) + "개"
		if !d.HasData {
			count = "-"
		}
		t.AppendRow(table.Row{models.DateKey(d.Date), count})
	}
	writeTable(b, t)
}

func writeWeeks(b *strings.Builder, r *Report) {
	b.WriteString("## 📅 주별 추이\n\n")
	if len(r.Weeks) == 0 {
		b.WriteString("데이터가 없습니다.\n\n")
		return
	}
	t := newMarkdownTable(table.Row{"주차", "발견 상품 수", "일평균", "추이"}, 2, 3)
	for _, wk := range r.Weeks {
		t.AppendRow(table.Row{weekLabel(wk.Week), strconv.Itoa(wk.Count) + "개", fixed1(wk.DailyAverage) + "개", trendArrow(wk.Trend)})
	}
	writeTable(b, t)
}

func writeCategories(b *strings.Builder, r *Report, period string) {
	fmt.Fprintf(b, "## 🏆 카테고리별 %s 통계\n\n", period)
	if len(r.Categories) == 0 {
		b.WriteString("데이터가 없습니다.\n\n")
		return
	}
	t := newMarkdownTable(table.Row{"순위", "카테고리", "진입 횟수", "평균 순위", "최고 순위", "평균 가격"}, 3, 4, 5, 6)
	for i, c := range r.Categories {
		t.AppendRow(table.Row{
			strconv.Itoa(i + 1),
			c.Node.Label(),
			strconv.Itoa(c.Count) + "회",
			fixed1(c.MeanRank) + "위",
			strconv.Itoa(c.BestRank) + "위",
			won(int(c.MeanPrice)),
		})
	}
	writeTable(b, t)
}

func writeTop(b *strings.Builder, r *Report, period string) {
	fmt.Fprintf(b, "## 🌟 %s 베스트 TOP %d\n\n", period, len(r.Top))
	if len(r.Top) == 0 {
		b.WriteString("데이터가 없습니다.\n\n")
		return
	}
	t := newMarkdownTable(table.Row{"#", "순위", "상품명", "카테고리", "가격", "할인율", "날짜"}, 2, 5, 6)
	for _, e := range r.Top {
		rec := e.Record
		t.AppendRow(table.Row{
			strconv.Itoa(e.Position),
			strconv.Itoa(rec.Rank) + "위",
			productLink(rec, 40),
			rec.Category().Label(),
			won(rec.SalePrice),
			strconv.Itoa(rec.DiscountRate) + "%",
			models.DateKey(rec.Date),
		})
	}
	writeTable(b, t)
}

func writePrices(b *strings.Builder, r *Report) {
	b.WriteString("## 💰 가격대 분석\n\n")
	if r.Price.Count == 0 {
		b.WriteString("가격 정보가 없습니다.\n\n")
		return
	}
	fmt.Fprintf(b, "- **평균 가격:** %s\n", won(int(r.Price.Mean)))
	fmt.Fprintf(b, "- **중간 가격:** %s\n", won(int(r.Price.Median)))
	fmt.Fprintf(b, "- **가격 범위:** %s ~ %s\n\n", won(r.Price.Min), won(r.Price.Max))

	t := newMarkdownTable(table.Row{"가격대", "상품 수"}, 2)
	for _, bucket := range r.PriceBuckets {
		t.AppendRow(table.Row{bucketLabel(bucket), strconv.Itoa(bucket.Count) + "개"})
	}
	writeTable(b, t)
}

func writeInsights(b *strings.Builder, r *Report, period string) {
	fmt.Fprintf(b, "## 💡 %s 인사이트\n\n", period)
	if r.Window.Kind == KindMonthly {
		fmt.Fprintf(b, "- **%s 평가:** %s등급\n", period, r.Grade)
		fmt.Fprintf(b, "- **종합 의견:** %s\n", r.Grade.Comment())
		if len(r.Categories) > 0 {
			b.WriteString("\n**강점 카테고리:**\n")
			for _, c := range r.Categories[:min(3, len(r.Categories))] {
				fmt.Fprintf(b, "- **%s**: %d회 진입, 평균 %s위\n", c.Node.Label(), c.Count, fixed1(c.MeanRank))
			}
		}
		b.WriteString("\n")
		return
	}

	switch {
	case r.DailyAverage >= thresholdA:
		b.WriteString("- ✅ **우수한 성과**: 일평균 10개 이상의 상품이 베스트 순위에 진입했습니다.\n")
	case r.DailyAverage >= thresholdB:
		b.WriteString("- ✔️ **양호한 성과**: 일평균 5개 이상의 상품이 베스트 진입을 유지하고 있습니다.\n")
	default:
		b.WriteString("- ⚠️ **개선 필요**: 베스트 진입 상품 수가 적습니다.\n")
	}
	if len(r.Categories) > 0 {
		c := r.Categories[0]
		fmt.Fprintf(b, "- 🎯 **주력 카테고리**: %s (%d회 진입)\n", c.Node.Label(), c.Count)
	}
	b.WriteString("\n")
}

// newMarkdownTable right-aligns the given 1-based columns.
func newMarkdownTable(header table.Row, rightAligned ...int) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(header)
	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, n := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	t.SetColumnConfigs(configs)
	return t
}

func writeTable(b *strings.Builder, t table.Writer) {
	b.WriteString(t.RenderMarkdown())
	b.WriteString("\n\n")
}

func productLink(rec models.ProductRecord, maxRunes int) string {
	name := truncate(rec.ProductName, maxRunes)
	if strings.HasPrefix(rec.ProductURL, "http") {
		return "[" + name + "](" + rec.ProductURL + ")"
	}
	return name
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

func won(amount int) string {
	return "₩" + humanize.Comma(int64(amount))
}

func bucketLabel(b PriceBucket) string {
	if b.Upper == 0 {
		return won(b.Lower) + " 이상"
	}
	return won(b.Lower) + " ~ " + won(b.Upper-1)
}

func trendArrow(t Trend) string {
	switch t {
	case TrendUp:
		return "📈"
	case TrendDown:
		return "📉"
	}
	return "➡️"
}

func brandOrDefault(brand string) string {
	if brand == "" {
		return "브랜드"
	}
	return brand
}

// DailyOptions controls the per-date narrative.
type DailyOptions struct {
	Brand       string
	FileName    string
	TopN        int
	GeneratedAt time.Time
}

// RenderDaily renders the narrative summary of one collected date.
func RenderDaily(batch models.DailyBatch, opts DailyOptions) string {
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now()
	}
	brand := brandOrDefault(opts.Brand)

	var b strings.Builder
	b.WriteString("# 📊 일일 요약\n\n")
	fmt.Fprintf(&b, "**수집 날짜:** %s  \n", models.DateKey(batch.Date))
	fmt.Fprintf(&b, "**분석 시각:** %s  \n", opts.GeneratedAt.Format(timestampLayout))
	if opts.FileName != "" {
		fmt.Fprintf(&b, "**데이터 파일:** `%s`  \n", opts.FileName)
	}
	fmt.Fprintf(&b, "**발견된 %s 상품:** %d개\n\n---\n\n", brand, len(batch.Records))

	if len(batch.Records) == 0 {
		fmt.Fprintf(&b, "**%s 상품이 발견되지 않았습니다.**\n", brand)
		return b.String()
	}

	entries := topEntries(batch.Records, opts.TopN)

	fmt.Fprintf(&b, "## 📋 상위 %d개 상품\n\n", len(entries))
	top := newMarkdownTable(table.Row{"순위", "카테고리", "상품명", "가격"}, 4)
	for _, e := range entries {
		top.AppendRow(dailyRow(e.Record, 50))
	}
	writeTable(&b, top)

	fmt.Fprintf(&b, "---\n\n## 📦 전체 %s 상품 목록\n\n<details>\n<summary>펼쳐서 보기 (전체 %d개)</summary>\n\n", brand, len(batch.Records))
	all := newMarkdownTable(table.Row{"순위", "카테고리", "상품명", "가격"}, 4)
	for _, rec := range batch.Records {
		all.AppendRow(dailyRow(rec, 60))
	}
	writeTable(&b, all)
	b.WriteString("</details>\n")
	return b.String()
}

func dailyRow(rec models.ProductRecord, maxRunes int) table.Row {
	return table.Row{
		strconv.Itoa(rec.Rank),
		rec.Category().Label(),
		productLink(rec, maxRunes),
		won(rec.SalePrice),
	}
}
