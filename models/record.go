package models

import "time"

// DateLayout is the canonical day format used for keys and tabular output.
const DateLayout = "2006-01-02"

// ProductRecord is one brand match observed in a category ranking. The CSV
// column order is defined by the store package.
type ProductRecord struct {
	Date         time.Time `json:"date"`
	CollectedAt  time.Time `json:"collected_at"`
	Depth1Code   string    `json:"depth1_code"`
	Depth1Name   string    `json:"depth1_name"`
	Depth2Code   string    `json:"depth2_code"`
	Depth2Name   string    `json:"depth2_name"`
	Rank         int       `json:"rank"`
	BrandName    string    `json:"brand_name"`
	ProductName  string    `json:"product_name"`
	SalePrice    int       `json:"sale_price"`
	DiscountRate int       `json:"discount_rate"`
	ProductURL   string    `json:"product_url"`
}

// RecordKey is the deduplication identity of a ProductRecord.
type RecordKey struct {
	Date       string
	Depth1Code string
	Depth2Code string
	Rank       int
	ProductURL string
}

// Key returns the deduplication identity of the record.
func (r ProductRecord) Key() RecordKey {
	return RecordKey{
		Date:       r.Date.Format(DateLayout),
		Depth1Code: r.Depth1Code,
		Depth2Code: r.Depth2Code,
		Rank:       r.Rank,
		ProductURL: r.ProductURL,
	}
}

// Category returns the taxonomy node the record was collected under.
func (r ProductRecord) Category() CategoryNode {
	return CategoryNode{
		Depth1Code: r.Depth1Code,
		Depth1Name: r.Depth1Name,
		Depth2Code: r.Depth2Code,
		Depth2Name: r.Depth2Name,
	}
}

// DailyBatch holds every record collected for one calendar date.
type DailyBatch struct {
	Date    time.Time
	Records []ProductRecord
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateKey formats the calendar date of t.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}
