package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-best-rank/models"
)

// ValidateRecord ensures the collector produced a usable record.
func ValidateRecord(r *models.ProductRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if r.Depth1Code == "" || r.Depth2Code == "" {
		return fmt.Errorf("record missing category codes")
	}
	if r.Rank < 1 {
		return fmt.Errorf("record rank %d out of range for %s", r.Rank, r.ProductURL)
	}
	if strings.TrimSpace(r.ProductName) == "" {
		return fmt.Errorf("record missing product name for %s", r.ProductURL)
	}
	if strings.TrimSpace(r.ProductURL) == "" {
		return fmt.Errorf("record missing product url for %s", r.ProductName)
	}
	if r.SalePrice < 0 {
		return fmt.Errorf("record price %d negative for %s", r.SalePrice, r.ProductURL)
	}
	if r.DiscountRate < 0 || r.DiscountRate > 100 {
		return fmt.Errorf("record discount %d out of range for %s", r.DiscountRate, r.ProductURL)
	}
	return nil
}

// NormalizeText collapses runs of whitespace and trims the ends.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ClampDiscount bounds a discount rate to [0, 100].
func ClampDiscount(rate int) int {
	switch {
	case rate < 0:
		return 0
	case rate > 100:
		return 100
	default:
		return rate
	}
}

// BrandSet is a case-insensitive allow-list of brand identifiers.
type BrandSet map[string]struct{}

// NewBrandSet builds a set from the configured brand names.
func NewBrandSet(brands []string) BrandSet {
	set := make(BrandSet, len(brands))
	for _, b := range brands {
		b = strings.ToLower(NormalizeText(b))
		if b != "" {
			set[b] = struct{}{}
		}
	}
	return set
}

// Contains reports whether brand exactly matches an allowed brand, ignoring case.
func (s BrandSet) Contains(brand string) bool {
	_, ok := s[strings.ToLower(NormalizeText(brand))]
	return ok
}
