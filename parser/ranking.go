// Package parser turns raw ranking and taxonomy payloads into typed values.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformed marks a payload whose shape cannot be interpreted.
var ErrMalformed = errors.New("malformed response")

// DefaultProductURLPrefix builds product links when a listing only carries an id.
const DefaultProductURLPrefix = "https://www.wconcept.co.kr/Product/"

var (
	listingKeys  = []string{"products", "productList", "list", "items", "bestProducts"}
	brandKeys    = []string{"brandName", "brandNameEn", "brand", "brand_name", "brandNm"}
	nameKeys     = []string{"productName", "itemName", "name", "goodsName", "title"}
	priceKeys    = []string{"salePrice", "finalPrice", "price", "discountPrice", "sale_price"}
	discountKeys = []string{"discountRate", "discount_rate", "dcRate", "saleRate"}
	rankKeys     = []string{"rank", "ranking", "bestOrder", "exposeOrder", "order"}
	urlKeys      = []string{"productUrl", "productURL", "url", "linkUrl", "landingUrl"}
	idKeys       = []string{"itemCd", "productCode", "productNo", "itemCode", "goodsNo"}
)

// Listing is one raw entry of a ranking page.
type Listing struct {
	BrandName    string
	ProductName  string
	SalePrice    int
	DiscountRate int
	Rank         int
	ProductURL   string
}

// Page is a parsed ranking page.
type Page struct {
	Listings []Listing
	HasNext  bool
}

// PageOptions describes the request a page answers.
type PageOptions struct {
	PageNo           int
	PageSize         int
	ProductURLPrefix string
}

// ParseRankingPage extracts listings and pagination hints from a ranking response.
func ParseRankingPage(body []byte, opts PageOptions) (*Page, error) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrMalformed, err)
	}
	if _, ok := root.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: top-level value is %T, want object", ErrMalformed, root)
	}

	raw, ok := findListingArray(root)
	if !ok {
		return nil, fmt.Errorf("%w: no listing array found", ErrMalformed)
	}

	if opts.PageNo < 1 {
		opts.PageNo = 1
	}
	prefix := opts.ProductURLPrefix
	if prefix == "" {
		prefix = DefaultProductURLPrefix
	}

	page := &Page{Listings: make([]Listing, 0, len(raw))}
	for idx, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: listing %d is %T, want object", ErrMalformed, idx, item)
		}
		listing := Listing{
			BrandName:    NormalizeText(pickString(obj, brandKeys)),
			ProductName:  NormalizeText(pickString(obj, nameKeys)),
			SalePrice:    max(pickInt(obj, priceKeys), 0),
			DiscountRate: ClampDiscount(pickInt(obj, discountKeys)),
			Rank:         pickInt(obj, rankKeys),
			ProductURL:   strings.TrimSpace(pickString(obj, urlKeys)),
		}
		if listing.Rank < 1 {
			listing.Rank = (opts.PageNo-1)*opts.PageSize + idx + 1
		}
		if listing.ProductURL == "" {
			if id := pickString(obj, idKeys); id != "" {
				listing.ProductURL = prefix + id
			}
		}
		page.Listings = append(page.Listings, listing)
	}

	page.HasNext = inferHasNext(root, opts.PageNo, opts.PageSize, len(raw))
	return page, nil
}

func findListingArray(root any) ([]any, bool) {
	for _, key := range listingKeys {
		for _, v := range findKey(root, key) {
			if arr, ok := v.([]any); ok && isObjectList(arr) {
				return arr, true
			}
		}
	}
	if obj, ok := root.(map[string]any); ok {
		if data, ok := obj["data"].(map[string]any); ok {
			if content, ok := data["content"].([]any); ok && isObjectList(content) {
				return content, true
			}
		}
	}
	return nil, false
}

func isObjectList(arr []any) bool {
	if len(arr) == 0 {
		return true
	}
	_, ok := arr[0].(map[string]any)
	return ok
}

// findKey collects values stored under key anywhere in obj, visiting map keys in sorted order.
func findKey(obj any, key string) []any {
	var out []any
	walk(obj, func(m map[string]any) bool {
		if v, ok := m[key]; ok {
			out = append(out, v)
		}
		return false
	})
	return out
}

// walk visits every object depth-first until visit returns true.
func walk(obj any, visit func(map[string]any) bool) bool {
	switch v := obj.(type) {
	case map[string]any:
		if visit(v) {
			return true
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if walk(v[k], visit) {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if walk(item, visit) {
				return true
			}
		}
	}
	return false
}

func inferHasNext(root any, pageNo, pageSize, got int) bool {
	var (
		decided bool
		hasNext bool
	)
	walk(root, func(m map[string]any) bool {
		for _, key := range []string{"hasNext", "hasNextPage", "hasMore"} {
			if b, ok := m[key].(bool); ok {
				decided, hasNext = true, b
				return true
			}
		}
		if b, ok := m["last"].(bool); ok {
			decided, hasNext = true, !b
			return true
		}
		for _, key := range []string{"totalPages", "lastPage"} {
			if n, ok := asInt(m[key]); ok && n > 0 {
				decided, hasNext = true, pageNo < n
				return true
			}
		}
		for _, key := range []string{"totalCount", "totalElements"} {
			if n, ok := asInt(m[key]); ok && n >= 0 {
				decided, hasNext = true, pageNo*pageSize < n
				return true
			}
		}
		return false
	})
	if decided {
		return hasNext
	}
	return pageSize > 0 && got >= pageSize
}

func pickString(obj map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func pickInt(obj map[string]any, keys []string) int {
	for _, key := range keys {
		if n, ok := asInt(obj[key]); ok {
			return n
		}
	}
	return 0
}

// asInt accepts JSON numbers and numeric strings such as "12,900" or "30%".
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimSuffix(s, "%")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return int(f), true
	}
	return 0, false
}
