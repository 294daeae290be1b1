package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aluiziolira/go-best-rank/models"
)

var csvHeader = []string{
	"date", "collected_at",
	"depth1_code", "depth1_name", "depth2_code", "depth2_name",
	"rank", "brand_name", "product_name", "sale_price", "discount_rate", "product_url",
}

// WriteRecordsCSV writes a header row followed by one row per record.
func WriteRecordsCSV(w io.Writer, records []models.ProductRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Date.Format(models.DateLayout),
			r.CollectedAt.Format(time.RFC3339),
			r.Depth1Code,
			r.Depth1Name,
			r.Depth2Code,
			r.Depth2Name,
			strconv.Itoa(r.Rank),
			r.BrandName,
			r.ProductName,
			strconv.Itoa(r.SalePrice),
			strconv.Itoa(r.DiscountRate),
			r.ProductURL,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// ReadRecordsCSV decodes rows written by WriteRecordsCSV. Dates are
// interpreted in loc.
func ReadRecordsCSV(r io.Reader, loc *time.Location) ([]models.ProductRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected csv column %d: %q, want %q", i, header[i], name)
		}
	}

	records := []models.ProductRecord{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		rec, err := decodeRow(row, loc)
		if err != nil {
			return nil, fmt.Errorf("decode csv line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRow(row []string, loc *time.Location) (models.ProductRecord, error) {
	date, err := time.ParseInLocation(models.DateLayout, row[0], loc)
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("date: %w", err)
	}
	collected, err := time.Parse(time.RFC3339, row[1])
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("collected_at: %w", err)
	}
	rank, err := strconv.Atoi(row[6])
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("rank: %w", err)
	}
	price, err := strconv.Atoi(row[9])
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("sale_price: %w", err)
	}
	discount, err := strconv.Atoi(row[10])
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("discount_rate: %w", err)
	}
	return models.ProductRecord{
		Date:         date,
		CollectedAt:  collected.In(loc),
		Depth1Code:   row[2],
		Depth1Name:   row[3],
		Depth2Code:   row[4],
		Depth2Name:   row[5],
		Rank:         rank,
		BrandName:    row[7],
		ProductName:  row[8],
		SalePrice:    price,
		DiscountRate: discount,
		ProductURL:   row[11],
	}, nil
}
