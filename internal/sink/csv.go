package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

func encodeCSV(w io.Writer, listings []tender.Listing) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, l := range listings {
		if err := cw.Write(record(l)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func decodeCSV(r io.Reader) ([]tender.Listing, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []tender.Listing{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := columnIndex(header)
	listings := []tender.Listing{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return listings, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		l, err := fromRecord(row, index)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		listings = append(listings, l)
	}
}

// record renders l in Columns order. Absent classification is empty.
func record(l tender.Listing) []string {
	confidence := ""
	if l.Confidence != nil {
		confidence = strconv.FormatFloat(*l.Confidence, 'f', -1, 64)
	}
	scraped := ""
	if !l.ScrapedAt.IsZero() {
		scraped = l.ScrapedAt.Format(time.RFC3339Nano)
	}
	return []string{
		l.Title,
		l.Organization,
		l.PublishedDate,
		l.ClosingDate,
		l.Link,
		l.Description,
		strconv.Itoa(l.Page),
		scraped,
		l.PredictedCategory,
		confidence,
	}
}

func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	return index
}

func fromRecord(row []string, index map[string]int) (tender.Listing, error) {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	l := tender.Listing{
		Title:             get("title"),
		Organization:      get("organization"),
		PublishedDate:     get("published_date"),
		ClosingDate:       get("closing_date"),
		Link:              get("link"),
		Description:       get("description"),
		PredictedCategory: get("predicted_category"),
	}
	if raw := strings.TrimSpace(get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return tender.Listing{}, fmt.Errorf("parse page %q: %w", raw, err)
		}
		l.Page = page
	}
	if raw := strings.TrimSpace(get("scraped_at")); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return tender.Listing{}, fmt.Errorf("parse scraped_at %q: %w", raw, err)
		}
		l.ScrapedAt = ts
	}
	if raw := strings.TrimSpace(get("confidence")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return tender.Listing{}, fmt.Errorf("parse confidence %q: %w", raw, err)
		}
		l.Confidence = &v
	}
	return l, nil
}
