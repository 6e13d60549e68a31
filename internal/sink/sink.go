// Package sink writes and reads listing artifacts as a JSON array, CSV or
// XLSX workbook.
package sink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

// Format names an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat is returned for an unsupported format or file extension.
var ErrUnknownFormat = errors.New("unknown artifact format")

// Columns is the tabular column order.
var Columns = []string{
	"title",
	"organization",
	"published_date",
	"closing_date",
	"link",
	"description",
	"page",
	"scraped_at",
	"predicted_category",
	"confidence",
}

// ParseFormat accepts "json", "csv" or "xlsx" in any case.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// FormatFromPath infers the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// Resolve picks explicit when set, else the path extension.
func Resolve(explicit, path string) (Format, error) {
	if strings.TrimSpace(explicit) != "" {
		return ParseFormat(explicit)
	}
	return FormatFromPath(path)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// Encode writes listings to w in format f.
func Encode(w io.Writer, f Format, listings []tender.Listing) error {
	switch f {
	case FormatJSON:
		return encodeJSON(w, listings)
	case FormatCSV:
		return encodeCSV(w, listings)
	case FormatXLSX:
		return encodeXLSX(w, listings)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// Decode reads listings from r in format f.
func Decode(r io.Reader, f Format) ([]tender.Listing, error) {
	switch f {
	case FormatJSON:
		return decodeJSON(r)
	case FormatCSV:
		return decodeCSV(r)
	case FormatXLSX:
		return decodeXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// WriteFile replaces the artifact at path. The file is written to a temporary
// sibling first so readers never see a partial artifact.
func WriteFile(path string, f Format, listings []tender.Listing) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, f, listings); err != nil {
		return nil, fmt.Errorf("encode %s artifact: %w", f, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return nil, fmt.Errorf("replace artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadFile reads the artifact at path, inferring the format from its
// extension.
func LoadFile(path string) ([]tender.Listing, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()
	listings, err := Decode(file, f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return listings, nil
}

// Filename builds the export download name, e.g. merx_opportunities_20240131.csv.
func Filename(prefix string, f Format, day string) string {
	return fmt.Sprintf("%s_%s.%s", prefix, day, f)
}
