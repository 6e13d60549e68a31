package sink

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

func encodeJSON(w io.Writer, listings []tender.Listing) error {
	if listings == nil {
		listings = []tender.Listing{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(listings); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func decodeJSON(r io.Reader) ([]tender.Listing, error) {
	var listings []tender.Listing
	if err := json.NewDecoder(r).Decode(&listings); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return listings, nil
}
