package tender

import (
	"strings"
	"time"
)

// ExcludedCategory marks a listing as ineligible regardless of confidence.
const ExcludedCategory = "Excluded"

// Listing is one scraped procurement opportunity.
type Listing struct {
	Title             string    `json:"title"`
	Organization      string    `json:"organization"`
	PublishedDate     string    `json:"published_date"`
	ClosingDate       string    `json:"closing_date"`
	Link              string    `json:"link"`
	Description       string    `json:"description,omitempty"`
	Page              int       `json:"page"`
	ScrapedAt         time.Time `json:"scraped_at"`
	PredictedCategory string    `json:"predicted_category,omitempty"`
	Confidence        *float64  `json:"confidence,omitempty"`
}

// Classified reports whether the classification stage annotated the listing.
func (l Listing) Classified() bool {
	return l.PredictedCategory != "" || l.Confidence != nil
}

// WithPrediction returns a copy of l carrying the derived classification fields.
func (l Listing) WithPrediction(p Prediction) Listing {
	score := p.Score
	l.PredictedCategory = p.Label
	l.Confidence = &score
	return l
}

// ClassifierInput concatenates title and description for the text classifier.
func (l Listing) ClassifierInput() string {
	title := strings.TrimSpace(l.Title)
	desc := strings.TrimSpace(l.Description)
	if desc == "" {
		return title
	}
	return title + "\n" + desc
}

// Fields are the raw values pulled out of one listing row.
type Fields struct {
	Title         string
	Organization  string
	PublishedDate string
	ClosingDate   string
	Link          string
	// Strategy names the extraction strategy that produced the fields.
	Strategy string
}

// ToListing stamps provenance onto extracted fields.
func (f Fields) ToListing(page int, scrapedAt time.Time) Listing {
	return Listing{
		Title:         f.Title,
		Organization:  f.Organization,
		PublishedDate: f.PublishedDate,
		ClosingDate:   f.ClosingDate,
		Link:          f.Link,
		Page:          page,
		ScrapedAt:     scrapedAt,
	}
}

// Row is a single listing row/card as captured from the rendered page.
type Row struct {
	// HTML is the row element's outer HTML.
	HTML string
	// Text is the rendered inner text; block boundaries appear as newlines.
	Text string
}

// SkipReason explains why a row did not become a retained listing.
type SkipReason string

// Skip reasons counted by the page walker.
const (
	SkipNone         SkipReason = ""
	SkipEmptyRow     SkipReason = "empty_row"
	SkipNoTitle      SkipReason = "no_title"
	SkipParseError   SkipReason = "parse_error"
	SkipBeforeCutoff SkipReason = "before_cutoff"
)

// Prediction is the top label returned by the zero-shot classifier.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// PageState describes the document currently loaded in the browser.
type PageState struct {
	URL    string
	Title  string
	Status int
}
