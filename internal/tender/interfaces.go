package tender

import (
	"context"
	"io"
	"time"
)

// Browser is the slice of browser control the navigator and walker need.
// Lookups that find nothing report found=false rather than an error; errors
// are reserved for a broken session.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	State(ctx context.Context) (PageState, error)
	// WaitForAny polls until one of the selectors matches or timeout elapses.
	WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (string, bool, error)
	Rows(ctx context.Context, selector string) ([]Row, error)
	// ClickFirst clicks the first selector that resolves to a displayed,
	// enabled element.
	ClickFirst(ctx context.Context, selectors []string) (string, bool, error)
	// WaitForChange polls until the first match of selector no longer has the
	// given outer HTML.
	WaitForChange(ctx context.Context, selector, previous string, timeout time.Duration) (bool, error)
	FindSearchBox(ctx context.Context, selectors []string) (string, bool, error)
	Submit(ctx context.Context, selector, text string) error
	SelectOption(ctx context.Context, selectors []string, label string) (bool, error)
}

// Snapshotter is implemented by browsers that can capture the current page
// for debugging.
type Snapshotter interface {
	Snapshot(ctx context.Context) (html string, png []byte, err error)
}

// Session is a Browser that owns an underlying browser process.
type Session interface {
	Browser
	Close() error
}

// SessionFactory starts a browser session for one run.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// Classifier assigns a label and confidence to listing text.
type Classifier interface {
	Classify(ctx context.Context, listing Listing) (Prediction, error)
}

// DetailFetcher loads the description text from a listing's detail page.
type DetailFetcher interface {
	FetchDescription(ctx context.Context, link string) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// HistoryStore keeps retained listings per run.
type HistoryStore interface {
	StoreRun(ctx context.Context, runID string, listings []Listing) error
}

// Hasher computes digests for artifact naming and integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
