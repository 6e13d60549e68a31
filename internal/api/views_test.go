package api

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

func TestClosingSoon(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC)
	testCases := []struct {
		closing string
		want    bool
	}{
		{"2024-01-10", true},
		{"01/17/2024", true},
		{"2024-01-18", false},
		{"2024-01-09", false},
		{"", false},
		{"TBD", false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, ClosingSoon(tender.Listing{ClosingDate: tc.closing}, now), tc.closing)
	}
}

func TestSummarizeLimits(t *testing.T) {
	t.Parallel()

	var in []tender.Listing
	for i := range 12 {
		for range i + 1 {
			in = append(in, tender.Listing{
				Title:        "t",
				Organization: fmt.Sprintf("org-%02d", i),
				ClosingDate:  fmt.Sprintf("2024-02-%02d", i+1),
				Page:         1,
			})
		}
	}
	in = append(in, tender.Listing{Title: "classified", PredictedCategory: "IT Services", Page: 2})

	a := Summarize(in)
	require.Len(t, a.TopOrganizations, topOrganizations)
	assert.Equal(t, Count{Key: "org-11", Count: 12}, a.TopOrganizations[0])
	assert.Equal(t, 12, a.Totals.Organizations, "listings without an organization are not counted")
	assert.Len(t, a.ClosingDates, 12)
	assert.Equal(t, []Count{{Key: "IT Services", Count: 1}}, a.ByCategory)
	assert.Nil(t, a.Totals.LastUpdated)
}

func TestTopCountsTieBreak(t *testing.T) {
	t.Parallel()

	got := topCounts(map[string]int{"b": 2, "a": 2, "c": 5}, 0)
	assert.Equal(t, []Count{{"c", 5}, {"a", 2}, {"b", 2}}, got)
}

func TestFilterZeroValueKeepsAll(t *testing.T) {
	t.Parallel()

	in := []tender.Listing{{Title: "a"}, {Title: "b", ClosingDate: "garbage"}}
	assert.Equal(t, in, Filter{}.Apply(in))
}
