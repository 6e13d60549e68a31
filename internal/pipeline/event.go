package pipeline

import "time"

// RunEvent is published when a run completes.
type RunEvent struct {
	RunID       string    `json:"run_id"`
	SearchTerm  string    `json:"search_term"`
	Pages       int       `json:"pages"`
	Retained    int       `json:"retained"`
	ArtifactURI string    `json:"artifact_uri,omitempty"`
	Digest      string    `json:"digest,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Attributes exposes routing attributes for Pub/Sub subscribers.
func (e RunEvent) Attributes() map[string]string {
	return map[string]string{
		"run_id":      e.RunID,
		"search_term": e.SearchTerm,
	}
}
