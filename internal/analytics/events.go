package analytics

import "time"

type EventType string

const (
	EventSearch EventType = "search"
	EventBuild  EventType = "index_build"
)

// SearchEvent is published by the query server for every answered query.
type SearchEvent struct {
	Type         EventType `json:"type"`
	Mode         string    `json:"mode"`
	Query        string    `json:"query"`
	Terms        []string  `json:"terms"`
	Unrecognized []string  `json:"unrecognized,omitempty"`
	TotalHits    int       `json:"total_hits"`
	Returned     int       `json:"returned"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Status       int       `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
}

// BuildEvent is published after an index build completes.
type BuildEvent struct {
	Type       EventType `json:"type"`
	BuildID    string    `json:"build_id"`
	Folder     string    `json:"folder"`
	Documents  int       `json:"documents"`
	Terms      int       `json:"terms"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// envelope is decoded first to pick the concrete event type.
type envelope struct {
	Type EventType `json:"type"`
}
