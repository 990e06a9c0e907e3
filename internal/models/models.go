package models

import "time"

// ClickEventSchemaVersion is bumped whenever the ClickEvent wire format
// changes in a way consumers must distinguish.
const ClickEventSchemaVersion = 1

type Workspace struct {
	ID      int64
	Name    string
	Deleted bool
}

// ShortLink is unique per (workspace_id, code) and per
// (workspace_id, normalized_url) among non-deleted rows.
type ShortLink struct {
	ID            int64
	WorkspaceID   int64
	Code          string
	OriginalURL   string
	NormalizedURL string
	CreatedBy     string
	ExpiresAt     *time.Time
	MaxClicks     *int64
	Tags          []string
	ClickCount    int64
	Deleted       bool
	CreatedAt     time.Time
}

// ClickEvent is append-only; it is never updated after the consumer
// persists it.
type ClickEvent struct {
	EventID       string    `json:"event_id"`
	LinkID        int64     `json:"link_id"`
	WorkspaceID   int64     `json:"workspace_id"`
	Timestamp     time.Time `json:"timestamp"`
	IP            string    `json:"ip"`
	UserAgent     string    `json:"user_agent"`
	Referer       string    `json:"referer"`
	Country       string    `json:"country"`
	City          string    `json:"city"`
	Device        string    `json:"device"`
	Browser       string    `json:"browser"`
	OS            string    `json:"os"`
	SchemaVersion int       `json:"schema_version"`
}
