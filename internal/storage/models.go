package storage

import (
	"time"

	"lifelog/internal/schema"
)

const (
	RoleUser   = "user"
	RoleModel  = "model"
	RoleSystem = "system"
)

// Entry is one structured record on the dashboard. Date is an ISO
// calendar date (YYYY-MM-DD); Image holds optional base64-encoded
// binary attached at capture time.
type Entry struct {
	ID        string         `json:"id"`
	Date      string         `json:"date"`
	Category  string         `json:"category"`
	Event     string         `json:"event"`
	Details   schema.Details `json:"details"`
	Image     string         `json:"image,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Message is one transcript line. RelatedEntryIDs links a system
// notification to the entries it created, which undo depends on.
type Message struct {
	ID              int64    `json:"id"`
	Role            string   `json:"role"`
	Text            string   `json:"text"`
	Timestamp       int64    `json:"timestamp"`
	RelatedEntryIDs []string `json:"relatedEntryIds,omitempty"`
}

// RawLog captures every submitted user message verbatim, independent
// of the transcript.
type RawLog struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}
