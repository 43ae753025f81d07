// Package models defines the data structures shared across the caption engine.
package models

import "time"

// CaptionObservation is a single visible caption line as read from the
// observation source. Observations are ephemeral: the extractor rebuilds the
// full list on every scan tick and nothing holds one across ticks.
type CaptionObservation struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// CommittedBlock is one permanent transcript entry. A block is immutable
// after append except for the same-speaker tail revision immediately after
// commit and a single corrective text replacement gated by the generation
// counter. The speaker never changes after creation.
type CommittedBlock struct {
	Speaker     string    `json:"speaker"`
	Text        string    `json:"text"`
	CommittedAt time.Time `json:"committedAt"`
}

// ReferenceDocument is read-only context material for assist queries.
type ReferenceDocument struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// SessionMeta describes a capture session for persistence. The session is
// revalidated on load; a stale session clears its source hint.
type SessionMeta struct {
	ID          string    `json:"id"`
	ActivatedAt time.Time `json:"activatedAt"`
	SourceHint  string    `json:"sourceHint"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
