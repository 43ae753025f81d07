// Package source discovers and tracks the node feeding caption text.
//
// The engine never touches platform DOM selectors directly; it observes an
// abstract Page of Nodes supplied by an external observer process. Discovery
// runs three independent strategies over that surface and arbitrates to a
// single attached source.
package source

import "caption-ingress-engine/internal/models"

// DefaultDescriptors is the ranked probe list for the declarative discovery
// strategy, most specific first. Observer processes tag caption surfaces with
// the first descriptor that applies to their platform.
var DefaultDescriptors = []string{
	"live-caption-region",
	"caption-region",
	"captions-container",
	"captions",
	"subtitles",
}

// Rect is a node bounding box in viewport coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node is one element of the observed surface. Node values must be stable
// across ticks: the same on-page element is represented by the same Node so
// discovery can key tracking maps by it.
type Node interface {
	// Text returns the visible text of the node's subtree.
	Text() string
	// Children returns the node's direct children in document order.
	Children() []Node
	// Parent returns the parent node, or nil at the root.
	Parent() Node
	// Bounds returns the node's bounding box.
	Bounds() Rect
	// Attached reports whether the node is still present on the surface.
	Attached() bool
}

// EntryLister is an optional Node upgrade for sources that expose discrete
// caption entries. When present and non-empty it short-circuits the
// extraction fallback chain.
type EntryLister interface {
	CaptionEntries() []models.CaptionObservation
}

// Mutation records a content change observed on a node.
type Mutation struct {
	Node Node
}

// Page is the read-only observation surface. Implementations may be absent,
// partial, or full of UI noise; everything read from a Page is untrusted.
type Page interface {
	// Query returns the first node matching a platform descriptor, or nil.
	Query(descriptor string) Node
	// Regions returns the currently visible text-bearing regions.
	Regions() []Node
	// Viewport returns the visible page bounds.
	Viewport() Rect
	// Mutations drains the content mutations observed since the last call.
	Mutations() []Mutation
}

// PendingCandidate tracks a probed node awaiting promotion. It is promoted
// once its text changes in a caption-shaped way and discarded after the
// candidate timeout.
type PendingCandidate struct {
	Node         Node
	ObservedText string
	DiscoveredAt int64 // UnixNano; monotonic enough at scan cadence
}
