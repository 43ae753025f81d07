package source

import (
	"time"

	"github.com/rs/zerolog"

	"caption-ingress-engine/internal/config"
	"caption-ingress-engine/internal/observability/logging"
	"caption-ingress-engine/internal/observability/metrics"
)

// Strategy names used for logging and metrics labels.
const (
	strategyProbe    = "probe"
	strategyMutation = "mutation"
	strategyPoll     = "poll"
)

// lowerViewportFraction: polling only considers regions whose top edge sits
// in the lower portion of the viewport, where caption overlays live.
const lowerViewportFraction = 0.5

// maxRegionTextRunes bounds the size of a pollable region; anything larger
// is page body text, not a caption overlay.
const maxRegionTextRunes = 1500

type pollState struct {
	lastText string
	changes  int
}

// Discoverer finds and validates the node supplying caption text. Three
// strategies run on every tick and race to propose a candidate; promotion to
// attached is a single serialized decision made inside Tick, so no proposal
// can observe a half-attached state.
type Discoverer struct {
	cfg         config.CaptureConfig
	page        Page
	descriptors []string
	log         zerolog.Logger
	metrics     *metrics.Metrics

	state    State
	attached Node

	pending      map[Node]*PendingCandidate
	mutationHits map[Node]int
	windowStart  time.Time
	pollStates   map[Node]*pollState
	lastPoll     time.Time
}

// NewDiscoverer creates a discoverer over the given page. Descriptors are a
// ranked list of platform-specific probes, most specific first.
func NewDiscoverer(cfg config.CaptureConfig, page Page, descriptors []string) *Discoverer {
	return &Discoverer{
		cfg:          cfg,
		page:         page,
		descriptors:  descriptors,
		log:          logging.WithComponent("discovery"),
		metrics:      metrics.DefaultMetrics,
		state:        StateSearching,
		pending:      make(map[Node]*PendingCandidate),
		mutationHits: make(map[Node]int),
		pollStates:   make(map[Node]*pollState),
	}
}

// State returns the current discovery state.
func (d *Discoverer) State() State {
	return d.state
}

// Attached returns the attached node, or nil while searching.
func (d *Discoverer) Attached() Node {
	if d.state != StateAttached {
		return nil
	}
	return d.attached
}

// Tick advances discovery by one scan. While attached it revalidates the
// node; otherwise it runs the three strategies in rank order and attaches
// the first proposal. Returns the attached node or nil.
func (d *Discoverer) Tick(now time.Time) Node {
	if d.state == StateAttached {
		if d.attached != nil && d.attached.Attached() {
			return d.attached
		}
		d.log.Info().Msg("attached source lost, reverting to search")
		d.metrics.SourceDetachments.Inc()
		d.Reset()
	}

	d.scoreMutations(now)

	if node := d.probe(now); node != nil {
		return d.attach(node, strategyProbe)
	}
	if d.state == StateCandidatePending && len(d.pending) == 0 {
		d.state = StateSearching
	}
	if node := d.evaluateMutationWindow(now); node != nil {
		return d.attach(node, strategyMutation)
	}
	if node := d.poll(now); node != nil {
		return d.attach(node, strategyPoll)
	}

	d.metrics.RecordDiscoveryState(int(d.state))
	return nil
}

// Reset drops all tracking state and returns to searching. Called on detach
// and on session deactivation.
func (d *Discoverer) Reset() {
	d.state = StateSearching
	d.attached = nil
	d.pending = make(map[Node]*PendingCandidate)
	d.mutationHits = make(map[Node]int)
	d.pollStates = make(map[Node]*pollState)
	d.windowStart = time.Time{}
	d.metrics.RecordDiscoveryState(int(d.state))
}

func (d *Discoverer) attach(node Node, strategy string) Node {
	d.state = StateAttached
	d.attached = node
	d.pending = make(map[Node]*PendingCandidate)
	d.mutationHits = make(map[Node]int)
	d.pollStates = make(map[Node]*pollState)
	d.metrics.SourceAttachments.Inc()
	d.metrics.CandidatesProposed.WithLabelValues(strategy).Inc()
	d.metrics.RecordDiscoveryState(int(d.state))
	d.log.Info().
		Str("strategy", strategy).
		Str("text", truncate(node.Text(), 80)).
		Msg("caption source attached")
	return node
}

// probe tests the ranked descriptor list. A fresh match becomes a pending
// candidate; it is promoted only after its text is re-observed, classified
// caption-shaped, and changed from the first observation. Static UI chrome
// matches descriptors but never changes, so it is never promoted.
func (d *Discoverer) probe(now time.Time) Node {
	for _, descriptor := range d.descriptors {
		node := d.page.Query(descriptor)
		if node == nil || !node.Attached() {
			continue
		}
		cand, seen := d.pending[node]
		if !seen {
			d.pending[node] = &PendingCandidate{
				Node:         node,
				ObservedText: node.Text(),
				DiscoveredAt: now.UnixNano(),
			}
			if d.state == StateSearching {
				d.state = StateCandidatePending
			}
			continue
		}
		if now.Sub(time.Unix(0, cand.DiscoveredAt)) > d.cfg.CandidateTimeout {
			delete(d.pending, node)
			d.metrics.CandidatesExpired.Inc()
			d.log.Debug().Str("descriptor", descriptor).Msg("candidate expired without caption activity")
			continue
		}
		text := node.Text()
		if text != cand.ObservedText && IsCaptionShaped(text) {
			return node
		}
	}
	return nil
}

// scoreMutations drains mutation events and credits each event to the node
// and its ancestors, walking upward while the bounding box height stays
// under the ceiling. The caption container is usually a short strip near the
// bottom of the page; crediting unbounded ancestors would always elect the
// page root.
func (d *Discoverer) scoreMutations(now time.Time) {
	muts := d.page.Mutations()
	if len(muts) == 0 {
		return
	}
	if d.windowStart.IsZero() {
		d.windowStart = now
	}
	for _, mut := range muts {
		for cur := mut.Node; cur != nil; cur = cur.Parent() {
			if cur.Bounds().Height >= d.cfg.HeightCeiling {
				break
			}
			d.mutationHits[cur]++
		}
	}
}

// evaluateMutationWindow elects the highest-scoring node once the evaluation
// window has elapsed, provided it clears the minimum hit threshold and holds
// caption-shaped text.
func (d *Discoverer) evaluateMutationWindow(now time.Time) Node {
	if d.windowStart.IsZero() || now.Sub(d.windowStart) < d.cfg.MutationWindow {
		return nil
	}

	var best Node
	var bestHits int
	for node, hits := range d.mutationHits {
		if hits > bestHits {
			best, bestHits = node, hits
		}
	}
	d.mutationHits = make(map[Node]int)
	d.windowStart = time.Time{}

	if best == nil || bestHits < d.cfg.MutationMinHits {
		return nil
	}
	if !best.Attached() || !IsCaptionShaped(best.Text()) {
		return nil
	}
	return best
}

// poll snapshots visible small/medium text regions in the lower viewport. A
// region whose text changed at least MinPollChanges times and passes the
// validity filter is proposed after widening to the full multi-speaker
// container.
func (d *Discoverer) poll(now time.Time) Node {
	if !d.lastPoll.IsZero() && now.Sub(d.lastPoll) < d.cfg.PollInterval {
		return nil
	}
	d.lastPoll = now

	viewport := d.page.Viewport()
	for _, region := range d.page.Regions() {
		if !region.Attached() {
			continue
		}
		bounds := region.Bounds()
		if bounds.Y < viewport.Height*lowerViewportFraction {
			continue
		}
		text := region.Text()
		runes := len([]rune(text))
		if runes == 0 || runes > maxRegionTextRunes {
			continue
		}

		state, seen := d.pollStates[region]
		if !seen {
			d.pollStates[region] = &pollState{lastText: text}
			continue
		}
		if state.lastText != text {
			state.changes++
			state.lastText = text
		}
		if state.changes >= d.cfg.MinPollChanges && IsCaptionShaped(text) {
			return widenToCaptionBlock(region)
		}
	}
	return nil
}

// widenToCaptionBlock walks a changing region upward while the parent keeps
// at least two caption-shaped children, so the attached source covers every
// speaker's line rather than one participant's.
func widenToCaptionBlock(region Node) Node {
	cur := region
	for {
		parent := cur.Parent()
		if parent == nil {
			return cur
		}
		var captionChildren int
		for _, child := range parent.Children() {
			if IsCaptionShaped(child.Text()) {
				captionChildren++
			}
		}
		if captionChildren < 2 {
			return cur
		}
		cur = parent
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
