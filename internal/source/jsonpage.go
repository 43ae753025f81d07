package source

import (
	"strings"
	"sync"

	"caption-ingress-engine/internal/models"
)

// NodeSnapshot is one node of a serialized surface snapshot pushed by the
// external observer process. IDs must be stable across pushes for the same
// on-page element; everything else may change freely.
type NodeSnapshot struct {
	ID          string                      `json:"id"`
	Text        string                      `json:"text,omitempty"`
	Bounds      Rect                        `json:"bounds"`
	Descriptors []string                    `json:"descriptors,omitempty"`
	Region      bool                        `json:"region,omitempty"`
	Entries     []models.CaptionObservation `json:"entries,omitempty"`
	Children    []NodeSnapshot              `json:"children,omitempty"`
}

// PageSnapshot is a full serialized surface at one observation instant.
type PageSnapshot struct {
	Viewport Rect         `json:"viewport"`
	Root     NodeSnapshot `json:"root"`
}

// JSONPage is a Page fed by serialized snapshots. It keeps one persistent
// node per snapshot ID so discovery's tracking maps stay keyed to the same
// Node across pushes, and synthesizes mutation events by diffing consecutive
// snapshots.
type JSONPage struct {
	mu        sync.Mutex
	viewport  Rect
	nodes     map[string]*jsonNode
	probes    map[string]*jsonNode
	regions   []*jsonNode
	root      *jsonNode
	mutations []Mutation
}

// NewJSONPage returns an empty page; everything is absent until the first
// Apply.
func NewJSONPage() *JSONPage {
	return &JSONPage{nodes: make(map[string]*jsonNode)}
}

// detachedPruneApplies is how many consecutive snapshots a node may be
// absent before its identity is forgotten. Within the grace period a node
// that flickers out and back keeps the same Node value, so discovery's
// tracking maps survive brief dropouts; beyond it the entry is removed so
// the map stays bounded across long sessions with churning IDs.
const detachedPruneApplies = 5

// Apply ingests a snapshot, updating node state in place and recording a
// mutation for every node whose text changed. Nodes absent from the snapshot
// become detached and are pruned after detachedPruneApplies absences.
func (p *JSONPage) Apply(snap PageSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.viewport = snap.Viewport
	p.probes = make(map[string]*jsonNode)
	p.regions = p.regions[:0]

	seen := make(map[string]struct{})
	p.root = p.applyNode(snap.Root, nil, seen)

	for id, node := range p.nodes {
		if _, ok := seen[id]; !ok {
			node.attached = false
			node.misses++
			if node.misses >= detachedPruneApplies {
				delete(p.nodes, id)
			}
		}
	}
}

func (p *JSONPage) applyNode(snap NodeSnapshot, parent *jsonNode, seen map[string]struct{}) *jsonNode {
	node, ok := p.nodes[snap.ID]
	if !ok {
		node = &jsonNode{page: p, id: snap.ID}
		p.nodes[snap.ID] = node
	}
	seen[snap.ID] = struct{}{}

	wasAttached := node.attached
	prevText := node.renderText()

	node.parent = parent
	node.ownText = snap.Text
	node.bounds = snap.Bounds
	node.entries = snap.Entries
	node.region = snap.Region
	node.attached = true
	node.misses = 0

	children := make([]*jsonNode, 0, len(snap.Children))
	for _, childSnap := range snap.Children {
		children = append(children, p.applyNode(childSnap, node, seen))
	}
	node.children = children

	if wasAttached && node.renderText() != prevText {
		p.mutations = append(p.mutations, Mutation{Node: node})
	}

	for _, descriptor := range snap.Descriptors {
		if _, taken := p.probes[descriptor]; !taken {
			p.probes[descriptor] = node
		}
	}
	if snap.Region || (len(children) == 0 && strings.TrimSpace(snap.Text) != "") {
		p.regions = append(p.regions, node)
	}
	return node
}

// Query returns the first node matching descriptor in the latest snapshot.
func (p *JSONPage) Query(descriptor string) Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	node, ok := p.probes[descriptor]
	if !ok {
		return nil
	}
	return node
}

// Regions returns the visible text-bearing regions of the latest snapshot.
func (p *JSONPage) Regions() []Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Node, len(p.regions))
	for i, node := range p.regions {
		out[i] = node
	}
	return out
}

// Viewport returns the latest snapshot's viewport.
func (p *JSONPage) Viewport() Rect {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport
}

// Mutations drains the mutations recorded since the last call.
func (p *JSONPage) Mutations() []Mutation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.mutations
	p.mutations = nil
	return out
}

type jsonNode struct {
	page     *JSONPage
	id       string
	ownText  string
	bounds   Rect
	entries  []models.CaptionObservation
	region   bool
	attached bool
	misses   int
	parent   *jsonNode
	children []*jsonNode
}

// renderText joins the node's own text with its subtree, one line per
// text-bearing node, matching how a flattened caption container reads.
func (n *jsonNode) renderText() string {
	var parts []string
	if strings.TrimSpace(n.ownText) != "" {
		parts = append(parts, n.ownText)
	}
	for _, child := range n.children {
		if sub := child.renderText(); sub != "" {
			parts = append(parts, sub)
		}
	}
	return strings.Join(parts, "\n")
}

func (n *jsonNode) Text() string {
	n.page.mu.Lock()
	defer n.page.mu.Unlock()
	return n.renderText()
}

func (n *jsonNode) Children() []Node {
	n.page.mu.Lock()
	defer n.page.mu.Unlock()
	out := make([]Node, len(n.children))
	for i, child := range n.children {
		out[i] = child
	}
	return out
}

func (n *jsonNode) Parent() Node {
	n.page.mu.Lock()
	defer n.page.mu.Unlock()
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *jsonNode) Bounds() Rect {
	n.page.mu.Lock()
	defer n.page.mu.Unlock()
	return n.bounds
}

func (n *jsonNode) Attached() bool {
	n.page.mu.Lock()
	defer n.page.mu.Unlock()
	return n.attached
}

// CaptionEntries implements the EntryLister upgrade for snapshots that carry
// structured caption entries.
func (n *jsonNode) CaptionEntries() []models.CaptionObservation {
	n.page.mu.Lock()
	defer n.page.mu.Unlock()
	return n.entries
}
