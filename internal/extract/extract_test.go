package extract

import (
	"reflect"
	"testing"

	"caption-ingress-engine/internal/models"
	"caption-ingress-engine/internal/source"
)

type stubNode struct {
	text     string
	children []*stubNode
	entries  []models.CaptionObservation
}

func (n *stubNode) Text() string {
	if len(n.children) == 0 {
		return n.text
	}
	var parts []string
	if n.text != "" {
		parts = append(parts, n.text)
	}
	for _, c := range n.children {
		parts = append(parts, c.Text())
	}
	// Parents join with spaces, the way a flattened container with inline
	// children reads.
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
func (n *stubNode) Children() []source.Node {
	out := make([]source.Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}
func (n *stubNode) Parent() source.Node { return nil }
func (n *stubNode) Bounds() source.Rect { return source.Rect{} }
func (n *stubNode) Attached() bool      { return true }

// entryNode additionally implements the EntryLister upgrade.
type entryNode struct {
	stubNode
}

func (n *entryNode) CaptionEntries() []models.CaptionObservation { return n.entries }

func TestSnapshot_StructuredEntriesWin(t *testing.T) {
	node := &entryNode{}
	node.entries = []models.CaptionObservation{
		{Speaker: "Ana", Text: "so, where were we?"},
		{Speaker: "Ben", Text: "  the budget  "},
		{Speaker: "Cyd", Text: ""},
	}
	node.text = "Ana\nthis text must be ignored"

	got := Snapshot(node)
	expected := []models.CaptionObservation{
		{Speaker: "Ana", Text: "so, where were we?"},
		{Speaker: "Ben", Text: "the budget"},
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %+v, got %+v", expected, got)
	}
}

func TestSnapshot_LineGrouping(t *testing.T) {
	node := &stubNode{text: "Ana Torres\nso, where were we?\nI lost the thread.\nBen\nthe budget, I think."}

	got := Snapshot(node)
	expected := []models.CaptionObservation{
		{Speaker: "Ana Torres", Text: "so, where were we?"},
		{Speaker: "Ana Torres", Text: "I lost the thread."},
		{Speaker: "Ben", Text: "the budget, I think."},
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %+v, got %+v", expected, got)
	}
}

func TestSnapshot_LineGroupingStripsLabelColon(t *testing.T) {
	node := &stubNode{text: "You:\nokay, sounds good."}

	got := Snapshot(node)
	if len(got) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(got))
	}
	if got[0].Speaker != "You" {
		t.Errorf("expected speaker 'You', got %q", got[0].Speaker)
	}
}

func TestSnapshot_LeafTraversal(t *testing.T) {
	node := &stubNode{
		children: []*stubNode{
			{children: []*stubNode{
				{text: "Ana"},
				{text: "we're set for tomorrow, then."},
			}},
			{children: []*stubNode{
				{text: "Ben"},
				{text: "yes, see you there."},
			}},
		},
	}

	got := Snapshot(node)
	expected := []models.CaptionObservation{
		{Speaker: "Ana", Text: "we're set for tomorrow, then."},
		{Speaker: "Ben", Text: "yes, see you there."},
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %+v, got %+v", expected, got)
	}
}

func TestSnapshot_RawFallback(t *testing.T) {
	node := &stubNode{text: "this line has no label structure, just speech."}

	got := Snapshot(node)
	if len(got) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(got))
	}
	if got[0].Speaker != "" {
		t.Errorf("expected unattributed observation, got speaker %q", got[0].Speaker)
	}
	if got[0].Text != "this line has no label structure, just speech." {
		t.Errorf("unexpected text %q", got[0].Text)
	}
}

func TestSnapshot_EmptySource(t *testing.T) {
	if got := Snapshot(&stubNode{}); len(got) != 0 {
		t.Errorf("expected no observations from empty source, got %+v", got)
	}
	if got := Snapshot(nil); got != nil {
		t.Errorf("expected nil for nil node, got %+v", got)
	}
}

func TestIsSpeakerLabel(t *testing.T) {
	tests := []struct {
		line     string
		expected bool
	}{
		{"Ana", true},
		{"Ana Torres", true},
		{"You:", true},
		{"Maria del Carmen Ruiz", true},
		{"so, where were we?", false},
		{"this clause runs long enough that nobody would read it as a name", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isSpeakerLabel(tt.line); got != tt.expected {
			t.Errorf("isSpeakerLabel(%q) = %v, want %v", tt.line, got, tt.expected)
		}
	}
}
