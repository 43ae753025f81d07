package source

import (
	"testing"

	"caption-ingress-engine/internal/models"
)

func snapshotWithText(text string) PageSnapshot {
	return PageSnapshot{
		Viewport: Rect{Width: 1280, Height: 800},
		Root: NodeSnapshot{
			ID:     "root",
			Bounds: Rect{Width: 1280, Height: 800},
			Children: []NodeSnapshot{
				{
					ID:          "captions",
					Text:        text,
					Bounds:      Rect{Y: 700, Width: 1280, Height: 60},
					Descriptors: []string{"captions"},
					Region:      true,
				},
			},
		},
	}
}

func TestJSONPage_NodeIdentityStableAcrossPushes(t *testing.T) {
	page := NewJSONPage()
	page.Apply(snapshotWithText("hello"))
	first := page.Query("captions")
	if first == nil {
		t.Fatal("expected captions node after first push")
	}

	page.Apply(snapshotWithText("hello world"))
	second := page.Query("captions")
	if first != second {
		t.Error("expected the same Node value across pushes for one ID")
	}
	if second.Text() != "hello world" {
		t.Errorf("expected updated text, got %q", second.Text())
	}
}

func TestJSONPage_MutationsFromTextChange(t *testing.T) {
	page := NewJSONPage()
	page.Apply(snapshotWithText("hello"))
	page.Mutations() // drain the initial state

	page.Apply(snapshotWithText("hello world"))
	muts := page.Mutations()
	if len(muts) == 0 {
		t.Fatal("expected a mutation after a text change")
	}

	// Drained: a second read is empty.
	if again := page.Mutations(); len(again) != 0 {
		t.Errorf("expected drained mutations, got %d", len(again))
	}

	// An identical push produces no mutation.
	page.Apply(snapshotWithText("hello world"))
	if muts := page.Mutations(); len(muts) != 0 {
		t.Errorf("expected no mutation for identical snapshot, got %d", len(muts))
	}
}

func TestJSONPage_MissingNodeDetaches(t *testing.T) {
	page := NewJSONPage()
	page.Apply(snapshotWithText("hello"))
	node := page.Query("captions")
	if node == nil || !node.Attached() {
		t.Fatal("expected attached captions node")
	}

	page.Apply(PageSnapshot{
		Viewport: Rect{Width: 1280, Height: 800},
		Root:     NodeSnapshot{ID: "root", Bounds: Rect{Width: 1280, Height: 800}},
	})
	if node.Attached() {
		t.Error("expected node absent from snapshot to report detached")
	}
	if page.Query("captions") != nil {
		t.Error("expected descriptor lookup to miss after removal")
	}
}

func TestJSONPage_PrunesLongDetachedNodes(t *testing.T) {
	page := NewJSONPage()
	empty := PageSnapshot{
		Viewport: Rect{Width: 1280, Height: 800},
		Root:     NodeSnapshot{ID: "root", Bounds: Rect{Width: 1280, Height: 800}},
	}

	page.Apply(snapshotWithText("hello"))
	first := page.Query("captions")
	if first == nil {
		t.Fatal("expected captions node")
	}

	// A brief dropout keeps the node's identity.
	page.Apply(empty)
	page.Apply(snapshotWithText("hello"))
	if page.Query("captions") != first {
		t.Error("expected identity retained across a brief absence")
	}

	// A long absence forgets it; the returning ID is a fresh node.
	for i := 0; i < detachedPruneApplies; i++ {
		page.Apply(empty)
	}
	page.Apply(snapshotWithText("hello again"))
	fresh := page.Query("captions")
	if fresh == nil {
		t.Fatal("expected captions node after reappearance")
	}
	if fresh == first {
		t.Error("expected a fresh node after the prune window elapsed")
	}
	if first.Attached() {
		t.Error("expected the pruned handle to stay detached")
	}
	if !fresh.Attached() {
		t.Error("expected the reappeared node to be attached")
	}
}

func TestJSONPage_StructuredEntriesUpgrade(t *testing.T) {
	page := NewJSONPage()
	page.Apply(PageSnapshot{
		Viewport: Rect{Width: 1280, Height: 800},
		Root: NodeSnapshot{
			ID: "root",
			Children: []NodeSnapshot{
				{
					ID:          "captions",
					Descriptors: []string{"captions"},
					Entries: []models.CaptionObservation{
						{Speaker: "Ana", Text: "hello"},
						{Speaker: "Ben", Text: "hi there"},
					},
				},
			},
		},
	})

	node := page.Query("captions")
	lister, ok := node.(EntryLister)
	if !ok {
		t.Fatal("expected node to implement EntryLister")
	}
	entries := lister.CaptionEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Speaker != "Ana" || entries[1].Text != "hi there" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestJSONPage_RegionsAndViewport(t *testing.T) {
	page := NewJSONPage()
	page.Apply(snapshotWithText("hello"))

	if vp := page.Viewport(); vp.Height != 800 {
		t.Errorf("expected viewport height 800, got %v", vp.Height)
	}
	regions := page.Regions()
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d", len(regions))
	}
	if regions[0].Bounds().Y != 700 {
		t.Errorf("expected region at y=700, got %v", regions[0].Bounds().Y)
	}
}
