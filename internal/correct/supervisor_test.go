package correct

import (
	"sync"
	"testing"
	"time"

	"caption-ingress-engine/internal/config"
	"caption-ingress-engine/internal/models"
	"caption-ingress-engine/internal/provider/mock"
)

type fakeTranscript struct {
	mu         sync.Mutex
	generation uint64
	applied    []string
	reject     bool
}

func (f *fakeTranscript) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation
}

func (f *fakeTranscript) ApplyCorrection(generation uint64, index int, oldText, newText string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject || generation != f.generation {
		return false
	}
	f.applied = append(f.applied, newText)
	return true
}

func (f *fakeTranscript) appliedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

func testCorrectionConfig() config.CorrectionConfig {
	return config.CorrectionConfig{Enabled: true, MaxGrowthFactor: 2.0}
}

func block(text string) models.CommittedBlock {
	return models.CommittedBlock{Speaker: "Alice", Text: text, CommittedAt: time.Now()}
}

func TestSupervisor_AppliesCorrection(t *testing.T) {
	p := mock.New()
	p.Script("Hello world, everyone.")
	tr := &fakeTranscript{generation: 3}
	s := New(testCorrectionConfig(), p, tr)

	s.Request(3, 0, block("helo wold evryone"))
	s.Wait()

	applied := tr.appliedTexts()
	if len(applied) != 1 || applied[0] != "Hello world, everyone." {
		t.Errorf("expected correction applied, got %v", applied)
	}
}

func TestSupervisor_StaleGenerationSkipsProvider(t *testing.T) {
	p := mock.New()
	tr := &fakeTranscript{generation: 5}
	s := New(testCorrectionConfig(), p, tr)

	s.Request(4, 0, block("some committed text"))
	s.Wait()

	if p.Completes() != 0 {
		t.Errorf("expected no provider call for a stale generation, got %d", p.Completes())
	}
	if len(tr.appliedTexts()) != 0 {
		t.Errorf("expected nothing applied, got %v", tr.appliedTexts())
	}
}

func TestSupervisor_RefusalDiscarded(t *testing.T) {
	p := mock.New()
	p.Script("I'm sorry, could you clarify what you mean by that?")
	tr := &fakeTranscript{generation: 1}
	s := New(testCorrectionConfig(), p, tr)

	s.Request(1, 0, block("the build is red again"))
	s.Wait()

	if len(tr.appliedTexts()) != 0 {
		t.Errorf("expected refusal discarded, got %v", tr.appliedTexts())
	}
}

func TestSupervisor_OversizedRewriteDiscarded(t *testing.T) {
	p := mock.New()
	p.Script("This is a dramatically longer rewrite of the original text that clearly goes far beyond fixing grammar and therefore must not replace it.")
	tr := &fakeTranscript{generation: 1}
	s := New(testCorrectionConfig(), p, tr)

	s.Request(1, 0, block("short original"))
	s.Wait()

	if len(tr.appliedTexts()) != 0 {
		t.Errorf("expected oversized rewrite discarded, got %v", tr.appliedTexts())
	}
}

func TestSupervisor_UnchangedTextNotApplied(t *testing.T) {
	p := mock.New()
	p.Script("Already perfectly fine.")
	tr := &fakeTranscript{generation: 1}
	s := New(testCorrectionConfig(), p, tr)

	s.Request(1, 0, block("Already perfectly fine."))
	s.Wait()

	if len(tr.appliedTexts()) != 0 {
		t.Errorf("expected identical correction dropped, got %v", tr.appliedTexts())
	}
}

func TestSupervisor_MovedBlockDiscarded(t *testing.T) {
	p := mock.New()
	p.Script("Corrected text here.")
	tr := &fakeTranscript{generation: 1, reject: true}
	s := New(testCorrectionConfig(), p, tr)

	s.Request(1, 0, block("original text here"))
	s.Wait()

	if len(tr.appliedTexts()) != 0 {
		t.Errorf("expected moved block discarded, got %v", tr.appliedTexts())
	}
}

func TestSupervisor_DisabledDoesNothing(t *testing.T) {
	p := mock.New()
	tr := &fakeTranscript{generation: 1}
	s := New(config.CorrectionConfig{Enabled: false, MaxGrowthFactor: 2.0}, p, tr)

	s.Request(1, 0, block("anything at all"))
	s.Wait()

	if p.Completes() != 0 {
		t.Errorf("expected no provider calls when disabled, got %d", p.Completes())
	}
}
