// Package correct runs an asynchronous grammar cleanup pass over committed
// transcript blocks. Results are written back only when the block and the
// session are still the ones the correction was computed for; a clear or
// deactivation in the meantime advances the generation and the result is
// dropped.
package correct

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"caption-ingress-engine/internal/config"
	"caption-ingress-engine/internal/models"
	"caption-ingress-engine/internal/observability/logging"
	"caption-ingress-engine/internal/observability/metrics"
	"caption-ingress-engine/internal/provider"
)

const requestTimeout = 30 * time.Second

const systemPrompt = "You fix grammar, punctuation, and obvious speech-to-text " +
	"recognition mistakes in live caption text. Reply with the corrected text " +
	"only. Keep the speaker's wording and meaning; never add, summarize, or " +
	"explain anything."

// refusalMarkers flag provider output that is commentary about the text
// instead of a corrected version of it.
var refusalMarkers = []string{
	"i'm sorry",
	"i am sorry",
	"i apologize",
	"as an ai",
	"as a language model",
	"could you clarify",
	"i need more context",
}

// Transcript is the write-back surface the supervisor needs from the engine.
type Transcript interface {
	Generation() uint64
	ApplyCorrection(generation uint64, index int, oldText, newText string) bool
}

// Supervisor dispatches one goroutine per correction request.
type Supervisor struct {
	cfg        config.CorrectionConfig
	provider   provider.Provider
	transcript Transcript
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	wg         sync.WaitGroup
}

// New creates a supervisor writing corrections back into transcript.
func New(cfg config.CorrectionConfig, p provider.Provider, transcript Transcript) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		provider:   p,
		transcript: transcript,
		logger:     logging.WithComponent("correct"),
		metrics:    metrics.DefaultMetrics,
	}
}

// Request schedules a correction for the block at index. The engine calls
// it from the flush path with the newest committed block; the generation is
// the fence value captured at dispatch.
func (s *Supervisor) Request(generation uint64, index int, block models.CommittedBlock) {
	if !s.cfg.Enabled {
		return
	}
	s.metrics.CorrectionsRequested.Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(generation, index, block)
	}()
}

// Wait blocks until all in-flight corrections finished. Used on shutdown.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) run(generation uint64, index int, block models.CommittedBlock) {
	// The session may have moved on while the request sat in the
	// goroutine queue; don't spend a provider call on it.
	if generation != s.transcript.Generation() {
		s.discard("stale_generation", index, block)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	corrected, err := s.provider.Complete(ctx, systemPrompt, block.Text)
	if err != nil {
		s.metrics.CorrectionsDiscarded.WithLabelValues("provider_error").Inc()
		s.logger.Warn().Err(err).Int("index", index).Msg("Correction request failed")
		return
	}

	corrected = strings.TrimSpace(corrected)
	if reason := s.vet(block.Text, corrected); reason != "" {
		s.discard(reason, index, block)
		return
	}
	if corrected == block.Text {
		return
	}

	if !s.transcript.ApplyCorrection(generation, index, block.Text, corrected) {
		s.discard("block_moved", index, block)
		return
	}
	s.metrics.CorrectionsApplied.Inc()
	s.logger.Debug().
		Int("index", index).
		Str("speaker", block.Speaker).
		Msg("Correction applied")
}

// vet returns a non-empty discard reason when the provider output is not a
// usable correction of original.
func (s *Supervisor) vet(original, corrected string) string {
	if corrected == "" {
		return "empty"
	}
	lowered := strings.ToLower(corrected)
	for _, marker := range refusalMarkers {
		if strings.Contains(lowered, marker) {
			return "refusal"
		}
	}
	limit := float64(len([]rune(original))) * s.cfg.MaxGrowthFactor
	if float64(len([]rune(corrected))) > limit {
		return "rewrite"
	}
	return ""
}

func (s *Supervisor) discard(reason string, index int, block models.CommittedBlock) {
	s.metrics.CorrectionsDiscarded.WithLabelValues(reason).Inc()
	s.logger.Debug().
		Str("reason", reason).
		Int("index", index).
		Str("speaker", block.Speaker).
		Msg("Correction discarded")
}
