// Package assist turns hotkey commands into streamed AI answers grounded in
// the recent transcript. A command names what the user wants (surface the
// open question, answer it briefly, answer it in depth, or clear the
// transcript); the engine assembles the conversation context, streams the
// provider's answer to the consumer, and guarantees exactly one terminal
// event per request.
package assist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"caption-ingress-engine/internal/config"
	"caption-ingress-engine/internal/models"
	"caption-ingress-engine/internal/observability/logging"
	"caption-ingress-engine/internal/observability/metrics"
	"caption-ingress-engine/internal/provider"
)

// Mode is the kind of assistance requested.
type Mode string

const (
	// ModeQuestion surfaces the most recent open question in the
	// conversation without answering it.
	ModeQuestion Mode = "question"
	// ModeSimpleAnswer answers the open question in one or two sentences.
	ModeSimpleAnswer Mode = "simple_answer"
	// ModeDetailedAnswer answers the open question thoroughly.
	ModeDetailedAnswer Mode = "detailed_answer"
	// ModeClear empties the transcript.
	ModeClear Mode = "clear"
)

// ParseMode validates a mode string from the transport layer.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeQuestion, ModeSimpleAnswer, ModeDetailedAnswer, ModeClear:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown assist mode %q", s)
}

var systemPrompts = map[Mode]string{
	ModeQuestion: "You follow a live meeting transcript. Identify the most " +
		"recent question that was asked and has not been answered yet. Reply " +
		"with that question restated clearly, and nothing else. If no open " +
		"question exists, say so in one short sentence.",
	ModeSimpleAnswer: "You follow a live meeting transcript. Answer the most " +
		"recent open question in at most two sentences. Be direct; no " +
		"preamble.",
	ModeDetailedAnswer: "You follow a live meeting transcript. Answer the " +
		"most recent open question thoroughly, with reasoning and concrete " +
		"specifics where the context supports them.",
}

// Consumer receives the streamed response. Every request gets exactly one
// terminal event, OnEnd or OnError. Accepted commands see OnStart first;
// a debounced command goes straight to OnError.
type Consumer interface {
	OnStart(mode Mode)
	OnToken(token string)
	OnEnd()
	OnError(message string)
}

// TranscriptSource is the read surface the engine needs from the transcript.
type TranscriptSource interface {
	Recent(n int) []models.CommittedBlock
	Clear()
}

// Engine serializes assist commands and owns the shared command debounce.
type Engine struct {
	cfg        config.AssistConfig
	provider   provider.Provider
	transcript TranscriptSource

	mu       sync.Mutex
	docs     []models.ReferenceDocument
	lastMode Mode
	lastAt   time.Time

	metrics *metrics.Metrics
	clock   func() time.Time
}

// New creates an assist engine over the transcript source.
func New(cfg config.AssistConfig, p provider.Provider, transcript TranscriptSource) *Engine {
	return &Engine{
		cfg:        cfg,
		provider:   p,
		transcript: transcript,
		metrics:    metrics.DefaultMetrics,
		clock:      time.Now,
	}
}

// SetDocuments replaces the reference documents used for answer grounding.
func (e *Engine) SetDocuments(docs []models.ReferenceDocument) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs = append([]models.ReferenceDocument(nil), docs...)
}

// Request executes one assist command synchronously, streaming the response
// into consumer. A command identical to the previous one inside the
// debounce window is dropped, the double-press of a hotkey.
func (e *Engine) Request(ctx context.Context, mode Mode, consumer Consumer) {
	now := e.clock()

	e.mu.Lock()
	if mode == e.lastMode && now.Sub(e.lastAt) < e.cfg.DebounceWindow {
		e.mu.Unlock()
		e.metrics.AssistDebounced.Inc()
		consumer.OnError("duplicate command ignored")
		return
	}
	e.lastMode = mode
	e.lastAt = now
	docs := e.docs
	e.mu.Unlock()

	logger := logging.WithAssist(string(mode))
	e.metrics.AssistRequests.WithLabelValues(string(mode)).Inc()
	consumer.OnStart(mode)

	if mode == ModeClear {
		e.transcript.Clear()
		logger.Info().Msg("Transcript cleared by assist command")
		consumer.OnEnd()
		return
	}

	userPrompt := e.buildContext(docs)
	if userPrompt == "" {
		consumer.OnError("no transcript context available")
		return
	}

	err := e.provider.Stream(ctx, systemPrompts[mode], userPrompt, func(token string) {
		e.metrics.AssistTokens.Inc()
		consumer.OnToken(token)
	})
	if err != nil {
		e.metrics.AssistErrors.Inc()
		logger.Warn().Err(err).Msg("Assist stream failed")
		consumer.OnError(err.Error())
		return
	}
	consumer.OnEnd()
}

// buildContext renders the recent transcript and reference document
// excerpts into the user prompt.
func (e *Engine) buildContext(docs []models.ReferenceDocument) string {
	blocks := e.transcript.Recent(e.cfg.ContextBlocks)
	if len(blocks) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, block := range blocks {
		if block.Speaker != "" {
			b.WriteString(block.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(block.Text)
		b.WriteString("\n")
	}

	if len(docs) > 0 {
		b.WriteString("\nBackground documents. Use them to inform your answer; do not quote them directly:\n")
		for _, doc := range docs {
			b.WriteString("--- ")
			b.WriteString(doc.Name)
			b.WriteString(" ---\n")
			b.WriteString(excerpt(doc.Content, e.cfg.DocExcerptRunes))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func excerpt(content string, limit int) string {
	runes := []rune(strings.TrimSpace(content))
	if limit <= 0 || len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "…"
}
