// Package engine runs the capture loop: discover a caption source, extract
// a snapshot each tick, diff it against the previous one, and commit
// disappeared utterances to the transcript. It owns session lifecycle,
// debounced sink flushes, and a generation counter that fences stale
// asynchronous work (corrections in flight across a clear or deactivate).
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"caption-ingress-engine/internal/config"
	"caption-ingress-engine/internal/extract"
	"caption-ingress-engine/internal/flush"
	"caption-ingress-engine/internal/models"
	"caption-ingress-engine/internal/observability/logging"
	"caption-ingress-engine/internal/observability/metrics"
	"caption-ingress-engine/internal/sink"
	"caption-ingress-engine/internal/source"
)

// Store persists the transcript tail and session metadata across restarts.
type Store interface {
	SaveTail(sessionID string, blocks []models.CommittedBlock) error
	LoadTail(sessionID string) ([]models.CommittedBlock, error)
	SaveSession(meta models.SessionMeta) error
	LoadSession() (*models.SessionMeta, error)
}

// CorrectionHook is invoked from the flush path, outside the scan lock, for
// the newest committed block when its text changed since the last dispatch.
// Flushing is the natural settle point: by then the block has absorbed any
// in-place revision, so the correction runs against its final text. The
// generation fences the eventual write-back.
type CorrectionHook func(generation uint64, index int, block models.CommittedBlock)

// Engine drives the capture pipeline for one caption session.
type Engine struct {
	mu sync.Mutex

	cfg     *config.Configuration
	rules   Rules
	disco   *source.Discoverer
	script  *Transcript
	flusher *flush.Scheduler
	sink    sink.Sink
	store   Store

	sessionID  string
	active     bool
	generation uint64
	prev       []models.CaptionObservation
	sinceCheck int

	onCorrect    CorrectionHook
	lastCorrIdx  int
	lastCorrText string

	logger  zerolog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// New wires an engine over a page. The store may be nil when persistence is
// disabled.
func New(cfg *config.Configuration, page source.Page, snk sink.Sink, st Store, descriptors []string) *Engine {
	e := &Engine{
		cfg:         cfg,
		rules:       RulesFromConfig(cfg.Diff),
		disco:       source.NewDiscoverer(cfg.Capture, page, descriptors),
		script:      NewTranscript(),
		sink:        snk,
		store:       st,
		lastCorrIdx: -1,
		logger:      logging.WithComponent("engine"),
		metrics:     metrics.DefaultMetrics,
		clock:       time.Now,
	}
	e.flusher = flush.New(cfg.Flush.FirstInterval, cfg.Flush.SteadyInterval, e.flushNow)
	e.flusher.Cancel()
	return e
}

// SetCorrectionHook registers the correction hook. Must be called before Run.
func (e *Engine) SetCorrectionHook(hook CorrectionHook) {
	e.onCorrect = hook
}

// SessionID returns the current session identifier, empty when inactive.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return ""
	}
	return e.sessionID
}

// Generation returns the current fence value. Asynchronous work captures it
// at dispatch and presents it again at write-back.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Active reports whether a session is running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// DiscoveryState exposes the source discovery state for readiness checks.
func (e *Engine) DiscoveryState() source.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disco.State()
}

// Activate starts a caption session. A persisted session younger than the
// configured maximum age is resumed with its transcript tail; otherwise a
// fresh session is minted.
func (e *Engine) Activate() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return e.sessionID
	}

	now := e.clock()
	e.sessionID = uuid.NewString()
	if e.store != nil {
		if meta, err := e.store.LoadSession(); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to load persisted session")
		} else if meta != nil && now.Sub(meta.UpdatedAt) <= e.cfg.Store.SessionMaxAge {
			e.sessionID = meta.ID
			if tail, err := e.store.LoadTail(meta.ID); err != nil {
				e.logger.Warn().Err(err).Msg("Failed to load persisted tail")
			} else if len(tail) > 0 {
				e.script.Restore(tail)
				e.logger.Info().
					Str("sessionId", meta.ID).
					Int("blocks", len(tail)).
					Msg("Resumed persisted session")
			}
		}
		e.saveSessionLocked(now)
	}
	e.logger = logging.WithSession(e.sessionID).With().
		Str("component", "engine").
		Logger()

	e.active = true
	e.generation++
	e.prev = nil
	e.lastCorrIdx = -1
	e.lastCorrText = ""
	e.flusher.ResetFast()
	e.metrics.TranscriptLength.Set(float64(e.script.Len()))
	e.logger.Info().Msg("Session activated")
	return e.sessionID
}

// Deactivate ends the session: checkpoint, fence out in-flight work, drop
// the source and any pending flush.
func (e *Engine) Deactivate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	e.checkpointLocked()
	e.active = false
	e.generation++
	e.prev = nil
	e.lastCorrIdx = -1
	e.lastCorrText = ""
	e.disco.Reset()
	e.flusher.Cancel()
	e.logger.Info().Msg("Session deactivated")
}

// Clear empties the transcript and forgets the previous snapshot; text
// still on screen is picked up fresh on the next tick. The next flush
// pushes the empty window so downstream consumers clear too.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.script.Clear()
	e.prev = nil
	e.sinceCheck = 0
	e.lastCorrIdx = -1
	e.lastCorrText = ""
	e.metrics.TranscriptLength.Set(0)
	if e.active {
		if e.store != nil {
			if err := e.store.SaveTail(e.sessionID, nil); err != nil {
				e.logger.Warn().Err(err).Msg("Failed to clear persisted tail")
			}
		}
		e.flusher.ResetFast()
		e.flusher.Touch()
	}
	e.logger.Info().Msg("Transcript cleared")
}

// Run drives the scan loop until the context is cancelled, then performs a
// final checkpoint.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Capture.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Deactivate()
			return
		case <-ticker.C:
			e.Tick(e.clock())
		}
	}
}

// Tick runs one scan pass: advance discovery, extract the visible
// observations, commit whatever disappeared since the last pass.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	e.metrics.ScanTicks.Inc()

	node := e.disco.Tick(now)
	e.metrics.RecordDiscoveryState(int(e.disco.State()))
	if node == nil {
		// No source yet, or it was just lost. Nothing disappeared,
		// nothing is observed.
		return
	}

	obs := keepCaptionShaped(extract.Snapshot(node))
	e.metrics.Observations.Observe(float64(len(obs)))
	if len(obs) == 0 {
		e.metrics.EmptyTicks.Inc()
	}

	dirty := false
	for _, old := range Disappeared(e.prev, obs, e.rules) {
		outcome := e.script.Commit(old, now, e.rules)
		switch outcome {
		case OutcomeIgnored:
			continue
		case OutcomeRevised:
			e.metrics.BlocksRevised.Inc()
		case OutcomeReplaced:
			e.metrics.BlocksMerged.Inc()
		case OutcomeAppended:
			e.metrics.RecordCommit(e.script.Len())
		}
		dirty = true
		e.sinceCheck++
		e.logger.Debug().
			Str("outcome", outcome.String()).
			Str("speaker", old.Speaker).
			Int("length", e.script.Len()).
			Msg("Committed observation")
	}
	e.prev = obs

	if dirty {
		e.flusher.Touch()
		if e.sinceCheck >= e.cfg.Flush.CheckpointEvery {
			e.checkpointLocked()
		}
	}
}

// View returns the merged transcript: committed blocks plus the currently
// visible observations rendered as provisional blocks.
func (e *Engine) View() []models.CommittedBlock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.script.View(e.prev, e.clock(), e.rules)
}

// Recent returns the last n blocks of the merged view for assist context.
func (e *Engine) Recent(n int) []models.CommittedBlock {
	view := e.View()
	if n > 0 && len(view) > n {
		view = view[len(view)-n:]
	}
	return view
}

// ApplyCorrection writes a corrected text back into a committed block. It
// is rejected when the generation moved on since the correction was
// dispatched or when the block no longer holds the text the correction was
// computed from.
func (e *Engine) ApplyCorrection(generation uint64, index int, oldText, newText string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active || generation != e.generation {
		return false
	}
	if !e.script.ReplaceText(index, oldText, newText) {
		return false
	}
	e.flusher.Touch()
	return true
}

// flushNow runs on the debounce timer goroutine. It snapshots the current
// window under the lock and pushes it to the sink outside of it, then asks
// the correction hook to look at the newest committed block if its text
// moved since the previous flush.
func (e *Engine) flushNow() {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	sessionID := e.sessionID
	logger := e.logger
	window := e.script.View(e.prev, e.clock(), e.rules)
	if n := e.cfg.Flush.WindowBlocks; len(window) > n {
		window = window[len(window)-n:]
	}

	gen := e.generation
	hook := e.onCorrect
	dispatch := false
	var corrIdx int
	var corrBlock models.CommittedBlock
	if hook != nil && e.script.Len() > 0 {
		corrIdx = e.script.Len() - 1
		corrBlock = e.script.Tail(1)[0]
		if corrIdx != e.lastCorrIdx || corrBlock.Text != e.lastCorrText {
			e.lastCorrIdx = corrIdx
			e.lastCorrText = corrBlock.Text
			dispatch = true
		}
	}
	e.mu.Unlock()

	if dispatch {
		hook(gen, corrIdx, corrBlock)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.sink.Replace(ctx, sessionID, window); err != nil {
		e.metrics.SinkErrors.Inc()
		logger.Error().Err(err).Msg("Sink replacement failed")
	}
}

// checkpointLocked persists the transcript tail and session metadata.
// Caller holds the lock.
func (e *Engine) checkpointLocked() {
	if e.store == nil || !e.active {
		return
	}
	tail := e.script.Tail(e.cfg.Store.TailLimit)
	if err := e.store.SaveTail(e.sessionID, tail); err != nil {
		e.logger.Warn().Err(err).Msg("Checkpoint failed")
		return
	}
	e.saveSessionLocked(e.clock())
	e.sinceCheck = 0
	e.metrics.Checkpoints.Inc()
}

func (e *Engine) saveSessionLocked(now time.Time) {
	meta := models.SessionMeta{
		ID:          e.sessionID,
		ActivatedAt: now,
		UpdatedAt:   now,
		SourceHint:  e.disco.State().String(),
	}
	if err := e.store.SaveSession(meta); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to persist session metadata")
	}
}

// keepCaptionShaped drops observations whose text looks like interface
// chrome rather than speech.
func keepCaptionShaped(obs []models.CaptionObservation) []models.CaptionObservation {
	out := obs[:0]
	for _, o := range obs {
		if source.IsCaptionShaped(o.Text) {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
