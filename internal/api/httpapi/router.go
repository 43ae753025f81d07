// Package httpapi exposes the engine over HTTP: snapshot ingestion from the
// external observer process, transcript reads, session control, and assist
// commands streamed back as server-sent events.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"caption-ingress-engine/internal/assist"
	"caption-ingress-engine/internal/engine"
	"caption-ingress-engine/internal/models"
	"caption-ingress-engine/internal/observability/logging"
	"caption-ingress-engine/internal/source"
)

// Server bundles the handlers' dependencies.
type Server struct {
	engine *engine.Engine
	page   *source.JSONPage
	assist *assist.Engine
	logger zerolog.Logger
}

// NewRouter constructs the HTTP router for the engine.
func NewRouter(eng *engine.Engine, page *source.JSONPage, assistEngine *assist.Engine) http.Handler {
	s := &Server{
		engine: eng,
		page:   page,
		assist: assistEngine,
		logger: logging.WithComponent("httpapi"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", s.handleReadiness)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/snapshots", s.handleSnapshot)
		r.Get("/transcript", s.handleTranscript)
		r.Post("/transcript/clear", s.handleClear)
		r.Post("/session/activate", s.handleActivate)
		r.Post("/session/deactivate", s.handleDeactivate)
		r.Put("/documents", s.handleDocuments)
		r.Post("/assist/{mode}", s.handleAssist)
	})

	return r
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":    s.engine.Active(),
		"discovery": s.engine.DiscoveryState().String(),
	})
}

// handleSnapshot ingests one serialized surface snapshot from the observer.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap source.PageSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		s.logger.Warn().Err(err).Msg("Rejected malformed snapshot")
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode snapshot: %v", err))
		return
	}
	s.page.Apply(snap)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": s.engine.SessionID(),
		"blocks":    s.engine.View(),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.engine.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivate(w http.ResponseWriter, _ *http.Request) {
	sessionID := s.engine.Activate()
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, _ *http.Request) {
	s.engine.Deactivate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	var docs []models.ReferenceDocument
	if err := json.NewDecoder(r.Body).Decode(&docs); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode documents: %v", err))
		return
	}
	s.assist.SetDocuments(docs)
	w.WriteHeader(http.StatusNoContent)
}

// handleAssist runs one assist command and streams the response as SSE.
func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request) {
	mode, err := assist.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.assist.Request(r.Context(), mode, &sseConsumer{w: w, flusher: flusher})
}

// sseConsumer bridges assist events onto a server-sent event stream.
type sseConsumer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (c *sseConsumer) emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(c.w, "event: %s\ndata: %s\n\n", event, data)
	c.flusher.Flush()
}

func (c *sseConsumer) OnStart(mode assist.Mode) {
	c.emit("start", map[string]string{"mode": string(mode)})
}

func (c *sseConsumer) OnToken(token string) {
	c.emit("token", map[string]string{"token": token})
}

func (c *sseConsumer) OnEnd() {
	c.emit("end", map[string]string{})
}

func (c *sseConsumer) OnError(message string) {
	c.emit("error", map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
