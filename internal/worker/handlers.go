package worker

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	json "github.com/goccy/go-json"

	"github.com/HexSleeves/Review-Gate/internal/config"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("stats query failed")
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}

	features := map[string]any{
		"speech_to_text": s.speech.OK(),
		"sse_clients":    s.broadcast.ClientCount(),
	}
	if !s.speech.OK() {
		features["speech_to_text_reason"] = s.speech.Reason
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "running",
		"version":  s.version,
		"stats":    stats,
		"features": features,
	})
}

func (s *Service) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.ListActive(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("session list failed")
		writeError(w, http.StatusInternalServerError, "session list unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Service) handleConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conv, err := s.convs.Get(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("conversation", id).Msg("conversation lookup failed")
		writeError(w, http.StatusInternalServerError, "conversation unavailable")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	limit := config.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := s.convs.GetMessages(r.Context(), id, limit, 0)
	if err != nil {
		log.Error().Err(err).Str("conversation", id).Msg("message list failed")
		writeError(w, http.StatusInternalServerError, "messages unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     messages,
	})
}
