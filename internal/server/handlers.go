package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/pii"
)

type maskRequest struct {
	Text string `json:"text"`
}

// entityResponse is the wire form of a detected entity. Offsets stay
// internal: regex and NER entities are positioned in different text
// versions, so exposing them would invite off-by-one misuse.
type entityResponse struct {
	Text  string    `json:"text"`
	Label pii.Label `json:"label"`
}

type maskResponse struct {
	MaskedText string           `json:"masked_text"`
	Entities   []entityResponse `json:"entities"`
	RiskScore  float64          `json:"risk_score"`
	Cached     bool             `json:"cached"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Patterns  int    `json:"patterns"`
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleMask runs the masking pipeline over the request text.
func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	s.totalRequests.Add(1)

	maxBody := int64(s.cfg.Pipeline.MaxTextLength)*4 + 4096
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	var req maskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	if s.cfg.Pipeline.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Pipeline.RequestTimeout)
		defer cancel()
	}

	result, err := s.pipeline.Mask(ctx, req.Text)
	if err != nil {
		var verr *pii.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Reason)
			return
		}
		s.logger.WithRequestID(requestIDFrom(r.Context())).Error("Masking failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.totalMasked.Add(1)

	entities := make([]entityResponse, 0, len(result.Entities))
	for _, e := range result.Entities {
		entities = append(entities, entityResponse{Text: e.Text, Label: e.Label})
	}

	writeJSON(w, http.StatusOK, maskResponse{
		MaskedText: result.MaskedText,
		Entities:   entities,
		RiskScore:  result.RiskScore,
		Cached:     result.Cached,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Service:   "kagemask",
		Version:   Version,
		Patterns:  len(s.pipeline.PatternNames()),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache disabled")
		return
	}

	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		s.logger.Error("Cache stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache disabled")
		return
	}

	if err := s.cache.Clear(r.Context()); err != nil {
		s.logger.Error("Cache clear failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleCacheExpired(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "cache disabled")
		return
	}

	removed, err := s.cache.ClearExpired(r.Context())
	if err != nil {
		s.logger.Error("Cache expiry sweep failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
