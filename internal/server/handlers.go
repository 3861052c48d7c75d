package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/escalate"
	"github.com/spendlens/guardrails/internal/inspect"
	"github.com/spendlens/guardrails/internal/output"
)

const maxBodyBytes = 1 << 20 // 1 MiB

type inspectInputRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Endpoint  string `json:"endpoint"`
	Input     string `json:"input"`
}

type inspectInputResponse struct {
	RequestID string `json:"request_id"`
	inspect.Result
}

type inspectOutputRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Endpoint  string `json:"endpoint"`
	Response  string `json:"response"`
	Format    string `json:"format"` // "text" (default) or "json"
}

type inspectOutputResponse struct {
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
	output.Result
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
	Reviewer   string `json:"reviewer"`
}

// handleInspectInput gates a user prompt before it reaches the model.
func (s *Server) handleInspectInput(w http.ResponseWriter, r *http.Request) {
	var req inspectInputRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Input == "" {
		writeError(w, http.StatusBadRequest, "user_id and input are required")
		return
	}

	requestID := getRequestID(r.Context())
	result := s.engine.Input.Inspect(r.Context(), inspect.Context{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		RequestID: requestID,
		Endpoint:  req.Endpoint,
		Input:     req.Input,
	})

	s.totalInspections.Add(1)
	if result.Decision == inspect.DecisionBlock {
		s.totalBlocks.Add(1)
	}

	writeJSON(w, http.StatusOK, inspectInputResponse{
		RequestID: requestID,
		Result:    result,
	})
}

// handleInspectOutput gates a model response before it reaches the user.
func (s *Server) handleInspectOutput(w http.ResponseWriter, r *http.Request) {
	var req inspectOutputRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Response == "" {
		writeError(w, http.StatusBadRequest, "user_id and response are required")
		return
	}

	format := output.FormatText
	if req.Format == string(output.FormatJSON) {
		format = output.FormatJSON
	}

	requestID := getRequestID(r.Context())
	result := s.engine.Output.Inspect(r.Context(), output.Context{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		RequestID: requestID,
		Endpoint:  req.Endpoint,
		Response:  req.Response,
		Format:    format,
	})

	s.totalInspections.Add(1)

	text := result.ProcessedText
	if result.Decision == output.DecisionBlock {
		s.totalBlocks.Add(1)
		text = output.BlockedMessage
	}

	writeJSON(w, http.StatusOK, inspectOutputResponse{
		RequestID: requestID,
		Text:      text,
		Result:    result,
	})
}

// handleEscalationList returns pending review items, highest severity
// first.
func (s *Server) handleEscalationList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	records, err := s.engine.Queue.ListPending(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list escalations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"escalations": records,
		"count":       len(records),
	})
}

func (s *Server) handleEscalationGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	record, err := s.engine.Queue.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, escalate.ErrNotFound) {
			writeError(w, http.StatusNotFound, "escalation not found")
			return
		}
		s.logger.Error("Failed to fetch escalation", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleEscalationResolve applies a reviewer decision. Each record
// resolves exactly once.
func (s *Server) handleEscalationResolve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resolution := escalate.Resolution(req.Resolution)
	if !escalate.ValidResolution(resolution) {
		writeError(w, http.StatusBadRequest, "resolution must be APPROVE, REJECT or DISMISS")
		return
	}
	if req.Reviewer == "" {
		writeError(w, http.StatusBadRequest, "reviewer is required")
		return
	}

	record, err := s.engine.Queue.Resolve(r.Context(), id, resolution, req.Reviewer)
	if err != nil {
		switch {
		case errors.Is(err, escalate.ErrNotFound):
			writeError(w, http.StatusNotFound, "escalation not found")
		case errors.Is(err, escalate.ErrAlreadyResolved):
			writeError(w, http.StatusConflict, "escalation already resolved")
		case errors.Is(err, escalate.ErrInvalidResolution):
			writeError(w, http.StatusBadRequest, "invalid resolution")
		default:
			s.logger.Error("Failed to resolve escalation", zap.String("id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleEscalationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Queue.Stats(r.Context())
	if err != nil {
		s.logger.Error("Failed to compute escalation stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	activePatterns := 0
	if s.engine.Patterns != nil {
		activePatterns = s.engine.Patterns.Size()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":            "spendlens-guardrails",
		"version":         Version,
		"input_enabled":   s.config.Input.Enabled,
		"output_enabled":  s.config.Output.Enabled,
		"active_patterns": activePatterns,
		"uptime":          time.Since(s.startTime).Round(time.Second).String(),
	})
}

// decodeBody parses a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
