package httpserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"VoiceGuardBackend/internal/feedback"
)

const (
	defaultFeedbackLimit = 20
	maxFeedbackLimit     = 100
)

func (s *APIServer) submitFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Feedback string `json:"feedback"`
		Type     string `json:"type"`
		Rating   *int   `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	entry, err := feedback.NewEntry(req.Feedback, req.Type, req.Rating)
	if err != nil {
		code := "invalid_feedback"
		if errors.Is(err, feedback.ErrEmptyFeedback) {
			code = "empty_feedback"
		}
		s.writeErrorResponse(w, http.StatusBadRequest, code, err.Error())
		return
	}

	if err := s.feedback.Save(r.Context(), entry); err != nil {
		log.Printf("保存反馈失败: %v", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "storage_error", "Failed to store feedback")
		return
	}
	s.logger.LogInfo("feedback", "收到反馈 type="+entry.Type)

	s.writeJSONResponse(w, http.StatusOK, compatResponse{
		APIResponse: APIResponse{
			Success:   true,
			Message:   "Feedback received",
			Data:      entry,
			Timestamp: time.Now().UnixMilli(),
		},
		Feedback: &entry.Text,
	})
}

func (s *APIServer) listFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultFeedbackLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxFeedbackLimit)
	}

	entries, err := s.feedback.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("读取反馈失败: %v", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "storage_error", "Failed to load feedback")
		return
	}
	s.writeSuccessResponse(w, entries)
}
