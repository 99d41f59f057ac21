package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"VoiceGuardBackend/internal/reports"
)

func (s *APIServer) listReportsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.reports.List()
	if err != nil {
		log.Printf("读取报告目录失败: %v", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "storage_error", "Failed to list reports")
		return
	}
	s.writeSuccessResponse(w, list)
}

func (s *APIServer) downloadReportHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]

	f, info, err := s.reports.Open(name)
	if err != nil {
		status, code, message := reportError(err)
		s.writeErrorResponse(w, status, code, message)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *APIServer) shareReportHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := s.sharer.Share(r.Context(), req.Email, req.Filename); err != nil {
		status, code, message := reportError(err)
		if status >= http.StatusInternalServerError {
			s.logger.LogError("reports", fmt.Sprintf("分享报告 %s 失败: %v", req.Filename, err))
		}
		s.writeErrorResponse(w, status, code, message)
		return
	}
	s.logger.LogSuccess("reports", fmt.Sprintf("报告 %s 已发送", req.Filename))

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success:   true,
		Message:   "Report sent",
		Data:      map[string]string{"email": req.Email, "filename": req.Filename},
		Timestamp: time.Now().UnixMilli(),
	})
}

// reportError 报告相关错误到HTTP状态码的映射
func reportError(err error) (int, string, string) {
	switch {
	case errors.Is(err, reports.ErrInvalidName):
		return http.StatusBadRequest, "invalid_filename", err.Error()
	case errors.Is(err, reports.ErrNotFound):
		return http.StatusNotFound, "report_not_found", "Report not found"
	case errors.Is(err, reports.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid_email", err.Error()
	case errors.Is(err, reports.ErrMailNotConfigured):
		return http.StatusServiceUnavailable, "mail_not_configured", "Email sharing is not configured"
	case errors.Is(err, reports.ErrSendFailed):
		return http.StatusBadGateway, "send_failed", "Failed to send email"
	default:
		return http.StatusInternalServerError, "internal_error", err.Error()
	}
}
