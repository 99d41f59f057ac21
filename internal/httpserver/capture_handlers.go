package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"VoiceGuardBackend/internal/capture"
	"VoiceGuardBackend/internal/logger"
)

const captureModule = "capture"

func (s *APIServer) recordAudioHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.capture.Start()
	if err != nil {
		status, code, message := captureError(err)
		s.writeErrorResponse(w, status, code, message)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, compatResponse{
		APIResponse: APIResponse{
			Success: true,
			Message: "Recording started",
			Data: map[string]interface{}{
				"session_id":  sess.ID,
				"sample_rate": s.capture.Format().SampleRate,
				"channels":    s.capture.Format().Channels,
			},
			Timestamp: time.Now().UnixMilli(),
		},
	})
}

func (s *APIServer) stopRecordingHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	// 客户端断开不应该让已经录好的音频丢失
	path, err := s.capture.Stop(context.WithoutCancel(r.Context()), req.Filename)
	if err != nil {
		status, code, message := captureError(err)
		s.writeErrorResponse(w, status, code, message)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, compatResponse{
		APIResponse: APIResponse{
			Success:   true,
			Message:   "Recording stopped",
			Data:      map[string]string{"file_path": path},
			Timestamp: time.Now().UnixMilli(),
		},
		FilePath: path,
	})
}

func (s *APIServer) recordingStatusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeSuccessResponse(w, s.capture.Status())
}

// captureError 采集错误到HTTP状态码的映射
func captureError(err error) (int, string, string) {
	switch {
	case errors.Is(err, capture.ErrAlreadyRecording):
		return http.StatusBadRequest, "already_recording", "Recording already in progress"
	case errors.Is(err, capture.ErrNotRecording):
		return http.StatusBadRequest, "not_recording", "No recording in progress"
	case errors.Is(err, capture.ErrEmptyRecording):
		return http.StatusBadRequest, "empty_recording", "No audio was captured"
	case errors.Is(err, capture.ErrInvalidFilename):
		return http.StatusBadRequest, "invalid_filename", err.Error()
	case errors.Is(err, capture.ErrDevice):
		return http.StatusInternalServerError, "device_error", err.Error()
	case errors.Is(err, capture.ErrEncoding):
		return http.StatusInternalServerError, "encoding_error", err.Error()
	case errors.Is(err, capture.ErrStorage):
		return http.StatusInternalServerError, "storage_error", err.Error()
	default:
		return http.StatusInternalServerError, "internal_error", err.Error()
	}
}

// publishCaptureEvent 把采集事件推送到日志流
func (s *APIServer) publishCaptureEvent(event capture.Event) {
	msg := logger.LogMessage{
		Module:    captureModule,
		Data:      event,
		Timestamp: event.Timestamp,
	}

	switch event.Type {
	case capture.EventStarted:
		msg.Level = "INFO"
		msg.Message = fmt.Sprintf("录音开始 session=%s", event.SessionID)
	case capture.EventStopped:
		msg.Level = "SUCCESS"
		msg.Message = fmt.Sprintf("录音已保存 %s (%d 个样本)", event.FilePath, event.Samples)
		if event.Dropped > 0 {
			s.logger.LogWarning(captureModule, fmt.Sprintf("会话 %s 结束后丢弃了 %d 个音频块", event.SessionID, event.Dropped))
		}
	case capture.EventFailed:
		msg.Level = "ERROR"
		msg.Message = fmt.Sprintf("录音失败 session=%s: %s", event.SessionID, event.Error)
	case capture.EventCallbackFault:
		msg.Level = "WARNING"
		msg.Message = fmt.Sprintf("采集回调异常 session=%s: %s", event.SessionID, event.Error)
	default:
		msg.Level = "INFO"
		msg.Message = string(event.Type)
	}

	s.logger.Publish(msg)
}
