package httpserver

import (
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const multipartMemory = 8 << 20

func (s *APIServer) uploadAudioHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.storage.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "file_too_large", "Uploaded file is too large")
			return
		}
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Expected multipart form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "missing_file", "No file part in the request")
		return
	}
	defer file.Close()

	original := sanitizeUploadName(header.Filename)
	if original == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "missing_file", "No file selected")
		return
	}

	if err := os.MkdirAll(s.storage.UploadsDir, 0o755); err != nil {
		log.Printf("创建上传目录失败: %v", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "storage_error", "Failed to store upload")
		return
	}

	path := filepath.Join(s.storage.UploadsDir, uuid.NewString()+"_"+original)
	if err := saveUpload(path, file); err != nil {
		log.Printf("保存上传文件失败: %v", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "storage_error", "Failed to store upload")
		return
	}

	result, err := s.analyzer.AnalyzeFile(path)
	if err != nil {
		log.Printf("分析上传文件失败: %v", err)
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, "analysis_failed", err.Error())
		return
	}
	s.dashboard.RecordScan(result)
	s.logger.LogInfo("upload", "收到音频 "+filepath.Base(path))

	s.writeJSONResponse(w, http.StatusOK, compatResponse{
		APIResponse: APIResponse{
			Success: true,
			Message: "File uploaded successfully",
			Data: map[string]interface{}{
				"filename": original,
				"analysis": result,
			},
			Timestamp: time.Now().UnixMilli(),
		},
		FilePath: path,
	})
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return err
	}
	return dst.Close()
}

// sanitizeUploadName 只保留文件名部分，其余字符替换为下划线
func sanitizeUploadName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	return strings.TrimLeft(name, ".")
}
