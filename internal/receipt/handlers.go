package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zzjbattlefield/smart-ledger-web/internal/capture"
)

// Phone photos are large; allow a handful per request
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeEngineError maps capture errors onto HTTP status codes
func writeEngineError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, capture.ErrValidationRejected):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, capture.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, capture.ErrInvalidTransition), errors.Is(err, capture.ErrNotReady):
		code = http.StatusConflict
	case errors.Is(err, capture.ErrEngineStopped):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		slog.Error("Error handling request", "error", err)
	}
	writeError(w, err.Error(), code)
}

// detectContentType falls back to the file extension when the client sent
// no usable part type
func detectContentType(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleQueue returns the current snapshot
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.engine.Snapshot())
}

// handleUploadFiles queues every "file" part of a multipart upload
func (s *Server) handleUploadFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "Upload is too large. Maximum size is 50MB.", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}

	files := make([]File, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			slog.Error("Error opening uploaded file", "error", err, "filename", header.Filename)
			writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
			return
		}
		files = append(files, File{
			Filename:    header.Filename,
			ContentType: detectContentType(header.Header.Get("Content-Type"), header.Filename),
			Data:        data,
		})
	}

	items, err := s.service.Upload(r.Context(), files)
	if err != nil {
		if errors.Is(err, ErrEmptyFile) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, items)
}

// handleAddManual queues a manual entry
func (s *Server) handleAddManual(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.engine.AddManual(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleSetActive selects the item under review
func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.service.engine.SetActive(r.Context(), req.ID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRetry re-queues an item whose recognition failed
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.service.engine.Retry(r.Context(), r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleEditForm applies a partial form edit and returns the item
func (s *Server) handleEditForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var patch capture.FormPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.service.engine.EditForm(r.Context(), id, patch); err != nil {
		writeEngineError(w, err)
		return
	}
	item, _ := s.service.engine.Snapshot().Item(id)
	writeJSON(w, http.StatusOK, item)
}

// handleSave starts persisting an item; progress shows up in the queue
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.service.engine.Save(r.Context(), r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleRemove deletes an item and its files
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if _, err := s.service.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePreview serves the receipt preview image
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.Preview(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

type modeBody struct {
	AutoSubmit *bool `json:"auto_submit"`
}

// handleGetMode returns the capture mode
func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.service.AutoSubmit()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modeBody{AutoSubmit: &enabled})
}

// handleSetMode changes the capture mode
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AutoSubmit == nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.service.SetAutoSubmit(*req.AutoSubmit); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
