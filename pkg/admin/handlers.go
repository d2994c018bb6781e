package admin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/wenli/memekeeper/pkg/store"
)

// handleIndex reports a short service summary
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "memekeeper",
		"records": s.store.Count(),
		"uptime":  time.Since(s.startTime).Seconds(),
	})
}

// handleUpload stores a manually curated meme. Multipart form with a "file"
// part and a "tags" field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.options.MaxUploadSize)
	if err := r.ParseMultipartForm(s.options.MaxUploadSize); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	tags := strings.TrimSpace(r.FormValue("tags"))
	if tags == "" {
		s.writeError(w, http.StatusBadRequest, "tags field is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	rec, err := s.store.Create(store.CreateParams{
		Payload:  payload,
		TagText:  tags,
		Source:   store.SourceManual,
		Filename: path.Base(header.Filename),
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			s.writeError(w, http.StatusConflict, "identical content already stored")
		case errors.Is(err, store.ErrEmptyPayload):
			s.writeError(w, http.StatusBadRequest, "empty file")
		default:
			s.logger.Error().Err(err).Msg("Upload failed")
			s.writeError(w, http.StatusInternalServerError, "failed to store meme")
		}
		return
	}

	s.logger.Info().Str("id", rec.ID).Str("tags", rec.TagText).Msg("Meme uploaded")
	s.writeJSON(w, http.StatusCreated, UploadResponse{ID: rec.ID, Tags: rec.TagText})
}

// handleDelete removes a single record
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		s.writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := s.store.Delete(req.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "record not found")
			return
		}
		s.logger.Error().Err(err).Str("id", req.ID).Msg("Delete failed")
		s.writeError(w, http.StatusInternalServerError, "failed to delete record")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": req.ID})
}

// handleBatchDelete removes a set of records, reporting per-ID results
func (s *Server) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req BatchDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "ids must not be empty")
		return
	}

	result, err := s.store.BatchDelete(req.IDs)
	if err != nil {
		s.logger.Error().Err(err).Msg("Batch delete failed")
		s.writeError(w, http.StatusInternalServerError, "failed to delete records")
		return
	}

	s.writeJSON(w, http.StatusOK, BatchDeleteResponse{
		Deleted: result.Deleted,
		Missing: result.Missing,
	})
}

// handleUpdateTag rewrites the tag text of a record
func (s *Server) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req UpdateTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		s.writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if strings.TrimSpace(req.Tags) == "" {
		s.writeError(w, http.StatusBadRequest, "tags must not be empty")
		return
	}

	if err := s.store.UpdateTag(req.ID, req.Tags); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "record not found")
			return
		}
		s.logger.Error().Err(err).Str("id", req.ID).Msg("Tag update failed")
		s.writeError(w, http.StatusInternalServerError, "failed to update tag")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"id": req.ID, "tags": req.Tags})
}

// handleList returns the full library in stable ID order
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records := s.store.List()
	views := make([]RecordView, 0, len(records))
	for _, rec := range records {
		views = append(views, RecordView{
			ID:     rec.ID,
			Tags:   rec.TagText,
			Source: string(rec.Source),
			Hash:   rec.ContentHash,
		})
	}

	s.writeJSON(w, http.StatusOK, ListResponse{Count: len(views), Records: views})
}

// handleGetConfig returns the current configuration document
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw, err := s.configs.Snapshot()
	if err != nil {
		s.logger.Error().Err(err).Msg("Config snapshot failed")
		s.writeError(w, http.StatusInternalServerError, "failed to read config")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// handleUpdateConfig validates and applies a full config replacement
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := ValidateConfigJSON(raw); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.configs.Update(raw); err != nil {
		s.logger.Error().Err(err).Msg("Config update failed")
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.logger.Info().Msg("Config updated via admin API")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

// handleImage serves a stored payload by record ID
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/images/")
	if id == "" || strings.Contains(id, "/") || strings.Contains(id, "..") {
		s.writeError(w, http.StatusBadRequest, "invalid image id")
		return
	}

	if _, err := s.store.Get(id); err != nil {
		s.writeError(w, http.StatusNotFound, "record not found")
		return
	}

	http.ServeFile(w, r, s.store.PayloadPath(id))
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"records":   s.store.Count(),
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}
