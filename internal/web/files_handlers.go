package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/writeright/writeright/internal/storage"
)

// handleFileUpload validates a multipart image and proxies it to the
// blob store.
func (s *Server) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireUser(w, r); !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxUploadBytes+4096)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close() //nolint:errcheck

	if err := storage.ValidateUpload(header.Filename, header.Size); err != nil {
		status := http.StatusBadRequest
		if header.Size > storage.MaxUploadBytes {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, err.Error())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}
	result, err := s.files.UploadImage(r.Context(), data, header.Filename)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleFileLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, storage.CurrentLimits())
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireUser(w, r); !ok {
		return
	}
	info, err := s.files.Info(r.Context(), r.PathValue("file_id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireUser(w, r); !ok {
		return
	}
	if err := s.files.Delete(r.Context(), r.PathValue("file_id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
