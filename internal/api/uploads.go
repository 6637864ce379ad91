package api

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 50 << 20 // 50 MB

// UploadHandler accepts multipart file uploads and stores each one as a
// binary record.
type UploadHandler struct {
	store Store
}

// NewUploadHandler creates an upload handler backed by store.
func NewUploadHandler(store Store) *UploadHandler {
	return &UploadHandler{store: store}
}

// Upload handles POST /api/collections/{name}/uploads (multipart/form-data, field "file").
//
//	@Summary		Upload a file as a binary record
//	@Tags			records
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Param			file	formData	file	true	"File to store"
//	@Success		201		{object}	UploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/uploads [post]
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return
	}

	id, err := h.store.InsertRecord(r.Context(), chi.URLParam(r, "name"), data, true)
	if err != nil {
		writeError(w, "upload", err)
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		RecordRef: RecordRef{ID: id, IsBinary: true},
		Filename:  filepath.Base(header.Filename),
		Size:      int64(len(data)),
	})
}
