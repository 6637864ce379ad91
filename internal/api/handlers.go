package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/starford/shelf/internal/checksum"
	"github.com/starford/shelf/internal/codec"
	"github.com/starford/shelf/internal/models"
)

const maxRecordBytes = 10 << 20 // 10 MB

// Handler holds API route handlers.
type Handler struct {
	store Store
}

// NewHandler creates a new Handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// ListCollections handles GET /api/collections.
//
//	@Summary		List collections
//	@Tags			collections
//	@Produce		json
//	@Success		200	{object}	CollectionListResponse
//	@Security		BearerAuth
//	@Router			/collections [get]
func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.ListCollections(r.Context())
	if err != nil {
		writeError(w, "list collections", err)
		return
	}
	writeJSON(w, http.StatusOK, CollectionListResponse{Collections: names})
}

// CreateCollection handles PUT /api/collections/{name}.
//
//	@Summary		Create a collection (resets an existing one to empty)
//	@Tags			collections
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Success		201		{object}	CollectionResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name} [put]
func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.store.CreateCollection(r.Context(), name); err != nil {
		writeError(w, "create collection", err)
		return
	}
	writeJSON(w, http.StatusCreated, CollectionResponse{Name: name})
}

// DeleteCollection handles DELETE /api/collections/{name}.
//
//	@Summary		Delete a collection and all its records
//	@Tags			collections
//	@Param			name	path	string	true	"Collection name"
//	@Success		204		"Collection deleted"
//	@Security		BearerAuth
//	@Router			/collections/{name} [delete]
func (h *Handler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCollection(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, "delete collection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRecords handles GET /api/collections/{name}/records.
//
//	@Summary		List records in index order
//	@Tags			records
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Param			limit	query		int		false	"Page size (0 = rest of the collection)"
//	@Param			skip	query		int		false	"Number of records to skip"
//	@Success		200		{object}	RecordListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/records [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	recs, err := h.store.GetRecords(r.Context(), chi.URLParam(r, "name"), models.Page{Limit: page.Limit, Skip: page.Skip})
	if err != nil {
		writeError(w, "list records", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: recs, Limit: page.Limit, Skip: page.Skip})
}

// InsertRecord handles POST /api/collections/{name}/records.
//
//	@Summary		Insert a record
//	@Description	JSON and YAML bodies are stored as structured documents, any other
//	@Description	content type as a binary record. ?binary= overrides the flag.
//	@Tags			records
//	@Accept			json,application/yaml,application/octet-stream
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Param			binary	query		bool	false	"Store as binary record"
//	@Success		201		{object}	RecordRef
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/records [post]
func (h *Handler) InsertRecord(w http.ResponseWriter, r *http.Request) {
	payload, isBinary, err := readPayload(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	id, err := h.store.InsertRecord(r.Context(), chi.URLParam(r, "name"), payload, isBinary)
	if err != nil {
		writeError(w, "insert record", err)
		return
	}
	writeJSON(w, http.StatusCreated, RecordRef{ID: id, IsBinary: isBinary})
}

// GetRecord handles GET /api/collections/{name}/records/{id}.
//
//	@Summary		Get a single record
//	@Description	Structured records are returned as JSON, binary records as raw bytes.
//	@Tags			records
//	@Produce		json,application/octet-stream
//	@Param			name	path		string	true	"Collection name"
//	@Param			id		path		string	true	"Record id"
//	@Success		200		{object}	map[string]any
//	@Success		304		"Not modified"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/records/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetRecord(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get record", err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}

	body, contentType := rec.Blob, "application/octet-stream"
	if !rec.IsBinary {
		body, err = json.Marshal(rec.Document)
		if err != nil {
			writeError(w, "get record", err)
			return
		}
		contentType = "application/json; charset=utf-8"
	}

	tag := checksum.ETag(body)
	w.Header().Set("ETag", tag)
	w.Header().Set("X-Record-Binary", strconv.FormatBool(rec.IsBinary))
	if checksum.Matches(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// UpdateRecord handles PUT /api/collections/{name}/records/{id}.
//
//	@Summary		Replace a record, possibly switching between binary and structured
//	@Tags			records
//	@Accept			json,application/yaml,application/octet-stream
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Param			id		path		string	true	"Record id"
//	@Param			binary	query		bool	false	"Store as binary record"
//	@Success		200		{object}	RecordRef
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/records/{id} [put]
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	payload, isBinary, err := readPayload(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.UpdateRecord(r.Context(), chi.URLParam(r, "name"), id, payload, isBinary); err != nil {
		writeError(w, "update record", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordRef{ID: id, IsBinary: isBinary})
}

// DeleteRecord handles DELETE /api/collections/{name}/records/{id}.
//
//	@Summary		Delete a record
//	@Tags			records
//	@Param			name	path	string	true	"Collection name"
//	@Param			id		path	string	true	"Record id"
//	@Success		204		"Record deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/records/{id} [delete]
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRecord(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parsePage(r *http.Request) (pageParams, error) {
	var p pageParams
	q := r.URL.Query()
	for key, dst := range map[string]*int{"limit": &p.Limit, "skip": &p.Skip} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("%s: must be an integer", key)
		}
		*dst = n
	}
	return p, p.Validate()
}

// readPayload decodes the request body according to its content type and
// returns the payload with the requested binary flag. JSON and YAML bodies
// become documents; everything else is kept as raw bytes.
func readPayload(w http.ResponseWriter, r *http.Request) (any, bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRecordBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false, errors.New("failed to read body")
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var payload any
	isBinary := false
	switch mediaType {
	case "application/json":
		var doc map[string]any
		if err := codec.DecodeJSONDocument(body, &doc); err != nil {
			return nil, false, errors.New("invalid JSON document")
		}
		payload = normalizeDocument(doc)
	case "application/yaml", "application/x-yaml", "text/yaml":
		var doc map[string]any
		if err := yaml.Unmarshal(body, &doc); err != nil {
			return nil, false, errors.New("invalid YAML document")
		}
		payload = normalizeDocument(doc)
	default:
		payload = body
		isBinary = true
	}

	if raw := r.URL.Query().Get("binary"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, false, errors.New("binary: must be a boolean")
		}
		isBinary = v
	}
	return payload, isBinary, nil
}

// normalizeDocument keeps a nil document nil so the store reports it as a
// validation error.
func normalizeDocument(doc map[string]any) any {
	if doc == nil {
		return doc
	}
	return codec.Normalize(doc)
}
