package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(store Store, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(store)
	uh := NewUploadHandler(store)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/collections", h.ListCollections)
	r.Route("/collections/{name}", func(r chi.Router) {
		r.Use(CollectionNameMiddleware)

		r.Put("/", h.CreateCollection)
		r.Delete("/", h.DeleteCollection)

		// Records CRUD.
		r.Get("/records", h.ListRecords)
		r.Post("/records", h.InsertRecord)
		r.Get("/records/{id}", h.GetRecord)
		r.Put("/records/{id}", h.UpdateRecord)
		r.Delete("/records/{id}", h.DeleteRecord)

		// Multipart uploads stored as binary records.
		r.Post("/uploads", uh.Upload)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
