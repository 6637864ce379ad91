package api

import (
	"context"

	"github.com/starford/shelf/internal/models"
)

// Store is the collection store as seen by the API layer.
type Store interface {
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string) error
	DeleteCollection(ctx context.Context, name string) error
	InsertRecord(ctx context.Context, name string, payload any, isBinary bool) (string, error)
	GetRecord(ctx context.Context, name, id string) (*models.Record, error)
	GetRecords(ctx context.Context, name string, page models.Page) ([]models.Record, error)
	UpdateRecord(ctx context.Context, name, id string, payload any, isBinary bool) error
	DeleteRecord(ctx context.Context, name, id string) error
}

// CollectionListResponse wraps the collection names.
type CollectionListResponse struct {
	Collections []string `json:"collections" validate:"required"`
}

// CollectionResponse is returned after creating a collection.
type CollectionResponse struct {
	Name string `json:"name" example:"users" validate:"required"`
}

// RecordRef identifies a record after a write.
type RecordRef struct {
	ID       string `json:"id" example:"0190a6f2-7c1e-7d2a-9c3b-5e8f1a2b3c4d" validate:"required"`
	IsBinary bool   `json:"isBinary" example:"false"`
}

// Record is a record in a listing. Binary payloads are base64 encoded in
// the blob field.
type Record = models.Record

// RecordListResponse wraps a page of records.
type RecordListResponse struct {
	Records []Record `json:"records" validate:"required"`
	Limit   int      `json:"limit" example:"10"`
	Skip    int      `json:"skip" example:"0"`
}

// UploadResponse is returned after a successful multipart upload.
type UploadResponse struct {
	RecordRef
	Filename string `json:"filename" example:"image.png" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
}
