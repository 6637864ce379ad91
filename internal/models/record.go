// Package models defines the domain types for Shelf.
package models

// IndexEntry is one line of a collection index. The ordered list of entries
// is the authoritative enumeration of a collection's records.
type IndexEntry struct {
	ID       string `json:"id" yaml:"id"`
	IsBinary bool   `json:"isBinary" yaml:"isBinary"`
}

// Document is a structured record.
type Document = map[string]any

// Record is a decoded record. Exactly one of Document and Blob is set,
// selected by IsBinary.
type Record struct {
	ID       string   `json:"id"`
	IsBinary bool     `json:"isBinary"`
	Document Document `json:"document"`
	Blob     []byte   `json:"blob,omitempty"`
}

// Payload returns the record body as passed to the store on write.
func (r *Record) Payload() any {
	if r.IsBinary {
		return r.Blob
	}
	return r.Document
}

// Page selects a window of a collection's index. A zero Limit means
// "the rest of the index".
type Page struct {
	Limit int
	Skip  int
}

// Bounds clips the page to an index of length n and returns [lo, hi).
func (p Page) Bounds(n int) (int, int) {
	lo := max(p.Skip, 0)
	if lo > n {
		lo = n
	}
	hi := n
	if p.Limit > 0 && lo+p.Limit < n {
		hi = lo + p.Limit
	}
	return lo, hi
}

// Event kinds emitted by the store.
const (
	EventCollectionCreated = "collection.created"
	EventCollectionDeleted = "collection.deleted"
	EventRecordCreated     = "record.created"
	EventRecordUpdated     = "record.updated"
	EventRecordDeleted     = "record.deleted"
)

// Event describes a successful mutation.
type Event struct {
	Kind       string `json:"kind"`
	Collection string `json:"collection"`
	ID         string `json:"id,omitempty"`
}
