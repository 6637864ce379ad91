package collection

import (
	"log/slog"

	"github.com/starford/shelf/internal/models"
)

// Option is a functional option for configuring a Store.
type Option func(*Store)

// WithLogger sets the logger used for warnings such as skipped records.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator replaces the record id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithEventHandler registers fn to be called after every successful
// mutation. fn runs while the collection lock is held and must not block.
func WithEventHandler(fn func(models.Event)) Option {
	return func(s *Store) {
		s.onEvent = fn
	}
}

// WithReadConcurrency bounds the number of record files GetRecords reads in
// parallel.
func WithReadConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.readConcurrency = n
		}
	}
}
