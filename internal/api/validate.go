package api

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var collectionNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateCollectionName checks that name is usable as a URL segment and a
// single directory component.
func ValidateCollectionName(name string) error {
	return validation.Validate(name,
		validation.Required,
		validation.Length(1, 128),
		validation.Match(collectionNameRe).Error("must start with a letter or digit and contain only letters, digits, '.', '_' or '-'"),
	)
}

// pageParams are the pagination query parameters of a record listing.
type pageParams struct {
	Limit int
	Skip  int
}

// Validate validates the pagination parameters.
func (p pageParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Limit, validation.Min(0)),
		validation.Field(&p.Skip, validation.Min(0)),
	)
}
