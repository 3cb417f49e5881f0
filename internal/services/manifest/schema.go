package manifest

import (
	"github.com/go-playground/validator/v10"

	"github.com/ternarybob/clavis/internal/models"
)

// ManifestSchema is the curated subset of an info.json manifest the
// catalog understands. Fields are validated using go-playground/validator
// tags; anything outside this set still rides along into the record's
// extra bag, untyped.
type ManifestSchema struct {
	KeyboardName string  `json:"keyboard_name" validate:"omitempty,min=1"`
	Manufacturer string  `json:"manufacturer" validate:"omitempty,min=1"`
	Identifier   string  `json:"identifier" validate:"omitempty,min=1"`
	URL          string  `json:"url" validate:"omitempty,url"`
	Maintainer   string  `json:"maintainer" validate:"omitempty,min=1"`
	Processor    string  `json:"processor" validate:"omitempty,min=1"`
	Bootloader   string  `json:"bootloader" validate:"omitempty,min=1"`
	Width        float64 `json:"width" validate:"gte=0"`
	Height       float64 `json:"height" validate:"gte=0"`

	Layouts map[string]ManifestLayout `json:"layouts"`
}

// ManifestLayout is one named layout override. A nil Layout means the
// manifest entry had no layout list at all, which the merge reports.
type ManifestLayout struct {
	Layout []models.KeyDescriptor `json:"layout"`
}

// Validate checks the schema using go-playground/validator.
func (s *ManifestSchema) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}
