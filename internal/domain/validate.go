package domain

import "github.com/utafrali/EcommerceGo/taxonomy/pkg/validator"

func init() {
	validator.RegisterString("category_type", func(s string) bool {
		return CategoryType(s).Valid()
	})
}

// Validate checks the draft's field tags.
func (d Draft) Validate() error { return validator.Validate(d) }

// Validate checks the patch's field tags. A type, when present, must name a
// real type so that the transition check can report it.
func (p Patch) Validate() error {
	if err := validator.Validate(p); err != nil {
		return err
	}
	if p.Type != nil && !p.Type.Valid() {
		return validator.Validate(struct {
			Type string `json:"type" validate:"category_type"`
		}{string(*p.Type)})
	}
	return nil
}
