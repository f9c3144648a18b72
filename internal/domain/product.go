package domain

// Ref is a reference to a category or brand carried on a product.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Product is the slice of a catalog product the filter needs. Products are
// owned by the catalog; this service only reads them.
type Product struct {
	ID          string `json:"id"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Brand       Ref    `json:"brand"`
	Category    Ref    `json:"category"`
	Subcategory *Ref   `json:"subcategory,omitempty"`
	Element     *Ref   `json:"element,omitempty"`
	// Price is in minor currency units.
	Price    int64  `json:"price" validate:"gte=0"`
	Currency string `json:"currency,omitempty"`
}

// SubcategoryID returns the subcategory id or "" when the product has none.
func (p Product) SubcategoryID() string {
	if p.Subcategory == nil {
		return ""
	}
	return p.Subcategory.ID
}

// ElementID returns the element id or "" when the product has none.
func (p Product) ElementID() string {
	if p.Element == nil {
		return ""
	}
	return p.Element.ID
}
