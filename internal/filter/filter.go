// Package filter narrows a product list by the selected categories, a search
// text and a price range, then cuts one page out of the result.
//
// Groups are ANDed together and ids within a group are ORed. An empty group
// places no constraint. The category, subcategory and element groups are
// matched independently of each other: selecting a subcategory does not
// restrict products to its parent category.
package filter

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/selection"
	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/pagination"
)

// PriceRange is an inclusive range of minor currency units.
type PriceRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// AnyPrice matches every non-negative price.
func AnyPrice() PriceRange {
	return PriceRange{Min: 0, Max: math.MaxInt64}
}

// Validate rejects a range whose minimum exceeds its maximum.
func (r PriceRange) Validate() error {
	if r.Min > r.Max {
		return apperrors.Validation(fmt.Sprintf("min price %d is greater than max price %d", r.Min, r.Max))
	}
	return nil
}

// Contains reports whether price lies within the range.
func (r PriceRange) Contains(price int64) bool {
	return price >= r.Min && price <= r.Max
}

// Criteria is everything Apply filters by.
type Criteria struct {
	Selection selection.Snapshot `json:"selection"`
	Search    string             `json:"q"`
	Price     PriceRange         `json:"price"`
	Page      pagination.Params  `json:"page"`
}

// DefaultCriteria selects nothing, searches nothing, accepts any price and
// asks for the first default-sized page.
func DefaultCriteria() Criteria {
	return Criteria{Price: AnyPrice(), Page: pagination.DefaultParams()}
}

// Validate checks the page size and price range.
func (c Criteria) Validate() error {
	if _, err := pagination.New(c.Page.Page, c.Page.PerPage); err != nil {
		return err
	}
	return c.Price.Validate()
}

// Apply returns the requested page of the products matching c, and how many
// matched in total. Product order is preserved. A page past the end is empty.
func Apply(products []domain.Product, c Criteria) ([]domain.Product, int, error) {
	page, err := pagination.New(c.Page.Page, c.Page.PerPage)
	if err != nil {
		return nil, 0, err
	}
	if err := c.Price.Validate(); err != nil {
		return nil, 0, err
	}

	m := newMatcher(c)
	kept := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if m.match(p) {
			kept = append(kept, p)
		}
	}
	return pagination.Slice(kept, page), len(kept), nil
}

type idGroup map[string]struct{}

func newIDGroup(ids []string) idGroup {
	if len(ids) == 0 {
		return nil
	}
	g := make(idGroup, len(ids))
	for _, id := range ids {
		g[id] = struct{}{}
	}
	return g
}

// allows is true for an empty group.
func (g idGroup) allows(id string) bool {
	if len(g) == 0 {
		return true
	}
	_, ok := g[id]
	return ok
}

type matcher struct {
	categories    idGroup
	subcategories idGroup
	elements      idGroup
	price         PriceRange
	fold          cases.Caser
	needle        string
}

func newMatcher(c Criteria) *matcher {
	m := &matcher{
		categories:    newIDGroup(c.Selection.Categories),
		subcategories: newIDGroup(c.Selection.Subcategories),
		elements:      newIDGroup(c.Selection.Elements),
		price:         c.Price,
		fold:          cases.Fold(),
	}
	if c.Search != "" {
		m.needle = m.fold.String(c.Search)
	}
	return m
}

func (m *matcher) match(p domain.Product) bool {
	return m.categories.allows(p.Category.ID) &&
		m.subcategories.allows(p.SubcategoryID()) &&
		m.elements.allows(p.ElementID()) &&
		m.searchMatches(p) &&
		m.price.Contains(p.Price)
}

func (m *matcher) searchMatches(p domain.Product) bool {
	if m.needle == "" {
		return true
	}
	for _, field := range []string{p.Title, p.Brand.Name, p.Category.Name, p.Description} {
		if field != "" && strings.Contains(m.fold.String(field), m.needle) {
			return true
		}
	}
	return false
}

// Query parameter names used by Values and ParseCriteria.
const (
	paramCategory    = "category_id"
	paramSubcategory = "subcategory_id"
	paramElement     = "element_id"
	paramSearch      = "q"
	paramMinPrice    = "min_price"
	paramMaxPrice    = "max_price"
)

// Values encodes c as query parameters. Defaults are left out.
func (c Criteria) Values() url.Values {
	v := c.Page.Values()
	for _, id := range c.Selection.Categories {
		v.Add(paramCategory, id)
	}
	for _, id := range c.Selection.Subcategories {
		v.Add(paramSubcategory, id)
	}
	for _, id := range c.Selection.Elements {
		v.Add(paramElement, id)
	}
	if c.Search != "" {
		v.Set(paramSearch, c.Search)
	}
	if c.Price.Min != 0 {
		v.Set(paramMinPrice, strconv.FormatInt(c.Price.Min, 10))
	}
	if c.Price.Max != math.MaxInt64 {
		v.Set(paramMaxPrice, strconv.FormatInt(c.Price.Max, 10))
	}
	return v
}

// ParseCriteria decodes criteria from query parameters. Missing values take
// the defaults of DefaultCriteria.
func ParseCriteria(q url.Values) (Criteria, error) {
	c := DefaultCriteria()

	page, err := pagination.FromValues(q)
	if err != nil {
		return Criteria{}, err
	}
	c.Page = page

	c.Selection = selection.Snapshot{
		Categories:    nonEmpty(q[paramCategory]),
		Subcategories: nonEmpty(q[paramSubcategory]),
		Elements:      nonEmpty(q[paramElement]),
	}
	c.Search = q.Get(paramSearch)

	if c.Price.Min, err = priceParam(q, paramMinPrice, c.Price.Min); err != nil {
		return Criteria{}, err
	}
	if c.Price.Max, err = priceParam(q, paramMaxPrice, c.Price.Max); err != nil {
		return Criteria{}, err
	}
	if err := c.Price.Validate(); err != nil {
		return Criteria{}, err
	}
	return c, nil
}

func priceParam(q url.Values, key string, def int64) (int64, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperrors.InvalidInput(fmt.Sprintf("%s must be an integer, got %q", key, raw))
	}
	return v, nil
}

func nonEmpty(ids []string) []string {
	var out []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
