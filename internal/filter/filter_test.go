package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/selection"
	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/pagination"
)

func product(id, category string, price int64) domain.Product {
	return domain.Product{
		ID:       id,
		Title:    "Product " + id,
		Category: domain.Ref{ID: category, Name: "Category " + category},
		Brand:    domain.Ref{ID: "b1", Name: "Acme"},
		Price:    price,
	}
}

func criteria(mutate func(*Criteria)) Criteria {
	c := DefaultCriteria()
	c.Page.PerPage = 100
	if mutate != nil {
		mutate(&c)
	}
	return c
}

func productIDs(products []domain.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func TestApply_EmptySelectionIsPermissive(t *testing.T) {
	products := []domain.Product{product("a", "c1", 100), product("b", "c2", 200), product("c", "c3", 300)}

	page, total, err := Apply(products, criteria(nil))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"a", "b", "c"}, productIDs(page))

	page, total, err = Apply(products, criteria(func(c *Criteria) { c.Price = PriceRange{Min: 150, Max: 300} }))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"b", "c"}, productIDs(page))
}

func TestApply_OrWithinGroup(t *testing.T) {
	products := []domain.Product{product("A", "C1", 100), product("B", "C2", 100)}

	page, _, err := Apply(products, criteria(func(c *Criteria) {
		c.Selection.Categories = []string{"C1"}
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, productIDs(page))

	page, _, err = Apply(products, criteria(func(c *Criteria) {
		c.Selection.Categories = []string{"C1", "C2"}
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, productIDs(page))
}

func TestApply_AndAcrossGroups(t *testing.T) {
	plumbing := &domain.Ref{ID: "plumbing"}
	wiring := &domain.Ref{ID: "wiring"}

	a := product("a", "hs", 100)
	a.Subcategory = plumbing
	b := product("b", "hs", 100)
	b.Element = wiring
	c := product("c", "tr", 100)
	c.Subcategory = plumbing

	products := []domain.Product{a, b, c}

	page, _, err := Apply(products, criteria(func(c *Criteria) {
		c.Selection.Categories = []string{"hs"}
		c.Selection.Subcategories = []string{"plumbing"}
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, productIDs(page))

	// Groups are independent: a subcategory does not imply its parent.
	page, _, err = Apply(products, criteria(func(c *Criteria) {
		c.Selection.Subcategories = []string{"plumbing"}
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, productIDs(page))

	// A product without an element never matches an element selection.
	page, _, err = Apply(products, criteria(func(c *Criteria) {
		c.Selection.Elements = []string{"wiring"}
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, productIDs(page))
}

func TestApply_DanglingIDsMatchNothing(t *testing.T) {
	products := []domain.Product{product("a", "c1", 100)}

	page, total, err := Apply(products, criteria(func(c *Criteria) {
		c.Selection.Categories = []string{"deleted"}
	}))
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, page)
	assert.Empty(t, page)
}

func TestApply_Search(t *testing.T) {
	a := product("a", "c1", 100)
	a.Title = "Kitchen Faucet"
	b := product("b", "c1", 100)
	b.Brand.Name = "FaucetCo"
	c := product("c", "c1", 100)
	c.Description = "fixes a leaking FAUCET"
	d := product("d", "c1", 100)
	d.Category.Name = "Garden Tools"
	e := product("e", "c1", 100)

	products := []domain.Product{a, b, c, d, e}

	page, total, err := Apply(products, criteria(func(c *Criteria) { c.Search = "faucet" }))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"a", "b", "c"}, productIDs(page))

	page, _, err = Apply(products, criteria(func(c *Criteria) { c.Search = "GARDEN" }))
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, productIDs(page))
}

func TestApply_SearchTextIsNotTrimmed(t *testing.T) {
	titled := func(id, title string) domain.Product {
		return domain.Product{ID: id, Title: title, Category: domain.Ref{ID: "c1"}, Price: 100}
	}
	products := []domain.Product{
		titled("a", "Kitchen Faucet"),
		titled("b", "Nospace"),
		titled("c", "Faucet Washer"),
	}

	tests := []struct {
		search string
		want   []string
	}{
		{search: " ", want: []string{"a", "c"}},
		{search: "faucet ", want: []string{"c"}},
		{search: " faucet", want: []string{"a"}},
		{search: "", want: []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.search), func(t *testing.T) {
			page, total, err := Apply(products, criteria(func(c *Criteria) { c.Search = tt.search }))
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), total)
			assert.Equal(t, tt.want, productIDs(page))
		})
	}
}

func TestApply_Pagination(t *testing.T) {
	products := make([]domain.Product, 25)
	for i := range products {
		products[i] = product(fmt.Sprintf("p%02d", i), "c1", 100)
	}

	tests := []struct {
		page int
		want int
	}{
		{page: 1, want: 10},
		{page: 2, want: 10},
		{page: 3, want: 5},
		{page: 4, want: 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.page), func(t *testing.T) {
			got, total, err := Apply(products, criteria(func(c *Criteria) {
				c.Page = pagination.Params{Page: tt.page, PerPage: 10}
			}))
			require.NoError(t, err)
			assert.Equal(t, 25, total)
			assert.Len(t, got, tt.want)
		})
	}

	got, _, err := Apply(products, criteria(func(c *Criteria) {
		c.Page = pagination.Params{Page: 3, PerPage: 10}
	}))
	require.NoError(t, err)
	assert.Equal(t, "p20", got[0].ID)
}

func TestApply_PageBelowOneIsClamped(t *testing.T) {
	products := []domain.Product{product("a", "c1", 1), product("b", "c1", 1)}

	got, _, err := Apply(products, criteria(func(c *Criteria) {
		c.Page = pagination.Params{Page: -3, PerPage: 1}
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, productIDs(got))
}

func TestApply_RejectsMalformedCriteria(t *testing.T) {
	products := []domain.Product{product("a", "c1", 1)}

	_, _, err := Apply(products, criteria(func(c *Criteria) { c.Page.PerPage = 0 }))
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, _, err = Apply(products, criteria(func(c *Criteria) { c.Page.PerPage = -5 }))
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, _, err = Apply(products, criteria(func(c *Criteria) { c.Price = PriceRange{Min: 10, Max: 5} }))
	require.ErrorIs(t, err, apperrors.ErrValidation)

	require.ErrorIs(t, criteria(func(c *Criteria) { c.Price = PriceRange{Min: 1, Max: 0} }).Validate(), apperrors.ErrValidation)
	require.NoError(t, criteria(nil).Validate())
}

func TestApply_Deterministic(t *testing.T) {
	products := make([]domain.Product, 40)
	for i := range products {
		products[i] = product(fmt.Sprintf("p%d", i), fmt.Sprintf("c%d", i%3), int64(i*10))
	}
	c := criteria(func(c *Criteria) {
		c.Selection.Categories = []string{"c2", "c0"}
		c.Search = "product"
		c.Price = PriceRange{Min: 50, Max: 300}
		c.Page = pagination.Params{Page: 2, PerPage: 5}
	})

	first, total1, err := Apply(products, c)
	require.NoError(t, err)
	second, total2, err := Apply(products, c)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, total1, total2)
	assert.Equal(t, string(a), string(b))
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	products := []domain.Product{product("a", "c1", 1), product("b", "c2", 1)}

	page, _, err := Apply(products, criteria(nil))
	require.NoError(t, err)
	page[0].Title = "changed"

	assert.Equal(t, "Product a", products[0].Title)
}

func TestCriteria_Values(t *testing.T) {
	c := Criteria{
		Selection: selection.Snapshot{
			Categories:    []string{"hs"},
			Subcategories: []string{"plumbing", "electrical-work"},
		},
		Search: "pipe",
		Price:  PriceRange{Min: 100, Max: math.MaxInt64},
		Page:   pagination.Params{Page: 2, PerPage: 10},
	}

	v := c.Values()
	assert.Equal(t, []string{"hs"}, v["category_id"])
	assert.Equal(t, []string{"plumbing", "electrical-work"}, v["subcategory_id"])
	assert.Empty(t, v["element_id"])
	assert.Equal(t, "pipe", v.Get("q"))
	assert.Equal(t, "100", v.Get("min_price"))
	assert.False(t, v.Has("max_price"))
	assert.Equal(t, "2", v.Get("page"))
	assert.Equal(t, "10", v.Get("per_page"))

	parsed, err := ParseCriteria(v)
	require.NoError(t, err)
	assert.Equal(t, c, parsed)
}

func TestParseCriteria_Defaults(t *testing.T) {
	c, err := ParseCriteria(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, DefaultCriteria(), c)
	assert.True(t, c.Selection.Empty())
}

func TestParseCriteria_KeepsSearchWhitespace(t *testing.T) {
	c, err := ParseCriteria(url.Values{"q": {"faucet "}})
	require.NoError(t, err)
	assert.Equal(t, "faucet ", c.Search)
}

func TestParseCriteria_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  error
	}{
		{name: "bad min price", query: "min_price=cheap", want: apperrors.ErrInvalidInput},
		{name: "bad max price", query: "max_price=1.5", want: apperrors.ErrInvalidInput},
		{name: "inverted range", query: "min_price=10&max_price=5", want: apperrors.ErrValidation},
		{name: "zero page size", query: "per_page=0", want: apperrors.ErrValidation},
		{name: "bad page", query: "page=x", want: apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			_, err = ParseCriteria(q)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
