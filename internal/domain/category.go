package domain

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CategoryType is the closed set of taxonomy levels. The level of a node is
// derived from its type and never stored separately.
type CategoryType string

// Category types, root first.
const (
	TypeMain    CategoryType = "main"
	TypeSub     CategoryType = "sub"
	TypeElement CategoryType = "element"
)

// ErrMalformedNode is wrapped by every shape error returned from CheckShape.
var ErrMalformedNode = errors.New("malformed category node")

// AllTypes returns the category types ordered by level.
func AllTypes() []CategoryType {
	return []CategoryType{TypeMain, TypeSub, TypeElement}
}

// ParseCategoryType accepts a type name ("main", "sub", "element") or a level
// number ("1", "2", "3").
func ParseCategoryType(s string) (CategoryType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if t := CategoryType(s); t.Valid() {
		return t, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if t, ok := TypeForLevel(n); ok {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown category type %q", s)
}

// TypeForLevel maps a level (1..3) to its type.
func TypeForLevel(level int) (CategoryType, bool) {
	switch level {
	case 1:
		return TypeMain, true
	case 2:
		return TypeSub, true
	case 3:
		return TypeElement, true
	default:
		return "", false
	}
}

// Valid reports whether t is one of the three known types.
func (t CategoryType) Valid() bool {
	switch t {
	case TypeMain, TypeSub, TypeElement:
		return true
	default:
		return false
	}
}

// Level returns 1 for main, 2 for sub, 3 for element and 0 for anything else.
func (t CategoryType) Level() int {
	switch t {
	case TypeMain:
		return 1
	case TypeSub:
		return 2
	case TypeElement:
		return 3
	default:
		return 0
	}
}

// ParentType returns the type a parent of t must have. Main has none.
func (t CategoryType) ParentType() (CategoryType, bool) {
	switch t {
	case TypeSub:
		return TypeMain, true
	case TypeElement:
		return TypeSub, true
	default:
		return "", false
	}
}

// ChildType returns the type of t's children. Elements are leaves.
func (t CategoryType) ChildType() (CategoryType, bool) {
	switch t {
	case TypeMain:
		return TypeSub, true
	case TypeSub:
		return TypeElement, true
	default:
		return "", false
	}
}

func (t CategoryType) String() string { return string(t) }

// CategoryNode is one node of the three-level taxonomy.
type CategoryNode struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Slug        string       `json:"slug"`
	Type        CategoryType `json:"type"`
	ParentID    *string      `json:"parent_id,omitempty"`
	SortOrder   int          `json:"sort_order"`
	Icon        string       `json:"icon,omitempty"`
	CreatedAt   time.Time    `json:"created_at,omitzero"`
	UpdatedAt   time.Time    `json:"updated_at,omitzero"`
}

// Level is derived from Type.
func (n CategoryNode) Level() int { return n.Type.Level() }

// Parent returns the parent id, or "" for a main category.
func (n CategoryNode) Parent() string {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

// Clone returns a copy that shares no pointers with n.
func (n CategoryNode) Clone() CategoryNode {
	if n.ParentID != nil {
		p := *n.ParentID
		n.ParentID = &p
	}
	return n
}

// CheckShape verifies the fields a node must carry on its own, without
// looking at any other node: a known type, an id, and a parent exactly when
// the type is not main.
func (n CategoryNode) CheckShape() error {
	if n.ID == "" {
		return fmt.Errorf("%w: empty id", ErrMalformedNode)
	}
	if !n.Type.Valid() {
		return fmt.Errorf("%w: node %s has unknown type %q", ErrMalformedNode, n.ID, n.Type)
	}
	if n.Type == TypeMain && n.ParentID != nil {
		return fmt.Errorf("%w: main category %s has parent %s", ErrMalformedNode, n.ID, *n.ParentID)
	}
	if n.Type != TypeMain && n.Parent() == "" {
		return fmt.Errorf("%w: %s category %s has no parent", ErrMalformedNode, n.Type, n.ID)
	}
	if n.Parent() == n.ID {
		return fmt.Errorf("%w: node %s is its own parent", ErrMalformedNode, n.ID)
	}
	return nil
}

type nodeJSON struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Slug        string       `json:"slug"`
	Type        CategoryType `json:"type"`
	Level       *int         `json:"level,omitempty"`
	ParentID    *string      `json:"parent_id,omitempty"`
	SortOrder   int          `json:"sort_order"`
	Icon        string       `json:"icon,omitempty"`
	CreatedAt   time.Time    `json:"created_at,omitzero"`
	UpdatedAt   time.Time    `json:"updated_at,omitzero"`
}

// MarshalJSON adds the derived level to the encoded node.
func (n CategoryNode) MarshalJSON() ([]byte, error) {
	level := n.Level()
	return json.Marshal(nodeJSON{
		ID:          n.ID,
		Name:        n.Name,
		Description: n.Description,
		Slug:        n.Slug,
		Type:        n.Type,
		Level:       &level,
		ParentID:    n.ParentID,
		SortOrder:   n.SortOrder,
		Icon:        n.Icon,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	})
}

// UnmarshalJSON decodes a node. A payload carrying only a level gets its type
// from the level; a payload carrying both must agree.
func (n *CategoryNode) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t := CategoryType(strings.ToLower(string(raw.Type)))
	if raw.Level != nil {
		byLevel, ok := TypeForLevel(*raw.Level)
		switch {
		case t == "" && ok:
			t = byLevel
		case t != "" && (!ok || byLevel != t):
			return fmt.Errorf("%w: node %s has type %q but level %d", ErrMalformedNode, raw.ID, raw.Type, *raw.Level)
		}
	}
	if raw.ParentID != nil && *raw.ParentID == "" {
		raw.ParentID = nil
	}
	*n = CategoryNode{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Slug:        raw.Slug,
		Type:        t,
		ParentID:    raw.ParentID,
		SortOrder:   raw.SortOrder,
		Icon:        raw.Icon,
		CreatedAt:   raw.CreatedAt,
		UpdatedAt:   raw.UpdatedAt,
	}
	return nil
}

// TreeNode is a node of the full hierarchy with its children nested inline.
type TreeNode struct {
	CategoryNode
	Children []*TreeNode `json:"children"`
}

// MarshalJSON keeps the embedded node's encoding and appends the children.
func (t TreeNode) MarshalJSON() ([]byte, error) {
	node, err := t.CategoryNode.MarshalJSON()
	if err != nil {
		return nil, err
	}
	children := t.Children
	if children == nil {
		children = []*TreeNode{}
	}
	kids, err := json.Marshal(children)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(node)+len(kids)+14)
	out = append(out, node[:len(node)-1]...)
	out = append(out, `,"children":`...)
	out = append(out, kids...)
	out = append(out, '}')
	return out, nil
}

// UnmarshalJSON decodes the node fields and the nested children.
func (t *TreeNode) UnmarshalJSON(data []byte) error {
	if err := t.CategoryNode.UnmarshalJSON(data); err != nil {
		return err
	}
	var kids struct {
		Children []*TreeNode `json:"children"`
	}
	if err := json.Unmarshal(data, &kids); err != nil {
		return err
	}
	t.Children = kids.Children
	return nil
}

// Draft holds the parameters for creating a category.
type Draft struct {
	Name        string       `json:"name" validate:"required,min=1,max=255"`
	Description string       `json:"description" validate:"max=2000"`
	Slug        string       `json:"slug" validate:"omitempty,max=255"`
	Type        CategoryType `json:"type" validate:"required,category_type"`
	ParentID    *string      `json:"parent_id" validate:"omitempty,min=1"`
	SortOrder   int          `json:"sort_order" validate:"gte=0"`
	Icon        string       `json:"icon" validate:"max=255"`
}

// Patch holds the fields an update may replace. Type and ParentID are accepted
// only so that an attempt to change them can be rejected explicitly.
type Patch struct {
	Name        *string       `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string       `json:"description" validate:"omitempty,max=2000"`
	Slug        *string       `json:"slug" validate:"omitempty,min=1,max=255"`
	SortOrder   *int          `json:"sort_order" validate:"omitempty,gte=0"`
	Icon        *string       `json:"icon" validate:"omitempty,max=255"`
	Type        *CategoryType `json:"type,omitempty" validate:"omitempty"`
	ParentID    *string       `json:"parent_id,omitempty" validate:"omitempty"`
}

// DisplayFields returns the patch without Type and ParentID.
func (p Patch) DisplayFields() Patch {
	p.Type = nil
	p.ParentID = nil
	return p
}

// Apply returns n with the patch's display fields replaced. Type and parent
// are left alone.
func (p Patch) Apply(n CategoryNode) CategoryNode {
	out := n.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Slug != nil {
		out.Slug = *p.Slug
	}
	if p.SortOrder != nil {
		out.SortOrder = *p.SortOrder
	}
	if p.Icon != nil {
		out.Icon = *p.Icon
	}
	return out
}

// Empty reports whether the patch replaces nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Slug == nil &&
		p.SortOrder == nil && p.Icon == nil && p.Type == nil && p.ParentID == nil
}

// Statistics are aggregate counts reported by the category service.
type Statistics struct {
	Total   int                  `json:"total"`
	ByType  map[CategoryType]int `json:"by_type"`
	ByLevel map[int]int          `json:"by_level"`
}

// CompareNodes orders siblings by SortOrder, then name, then id.
func CompareNodes(a, b CategoryNode) int {
	if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
		return c
	}
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// SortNodes sorts siblings in place using CompareNodes.
func SortNodes(nodes []CategoryNode) {
	slices.SortStableFunc(nodes, CompareNodes)
}

// NodeDetail is a node with the fields derived from its place in the tree.
// ChildCount is nil while the node's children have never been fetched.
type NodeDetail struct {
	Category   CategoryNode `json:"category"`
	FullPath   []string     `json:"full_path"`
	ChildCount *int         `json:"child_count,omitempty"`
}
