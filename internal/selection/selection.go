// Package selection tracks which categories, subcategories and elements a
// client has checked as product filters.
package selection

import (
	"fmt"
	"slices"
	"sync"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
)

// Snapshot is a point-in-time copy of a selection. Ids keep the order in
// which they were selected.
type Snapshot struct {
	Categories    []string `json:"category_ids"`
	Subcategories []string `json:"subcategory_ids"`
	Elements      []string `json:"element_ids"`
}

// IDs returns the ids selected for t.
func (s Snapshot) IDs(t domain.CategoryType) []string {
	switch t {
	case domain.TypeMain:
		return s.Categories
	case domain.TypeSub:
		return s.Subcategories
	case domain.TypeElement:
		return s.Elements
	default:
		return nil
	}
}

// Empty reports whether nothing is selected on any level.
func (s Snapshot) Empty() bool {
	return len(s.Categories) == 0 && len(s.Subcategories) == 0 && len(s.Elements) == 0
}

// idSet is an insertion-ordered set of ids.
type idSet struct {
	order []string
	index map[string]struct{}
}

func newIDSet() *idSet {
	return &idSet{index: make(map[string]struct{})}
}

func (s *idSet) has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *idSet) add(id string) {
	if s.has(id) {
		return
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s *idSet) remove(id string) bool {
	if !s.has(id) {
		return false
	}
	delete(s.index, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return true
}

func (s *idSet) reset() {
	s.order = nil
	clear(s.index)
}

func (s *idSet) list() []string {
	return slices.Clone(s.order)
}

// Selection holds one id set per category type. It never consults the
// category store, so ids may outlive the categories they name until Purge is
// called. Safe for concurrent use.
type Selection struct {
	mu   sync.RWMutex
	sets map[domain.CategoryType]*idSet
}

// New returns an empty selection.
func New() *Selection {
	sets := make(map[domain.CategoryType]*idSet, 3)
	for _, t := range domain.AllTypes() {
		sets[t] = newIDSet()
	}
	return &Selection{sets: sets}
}

func (s *Selection) set(t domain.CategoryType) (*idSet, error) {
	set, ok := s.sets[t]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown category type %q", t))
	}
	return set, nil
}

// Toggle adds id to the selection for t, or removes it when already present.
// It reports whether id is selected afterwards.
func (s *Selection) Toggle(t domain.CategoryType, id string) (bool, error) {
	if id == "" {
		return false, apperrors.InvalidInput("id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.set(t)
	if err != nil {
		return false, err
	}
	if set.remove(id) {
		return false, nil
	}
	set.add(id)
	return true, nil
}

// SetAll replaces the selection for t with ids. Duplicates and blanks are
// dropped; the first occurrence wins.
func (s *Selection) SetAll(t domain.CategoryType, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.set(t)
	if err != nil {
		return err
	}
	set.reset()
	for _, id := range ids {
		if id != "" {
			set.add(id)
		}
	}
	return nil
}

// Clear empties the selection for t.
func (s *Selection) Clear(t domain.CategoryType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.set(t)
	if err != nil {
		return err
	}
	set.reset()
	return nil
}

// ClearAll empties every level.
func (s *Selection) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range s.sets {
		set.reset()
	}
}

// Purge removes ids from every level and returns how many were selected.
// Used after a cascade delete so that removed categories stop filtering.
func (s *Selection) Purge(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range ids {
		for _, set := range s.sets {
			if set.remove(id) {
				removed++
			}
		}
	}
	return removed
}

// Has reports whether id is selected for t.
func (s *Selection) Has(t domain.CategoryType, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[t]
	return ok && set.has(id)
}

// Snapshot copies the current selection.
func (s *Selection) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Categories:    s.sets[domain.TypeMain].list(),
		Subcategories: s.sets[domain.TypeSub].list(),
		Elements:      s.sets[domain.TypeElement].list(),
	}
}
