// Package store holds the process-local category cache: every node fetched so
// far indexed by id, by parent, and by (type, slug).
//
// A parent that appears in the children index has had its children fetched.
// A parent that does not appear has not been asked yet, which is different
// from having no children. Every mutation validates its whole effect against a
// staged view first and commits only if nothing is wrong, so a rejected call
// leaves the store exactly as it was.
package store

import (
	"fmt"
	"slices"
	"sync"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
)

// rootKey is the children-index key for the main-category bucket.
const rootKey = ""

// Store is safe for concurrent use. A single RWMutex guards all indexes;
// mutations are short and never perform I/O.
type Store struct {
	mu sync.RWMutex
	*state
	ver bucketVersions
}

// state is the set of indexes guarded by Store.mu. LoadHierarchy builds a
// fresh state and swaps it in.
type state struct {
	byID     map[string]domain.CategoryNode
	children map[string][]string
	slugs    map[domain.CategoryType]map[string]string
}

func newState() *state {
	st := &state{
		byID:     make(map[string]domain.CategoryNode),
		children: make(map[string][]string),
		slugs:    make(map[domain.CategoryType]map[string]string, 3),
	}
	for _, t := range domain.AllTypes() {
		st.slugs[t] = make(map[string]string)
	}
	return st
}

// Stats summarises what is cached.
type Stats struct {
	Nodes      int                         `json:"nodes"`
	ByType     map[domain.CategoryType]int `json:"by_type"`
	Buckets    int                         `json:"known_buckets"`
	MainLoaded bool                        `json:"main_loaded"`
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// Clear drops everything.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState()
}

func integrity(format string, args ...any) error {
	return apperrors.Integrity(fmt.Sprintf(format, args...))
}

// Get returns the node with the given id.
func (s *Store) Get(id string) (domain.CategoryNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.byID[id]
	if !ok {
		return domain.CategoryNode{}, apperrors.NotFound("category", id)
	}
	return n.Clone(), nil
}

// Has reports whether id is cached.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// GetBySlug returns the cached node of type t with the given slug.
func (s *Store) GetBySlug(t domain.CategoryType, slug string) (domain.CategoryNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.slugs[t][slug]
	if !ok {
		return domain.CategoryNode{}, false
	}
	return s.byID[id].Clone(), true
}

// Main returns the main categories. known is false until they are fetched.
func (s *Store) Main() (nodes []domain.CategoryNode, known bool) {
	return s.ChildrenOf(rootKey)
}

// ChildrenOf returns the cached children of parentID in bucket order. known is
// false when the bucket has never been fetched. Elements are leaves and always
// report a known, empty bucket.
func (s *Store) ChildrenOf(parentID string) (nodes []domain.CategoryNode, known bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, ok := s.children[parentID]
	if !ok {
		if p, exists := s.byID[parentID]; exists && p.Type == domain.TypeElement {
			return []domain.CategoryNode{}, true
		}
		return nil, false
	}
	out := make([]domain.CategoryNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id].Clone())
	}
	return out, true
}

// ChildCount returns the number of cached children of parentID, with the same
// known semantics as ChildrenOf.
func (s *Store) ChildCount(parentID string) (count int, known bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, ok := s.children[parentID]
	if !ok {
		if p, exists := s.byID[parentID]; exists && p.Type == domain.TypeElement {
			return 0, true
		}
		return 0, false
	}
	return len(ids), true
}

// FullPath returns the names from the main category down to id.
func (s *Store) FullPath(id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NotFound("category", id)
	}

	path := []string{n.Name}
	for hops := 0; n.Type != domain.TypeMain; hops++ {
		if hops >= 2 {
			return nil, integrity("ancestor chain of %s is deeper than the taxonomy allows", id)
		}
		parent, ok := s.byID[n.Parent()]
		if !ok {
			return nil, integrity("parent %s of %s is not cached", n.Parent(), n.ID)
		}
		path = append(path, parent.Name)
		n = parent
	}
	slices.Reverse(path)
	return path, nil
}

// Stats reports cache sizes.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Nodes:   len(s.byID),
		ByType:  make(map[domain.CategoryType]int, 3),
		Buckets: len(s.children),
	}
	for _, t := range domain.AllTypes() {
		st.ByType[t] = 0
	}
	for _, n := range s.byID {
		st.ByType[n.Type]++
	}
	_, st.MainLoaded = s.children[rootKey]
	return st
}

// Snapshot returns every cached node, main categories first, each bucket in
// order. Nodes whose parent bucket is unknown come last, sorted by id.
func (s *Store) Snapshot() []domain.CategoryNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CategoryNode, 0, len(s.byID))
	seen := make(map[string]struct{}, len(s.byID))
	var walk func(parent string)
	walk = func(parent string) {
		for _, id := range s.children[parent] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, s.byID[id].Clone())
			walk(id)
		}
	}
	walk(rootKey)

	var rest []string
	for id := range s.byID {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)
	for _, id := range rest {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// Tree returns the cached hierarchy rooted at the main categories. ok is false
// until the main bucket is known. Unknown buckets appear as nil Children.
func (s *Store) Tree() (roots []*domain.TreeNode, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, known := s.children[rootKey]; !known {
		return nil, false
	}
	var build func(parent string) []*domain.TreeNode
	build = func(parent string) []*domain.TreeNode {
		ids, known := s.children[parent]
		if !known {
			return nil
		}
		out := make([]*domain.TreeNode, 0, len(ids))
		for _, id := range ids {
			out = append(out, &domain.TreeNode{CategoryNode: s.byID[id].Clone(), Children: build(id)})
		}
		return out
	}
	return build(rootKey), true
}
