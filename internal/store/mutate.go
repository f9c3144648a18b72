package store

import (
	"slices"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
)

// UpsertMain replaces the main-category bucket with nodes.
func (s *Store) UpsertMain(nodes []domain.CategoryNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceBucket(rootKey, nodes)
}

// UpsertChildren replaces the bucket of parentID with nodes. The parent must be
// cached, and every node must have the child type of the parent and declare
// parentID as its parent. Children that were in the old bucket and are missing
// from the new one are removed together with their descendants.
func (s *Store) UpsertChildren(parentID string, nodes []domain.CategoryNode) error {
	if parentID == rootKey {
		return integrity("children bucket requires a parent id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceBucket(parentID, nodes)
}

// LoadHierarchy replaces the whole store with the given tree. Every main and
// subcategory in the tree gets a known bucket, empty when it has no children.
// Nested nodes without a parent id or type inherit them from their position.
func (s *Store) LoadHierarchy(roots []*domain.TreeNode) error {
	next := newState()
	if err := next.loadLevel(rootKey, roots); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = next
	return nil
}

func (st *state) loadLevel(parentID string, level []*domain.TreeNode) error {
	want, err := st.bucketType(parentID)
	if err != nil {
		return err
	}
	nodes := make([]domain.CategoryNode, 0, len(level))
	for _, t := range level {
		if t == nil {
			continue
		}
		if _, dup := st.byID[t.ID]; dup {
			return integrity("category %s appears more than once in the hierarchy", t.ID)
		}
		n := t.CategoryNode.Clone()
		if n.Type == "" {
			n.Type = want
		}
		if parentID != rootKey && n.ParentID == nil {
			p := parentID
			n.ParentID = &p
		}
		nodes = append(nodes, n)
	}
	if err := st.replaceBucket(parentID, nodes); err != nil {
		return err
	}
	for _, t := range level {
		if t == nil {
			continue
		}
		if _, hasKids := want.ChildType(); !hasKids {
			if len(t.Children) > 0 {
				return integrity("element %s has children", t.ID)
			}
			continue
		}
		if err := st.loadLevel(t.ID, t.Children); err != nil {
			return err
		}
	}
	return nil
}

// Insert adds a single new node. When the parent bucket is known the node is
// placed at its sort position; an unknown bucket stays unknown.
func (s *Store) Insert(n domain.CategoryNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := n.CheckShape(); err != nil {
		return apperrors.Integrity(err.Error())
	}
	if _, exists := s.byID[n.ID]; exists {
		return apperrors.AlreadyExists("category", "id", n.ID)
	}
	if err := s.checkParent(n); err != nil {
		return err
	}
	if err := s.checkSlugFree(n); err != nil {
		return err
	}

	s.put(n.Clone())
	s.ver.bump(n.Parent())
	if _, known := s.children[n.Parent()]; known {
		s.children[n.Parent()] = s.insertOrdered(s.children[n.Parent()], n)
	}
	return s.checkBucket(n.Parent())
}

// Replace overwrites an existing node in place. Type and parent are fixed for
// the life of a node.
func (s *Store) Replace(n domain.CategoryNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[n.ID]
	if !ok {
		return apperrors.NotFound("category", n.ID)
	}
	if old.Type != n.Type {
		return apperrors.InvalidTransition("category type cannot change")
	}
	if old.Parent() != n.Parent() {
		return apperrors.InvalidTransition("category parent cannot change")
	}
	if err := n.CheckShape(); err != nil {
		return apperrors.Integrity(err.Error())
	}
	if err := s.checkSlugFree(n); err != nil {
		return err
	}

	s.put(n.Clone())
	s.ver.bump(n.Parent())
	if ids, known := s.children[n.Parent()]; known {
		ids = slices.DeleteFunc(slices.Clone(ids), func(id string) bool { return id == n.ID })
		s.children[n.Parent()] = s.insertOrdered(ids, n)
	}
	return s.checkBucket(n.Parent())
}

// RemoveCascade removes id and every descendant, and strips each removed id
// from any bucket that lists it. It returns the removed ids, id first.
func (s *Store) RemoveCascade(id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NotFound("category", id)
	}

	removed := s.collect(id)
	gone := make(map[string]struct{}, len(removed))
	for _, r := range removed {
		gone[r] = struct{}{}
	}
	for _, r := range removed {
		s.drop(r)
	}
	s.ver.bump(append([]string{n.Parent()}, removed...)...)
	for parent, ids := range s.children {
		if slices.ContainsFunc(ids, func(c string) bool { _, g := gone[c]; return g }) {
			s.children[parent] = slices.DeleteFunc(slices.Clone(ids), func(c string) bool {
				_, g := gone[c]
				return g
			})
		}
	}
	return removed, s.checkBucket(n.Parent())
}

// Deduplicate removes repeated ids from the bucket of parentID, keeping the
// first occurrence, and returns how many entries were dropped. Pass "" for
// the main-category bucket.
func (s *Store) Deduplicate(parentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.children[parentID]
	if !ok {
		return 0
	}
	out := dedupeIDs(ids)
	if dropped := len(ids) - len(out); dropped > 0 {
		s.children[parentID] = out
		return dropped
	}
	return 0
}

// DeduplicateAll runs Deduplicate over every known bucket.
func (s *Store) DeduplicateAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for parent, ids := range s.children {
		out := dedupeIDs(ids)
		if d := len(ids) - len(out); d > 0 {
			s.children[parent] = out
			total += d
		}
	}
	return total
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// replaceBucket stages the full effect of replacing parentID's bucket, rejects
// it on any violation, and then commits.
func (st *state) replaceBucket(parentID string, nodes []domain.CategoryNode) error {
	want, err := st.bucketType(parentID)
	if err != nil {
		return err
	}

	incoming := make([]domain.CategoryNode, 0, len(nodes))
	byID := make(map[string]domain.CategoryNode, len(nodes))
	for _, n := range nodes {
		if err := n.CheckShape(); err != nil {
			return apperrors.Integrity(err.Error())
		}
		if n.Type != want {
			return integrity("%s category %s cannot be stored under %q, which holds %s categories", n.Type, n.ID, parentID, want)
		}
		if n.Parent() != parentID {
			return integrity("category %s declares parent %q but was delivered for %q", n.ID, n.Parent(), parentID)
		}
		if _, dup := byID[n.ID]; dup {
			continue
		}
		if old, ok := st.byID[n.ID]; ok && old.Type != n.Type {
			return integrity("id %s is already used by a %s category", n.ID, old.Type)
		}
		byID[n.ID] = n
		incoming = append(incoming, n.Clone())
	}
	domain.SortNodes(incoming)

	var removed []string
	for _, id := range st.children[parentID] {
		if _, keep := byID[id]; !keep {
			removed = append(removed, st.collect(id)...)
		}
	}
	gone := make(map[string]struct{}, len(removed))
	for _, r := range removed {
		gone[r] = struct{}{}
	}

	claimed := make(map[string]string, len(incoming))
	for _, n := range incoming {
		if n.Slug == "" {
			continue
		}
		if other, ok := claimed[n.Slug]; ok {
			return integrity("slug %q is used by both %s and %s", n.Slug, other, n.ID)
		}
		claimed[n.Slug] = n.ID
		owner, ok := st.slugs[n.Type][n.Slug]
		if !ok || owner == n.ID {
			continue
		}
		if _, freed := gone[owner]; freed {
			continue
		}
		if moved, in := byID[owner]; in && moved.Slug != n.Slug {
			continue
		}
		return integrity("slug %q of %s category %s is already used by %s", n.Slug, n.Type, n.ID, owner)
	}

	for _, r := range removed {
		st.drop(r)
	}
	ids := make([]string, 0, len(incoming))
	for _, n := range incoming {
		if old, ok := st.byID[n.ID]; ok && old.Parent() != parentID {
			st.strip(old.Parent(), n.ID)
		}
		st.put(n)
		ids = append(ids, n.ID)
	}
	st.children[parentID] = ids
	return st.checkBucket(parentID)
}

// bucketType returns the type every child of parentID must have.
func (st *state) bucketType(parentID string) (domain.CategoryType, error) {
	if parentID == rootKey {
		return domain.TypeMain, nil
	}
	p, ok := st.byID[parentID]
	if !ok {
		return "", apperrors.NotFound("category", parentID)
	}
	want, ok := p.Type.ChildType()
	if !ok {
		return "", integrity("%s category %s cannot have children", p.Type, parentID)
	}
	return want, nil
}

func (st *state) checkParent(n domain.CategoryNode) error {
	want, hasParent := n.Type.ParentType()
	if !hasParent {
		return nil
	}
	p, ok := st.byID[n.Parent()]
	if !ok {
		return apperrors.NotFound("category", n.Parent())
	}
	if p.Type != want {
		return integrity("%s category %s needs a %s parent, %s is %s", n.Type, n.ID, want, p.ID, p.Type)
	}
	return nil
}

func (st *state) checkSlugFree(n domain.CategoryNode) error {
	if n.Slug == "" {
		return nil
	}
	if owner, ok := st.slugs[n.Type][n.Slug]; ok && owner != n.ID {
		return apperrors.AlreadyExists(string(n.Type)+" category", "slug", n.Slug)
	}
	return nil
}

// put stores n and keeps the slug index in step.
func (st *state) put(n domain.CategoryNode) {
	if old, ok := st.byID[n.ID]; ok && old.Slug != "" && st.slugs[old.Type][old.Slug] == n.ID {
		delete(st.slugs[old.Type], old.Slug)
	}
	st.byID[n.ID] = n
	if n.Slug != "" {
		st.slugs[n.Type][n.Slug] = n.ID
	}
}

// drop removes id from every index except other parents' buckets.
func (st *state) drop(id string) {
	if n, ok := st.byID[id]; ok && n.Slug != "" && st.slugs[n.Type][n.Slug] == id {
		delete(st.slugs[n.Type], n.Slug)
	}
	delete(st.byID, id)
	delete(st.children, id)
}

func (st *state) strip(parentID, id string) {
	ids, ok := st.children[parentID]
	if !ok {
		return
	}
	st.children[parentID] = slices.DeleteFunc(slices.Clone(ids), func(c string) bool { return c == id })
}

// collect returns id and all its descendants in pre-order. Descendants are
// found through the children index and, for buckets never fetched, through
// the parent field of cached nodes.
func (st *state) collect(id string) []string {
	orphans := make(map[string][]string)
	for _, n := range st.byID {
		p := n.Parent()
		if p == rootKey {
			continue
		}
		if ids, known := st.children[p]; known && slices.Contains(ids, n.ID) {
			continue
		}
		orphans[p] = append(orphans[p], n.ID)
	}
	for p := range orphans {
		slices.Sort(orphans[p])
	}

	var out []string
	seen := make(map[string]struct{})
	var walk func(string)
	walk = func(cur string) {
		if _, dup := seen[cur]; dup {
			return
		}
		seen[cur] = struct{}{}
		out = append(out, cur)
		for _, c := range st.children[cur] {
			walk(c)
		}
		for _, c := range orphans[cur] {
			walk(c)
		}
	}
	walk(id)
	return out
}

// insertOrdered returns ids with n.ID placed before the first sibling that
// sorts after n.
func (st *state) insertOrdered(ids []string, n domain.CategoryNode) []string {
	pos := len(ids)
	for i, id := range ids {
		if domain.CompareNodes(n, st.byID[id]) < 0 {
			pos = i
			break
		}
	}
	return slices.Insert(slices.Clone(ids), pos, n.ID)
}

// checkBucket verifies that every id in the bucket is cached with the bucket
// as its parent and appears once.
func (st *state) checkBucket(parentID string) error {
	ids, ok := st.children[parentID]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return integrity("bucket %q lists %s twice", parentID, id)
		}
		seen[id] = struct{}{}
		n, ok := st.byID[id]
		if !ok {
			return integrity("bucket %q lists unknown category %s", parentID, id)
		}
		if n.Parent() != parentID {
			return integrity("bucket %q lists %s whose parent is %q", parentID, id, n.Parent())
		}
	}
	return nil
}
