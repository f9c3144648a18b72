package store

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
)

// Verify scans the whole cache and reports every broken invariant in a single
// IntegrityError. It never repairs anything.
func (s *Store) Verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	slugOwners := make(map[domain.CategoryType]map[string]string, 3)
	for _, t := range domain.AllTypes() {
		slugOwners[t] = make(map[string]string)
	}

	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		n := s.byID[id]
		if n.ID != id {
			report("node indexed as %s carries id %s", id, n.ID)
		}
		if err := n.CheckShape(); err != nil {
			report("%v", err)
			continue
		}

		if want, hasParent := n.Type.ParentType(); hasParent {
			p, ok := s.byID[n.Parent()]
			switch {
			case !ok:
				report("parent %s of %s is not cached", n.Parent(), id)
			case p.Type != want:
				report("%s category %s has %s parent %s", n.Type, id, p.Type, p.ID)
			}
		}

		if bucket, known := s.children[n.Parent()]; known && !slices.Contains(bucket, id) {
			report("%s is missing from the known bucket of %q", id, n.Parent())
		}

		if n.Slug != "" {
			if other, dup := slugOwners[n.Type][n.Slug]; dup {
				report("slug %q is shared by %s categories %s and %s", n.Slug, n.Type, other, id)
			} else {
				slugOwners[n.Type][n.Slug] = id
			}
			if s.slugs[n.Type][n.Slug] != id && slugOwners[n.Type][n.Slug] == id {
				report("slug index does not point %q at %s", n.Slug, id)
			}
		}

		if cyc := s.ancestorCycle(id); cyc != "" {
			report("%s", cyc)
		}
	}

	parents := make([]string, 0, len(s.children))
	for p := range s.children {
		parents = append(parents, p)
	}
	slices.Sort(parents)
	for _, p := range parents {
		if p != rootKey {
			owner, ok := s.byID[p]
			if !ok {
				report("bucket exists for uncached parent %s", p)
			} else if owner.Type == domain.TypeElement {
				report("element %s has a children bucket", p)
			}
		}
		if err := s.checkBucket(p); err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				report("%s", appErr.Message)
			} else {
				report("%v", err)
			}
		}
	}

	for t, bySlug := range s.slugs {
		for slug, id := range bySlug {
			if n, ok := s.byID[id]; !ok || n.Slug != slug || n.Type != t {
				report("slug index entry %s/%q points at %s which does not carry it", t, slug, id)
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return apperrors.Integrity(strings.Join(problems, "; "))
}

// ancestorCycle follows parent links from id and describes a cycle if it finds
// one before reaching a main category or an uncached parent.
func (st *state) ancestorCycle(id string) string {
	seen := map[string]struct{}{id: {}}
	cur := st.byID[id]
	for cur.Parent() != "" {
		next, ok := st.byID[cur.Parent()]
		if !ok {
			return ""
		}
		if _, loop := seen[next.ID]; loop {
			return fmt.Sprintf("category %s is its own ancestor", id)
		}
		seen[next.ID] = struct{}{}
		cur = next
	}
	return ""
}
