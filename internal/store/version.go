package store

import "github.com/utafrali/EcommerceGo/taxonomy/internal/domain"

// bucketVersions counts local writes. Insert, Replace and RemoveCascade stamp
// every bucket they touch with the next sequence number; fetched results do
// not. It lives outside state so LoadHierarchy and Clear keep it.
type bucketVersions struct {
	seq     uint64
	buckets map[string]uint64
}

func (v *bucketVersions) bump(buckets ...string) {
	if v.buckets == nil {
		v.buckets = make(map[string]uint64)
	}
	v.seq++
	for _, b := range buckets {
		v.buckets[b] = v.seq
	}
}

// BucketVersion returns the version of parentID's bucket, "" for the main
// bucket. It changes whenever a local write touches the bucket.
func (s *Store) BucketVersion(parentID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ver.buckets[parentID]
}

// Version changes whenever any bucket version does.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ver.seq
}

// UpsertMainAt is UpsertMain for a result fetched when the main bucket was at
// version. It leaves the store alone and reports false if a local write has
// touched the bucket since.
func (s *Store) UpsertMainAt(nodes []domain.CategoryNode, version uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ver.buckets[rootKey] != version {
		return false, nil
	}
	return true, s.replaceBucket(rootKey, nodes)
}

// UpsertChildrenAt is UpsertChildren with the same version check as
// UpsertMainAt.
func (s *Store) UpsertChildrenAt(parentID string, nodes []domain.CategoryNode, version uint64) (bool, error) {
	if parentID == rootKey {
		return false, integrity("children bucket requires a parent id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ver.buckets[parentID] != version {
		return false, nil
	}
	return true, s.replaceBucket(parentID, nodes)
}

// LoadHierarchyAt is LoadHierarchy for a tree fetched when the store was at
// Version. Any local write since then makes it report false without loading.
func (s *Store) LoadHierarchyAt(roots []*domain.TreeNode, version uint64) (bool, error) {
	next := newState()
	if err := next.loadLevel(rootKey, roots); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ver.seq != version {
		return false, nil
	}
	s.state = next
	return true, nil
}
