package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
)

func mainNode(id, name string, order int) domain.CategoryNode {
	return domain.CategoryNode{ID: id, Name: name, Slug: id, Type: domain.TypeMain, SortOrder: order}
}

func childNode(id, name string, t domain.CategoryType, parent string, order int) domain.CategoryNode {
	p := parent
	return domain.CategoryNode{ID: id, Name: name, Slug: id, Type: t, ParentID: &p, SortOrder: order}
}

func ids(nodes []domain.CategoryNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

// seedScenario loads Home Services > {Plumbing, Electrical Work} with an empty
// Plumbing bucket and an unfetched Electrical Work bucket.
func seedScenario(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.UpsertMain([]domain.CategoryNode{
		mainNode("home-services", "Home Services", 1),
		mainNode("transportation", "Transportation", 2),
	}))
	require.NoError(t, s.UpsertChildren("home-services", []domain.CategoryNode{
		childNode("plumbing", "Plumbing", domain.TypeSub, "home-services", 1),
		childNode("electrical-work", "Electrical Work", domain.TypeSub, "home-services", 2),
	}))
	require.NoError(t, s.UpsertChildren("plumbing", nil))
	return s
}

// seedCascade builds one main with 2 subs of 3 elements each.
func seedCascade(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.UpsertMain([]domain.CategoryNode{mainNode("m", "Main", 0), mainNode("other", "Other", 1)}))
	require.NoError(t, s.UpsertChildren("m", []domain.CategoryNode{
		childNode("s1", "S1", domain.TypeSub, "m", 0),
		childNode("s2", "S2", domain.TypeSub, "m", 1),
	}))
	for _, sub := range []string{"s1", "s2"} {
		var els []domain.CategoryNode
		for i := 0; i < 3; i++ {
			els = append(els, childNode(fmt.Sprintf("%s-e%d", sub, i), fmt.Sprintf("E%d", i), domain.TypeElement, sub, i))
		}
		require.NoError(t, s.UpsertChildren(sub, els))
	}
	return s
}

func TestChildrenOf_EmptyIsDistinctFromUnknown(t *testing.T) {
	s := seedScenario(t)

	kids, known := s.ChildrenOf("plumbing")
	assert.True(t, known)
	assert.NotNil(t, kids)
	assert.Empty(t, kids)

	kids, known = s.ChildrenOf("electrical-work")
	assert.False(t, known)
	assert.Nil(t, kids)

	_, known = s.ChildrenOf("transportation")
	assert.False(t, known)
}

func TestMain_UnknownUntilFetched(t *testing.T) {
	s := New()
	_, known := s.Main()
	assert.False(t, known)

	require.NoError(t, s.UpsertMain(nil))
	nodes, known := s.Main()
	assert.True(t, known)
	assert.Empty(t, nodes)
}

func TestChildrenOf_ElementIsKnownLeaf(t *testing.T) {
	s := seedCascade(t)
	kids, known := s.ChildrenOf("s1-e0")
	assert.True(t, known)
	assert.Empty(t, kids)

	n, known := s.ChildCount("s1-e0")
	assert.True(t, known)
	assert.Zero(t, n)
}

func TestUpsert_OrdersBySortOrder(t *testing.T) {
	s := New()
	require.NoError(t, s.UpsertMain([]domain.CategoryNode{
		mainNode("b", "B", 2),
		mainNode("a", "A", 1),
		mainNode("c", "C", 3),
	}))
	nodes, _ := s.Main()
	assert.Equal(t, []string{"a", "b", "c"}, ids(nodes))
}

func TestUpsert_DropsDuplicateIDsKeepingFirst(t *testing.T) {
	s := seedScenario(t)
	first := childNode("pipes", "Pipes", domain.TypeElement, "plumbing", 0)
	second := first
	second.Name = "Pipes again"

	require.NoError(t, s.UpsertChildren("plumbing", []domain.CategoryNode{first, second}))
	kids, _ := s.ChildrenOf("plumbing")
	require.Len(t, kids, 1)
	assert.Equal(t, "Pipes", kids[0].Name)
}

func TestUpsert_RepeatedFetchNeverDuplicates(t *testing.T) {
	s := seedScenario(t)
	subs := []domain.CategoryNode{
		childNode("plumbing", "Plumbing", domain.TypeSub, "home-services", 1),
		childNode("electrical-work", "Electrical Work", domain.TypeSub, "home-services", 2),
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.UpsertChildren("home-services", subs))
		}()
	}
	wg.Wait()

	kids, _ := s.ChildrenOf("home-services")
	assert.Equal(t, []string{"plumbing", "electrical-work"}, ids(kids))
	assert.NoError(t, s.Verify())
}

func TestUpsert_RejectsWrongTypeAndLeavesBucket(t *testing.T) {
	s := seedScenario(t)
	before, _ := s.ChildrenOf("home-services")

	err := s.UpsertChildren("home-services", []domain.CategoryNode{
		childNode("x", "X", domain.TypeElement, "home-services", 0),
	})
	require.ErrorIs(t, err, apperrors.ErrIntegrity)

	after, known := s.ChildrenOf("home-services")
	assert.True(t, known)
	assert.Equal(t, before, after)
}

func TestUpsert_RejectsMismatchedParent(t *testing.T) {
	s := seedScenario(t)
	err := s.UpsertChildren("plumbing", []domain.CategoryNode{
		childNode("e", "E", domain.TypeElement, "electrical-work", 0),
	})
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
	kids, _ := s.ChildrenOf("plumbing")
	assert.Empty(t, kids)
}

func TestUpsert_RejectsMainInMainBucketWithParent(t *testing.T) {
	s := New()
	p := "x"
	err := s.UpsertMain([]domain.CategoryNode{{ID: "m", Type: domain.TypeMain, ParentID: &p}})
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
}

func TestUpsert_RejectsIDReusedAcrossTypes(t *testing.T) {
	s := seedScenario(t)
	err := s.UpsertChildren("plumbing", []domain.CategoryNode{
		childNode("transportation", "T", domain.TypeElement, "plumbing", 0),
	})
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
}

func TestUpsert_UnknownParent(t *testing.T) {
	s := New()
	err := s.UpsertChildren("ghost", nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpsert_ElementCannotHaveChildren(t *testing.T) {
	s := seedCascade(t)
	err := s.UpsertChildren("s1-e0", nil)
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
}

func TestUpsert_ReplacementRemovesStaleChildrenWithDescendants(t *testing.T) {
	s := seedCascade(t)

	require.NoError(t, s.UpsertChildren("m", []domain.CategoryNode{
		childNode("s2", "S2", domain.TypeSub, "m", 1),
	}))

	assert.False(t, s.Has("s1"))
	assert.False(t, s.Has("s1-e0"))
	_, known := s.ChildrenOf("s1")
	assert.False(t, known)

	els, known := s.ChildrenOf("s2")
	assert.True(t, known)
	assert.Len(t, els, 3)
	assert.NoError(t, s.Verify())
}

func TestUpsert_SlugCollisionWithinType(t *testing.T) {
	s := seedScenario(t)
	clash := childNode("other", "Other", domain.TypeSub, "transportation", 0)
	clash.Slug = "plumbing"

	err := s.UpsertChildren("transportation", []domain.CategoryNode{clash})
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
	_, known := s.ChildrenOf("transportation")
	assert.False(t, known)
}

func TestUpsert_SlugMayRepeatAcrossTypes(t *testing.T) {
	s := seedScenario(t)
	el := childNode("plumbing-el", "Plumbing", domain.TypeElement, "plumbing", 0)
	el.Slug = "plumbing"
	assert.NoError(t, s.UpsertChildren("plumbing", []domain.CategoryNode{el}))
}

func TestUpsert_SlugFreedByRemovedChild(t *testing.T) {
	s := seedScenario(t)
	renamed := childNode("plumbing-v2", "Plumbing", domain.TypeSub, "home-services", 1)
	renamed.Slug = "plumbing"

	require.NoError(t, s.UpsertChildren("home-services", []domain.CategoryNode{renamed}))
	n, ok := s.GetBySlug(domain.TypeSub, "plumbing")
	require.True(t, ok)
	assert.Equal(t, "plumbing-v2", n.ID)
}

func TestUpsert_MovedChildLeavesOldBucket(t *testing.T) {
	s := seedScenario(t)
	require.NoError(t, s.UpsertChildren("transportation", nil))

	require.NoError(t, s.UpsertChildren("transportation", []domain.CategoryNode{
		childNode("plumbing", "Plumbing", domain.TypeSub, "transportation", 0),
	}))

	hs, _ := s.ChildrenOf("home-services")
	assert.Equal(t, []string{"electrical-work"}, ids(hs))
	assert.NoError(t, s.Verify())
}

func TestFailedReplacementKeepsPreviousResult(t *testing.T) {
	s := seedScenario(t)
	good := []domain.CategoryNode{childNode("pipes", "Pipes", domain.TypeElement, "plumbing", 0)}
	require.NoError(t, s.UpsertChildren("plumbing", good))

	bad := []domain.CategoryNode{{ID: "", Type: domain.TypeElement}}
	require.Error(t, s.UpsertChildren("plumbing", bad))

	kids, known := s.ChildrenOf("plumbing")
	assert.True(t, known)
	assert.Equal(t, []string{"pipes"}, ids(kids))
}

func TestRemoveCascade_MainWithTwoSubsAndSixElements(t *testing.T) {
	s := seedCascade(t)
	before := s.Stats().Nodes

	removed, err := s.RemoveCascade("m")
	require.NoError(t, err)
	assert.Len(t, removed, 9)
	assert.Equal(t, "m", removed[0])
	assert.Equal(t, before-9, s.Stats().Nodes)

	for _, id := range removed {
		assert.False(t, s.Has(id))
		_, known := s.ChildrenOf(id)
		assert.False(t, known, id)
	}
	mains, _ := s.Main()
	assert.Equal(t, []string{"other"}, ids(mains))
	assert.NoError(t, s.Verify())
}

func TestRemoveCascade_Element(t *testing.T) {
	s := seedCascade(t)
	removed, err := s.RemoveCascade("s1-e1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1-e1"}, removed)

	els, _ := s.ChildrenOf("s1")
	assert.Equal(t, []string{"s1-e0", "s1-e2"}, ids(els))
}

func TestRemoveCascade_NotFound(t *testing.T) {
	_, err := New().RemoveCascade("nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRemoveCascade_ReachesChildrenOfUnfetchedBucket(t *testing.T) {
	s := seedScenario(t)
	require.NoError(t, s.Insert(childNode("wiring", "Wiring", domain.TypeElement, "electrical-work", 0)))

	removed, err := s.RemoveCascade("home-services")
	require.NoError(t, err)
	assert.Contains(t, removed, "wiring")
	assert.NoError(t, s.Verify())
}

func TestDeduplicate(t *testing.T) {
	s := seedScenario(t)
	s.children["home-services"] = append(s.children["home-services"], "plumbing", "electrical-work", "plumbing")

	assert.Equal(t, 3, s.Deduplicate("home-services"))
	kids, _ := s.ChildrenOf("home-services")
	assert.Equal(t, []string{"plumbing", "electrical-work"}, ids(kids))

	assert.Equal(t, 0, s.Deduplicate("home-services"))
	assert.Equal(t, 0, s.Deduplicate("unknown"))
}

func TestDeduplicateAll(t *testing.T) {
	s := seedCascade(t)
	s.children[rootKey] = append(s.children[rootKey], "m")
	s.children["s1"] = append(s.children["s1"], "s1-e0", "s1-e1")
	assert.Equal(t, 3, s.DeduplicateAll())
	assert.NoError(t, s.Verify())
}

func TestInsert_PlacesBySortOrder(t *testing.T) {
	s := seedCascade(t)
	require.NoError(t, s.Insert(childNode("s1-mid", "Mid", domain.TypeElement, "s1", 1)))

	els, _ := s.ChildrenOf("s1")
	assert.Equal(t, []string{"s1-e0", "s1-e1", "s1-mid", "s1-e2"}, ids(els))
}

func TestInsert_UnknownBucketStaysUnknown(t *testing.T) {
	s := seedScenario(t)
	require.NoError(t, s.Insert(childNode("wiring", "Wiring", domain.TypeElement, "electrical-work", 0)))

	_, known := s.ChildrenOf("electrical-work")
	assert.False(t, known)
	assert.True(t, s.Has("wiring"))
}

func TestInsert_Rejections(t *testing.T) {
	s := seedScenario(t)

	err := s.Insert(childNode("plumbing", "Dup", domain.TypeSub, "home-services", 0))
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	err = s.Insert(childNode("x", "X", domain.TypeElement, "home-services", 0))
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)

	err = s.Insert(childNode("y", "Y", domain.TypeElement, "ghost", 0))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	clash := childNode("z", "Z", domain.TypeSub, "transportation", 0)
	clash.Slug = "plumbing"
	assert.ErrorIs(t, s.Insert(clash), apperrors.ErrAlreadyExists)

	assert.NoError(t, s.Verify())
}

func TestReplace(t *testing.T) {
	s := seedScenario(t)
	n, err := s.Get("plumbing")
	require.NoError(t, err)

	n.Name = "Plumbing & Heating"
	n.SortOrder = 5
	require.NoError(t, s.Replace(n))

	got, _ := s.Get("plumbing")
	assert.Equal(t, "Plumbing & Heating", got.Name)
	kids, _ := s.ChildrenOf("home-services")
	assert.Equal(t, []string{"electrical-work", "plumbing"}, ids(kids))

	n.Type = domain.TypeElement
	assert.ErrorIs(t, s.Replace(n), apperrors.ErrInvalidTransition)

	n, _ = s.Get("plumbing")
	other := "transportation"
	n.ParentID = &other
	assert.ErrorIs(t, s.Replace(n), apperrors.ErrInvalidTransition)

	assert.ErrorIs(t, s.Replace(mainNode("ghost", "G", 0)), apperrors.ErrNotFound)
}

func TestReplace_SlugChangeUpdatesIndex(t *testing.T) {
	s := seedScenario(t)
	n, _ := s.Get("plumbing")
	n.Slug = "pipes-and-drains"
	require.NoError(t, s.Replace(n))

	_, ok := s.GetBySlug(domain.TypeSub, "plumbing")
	assert.False(t, ok)
	got, ok := s.GetBySlug(domain.TypeSub, "pipes-and-drains")
	require.True(t, ok)
	assert.Equal(t, "plumbing", got.ID)
}

func TestFullPath(t *testing.T) {
	s := seedCascade(t)
	path, err := s.FullPath("s2-e1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Main", "S2", "E1"}, path)

	path, err = s.FullPath("m")
	require.NoError(t, err)
	assert.Equal(t, []string{"Main"}, path)

	_, err = s.FullPath("nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFullPath_BrokenChainIsIntegrityError(t *testing.T) {
	s := seedCascade(t)
	delete(s.byID, "s1")
	_, err := s.FullPath("s1-e0")
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
}

func TestChildCount(t *testing.T) {
	s := seedCascade(t)
	n, known := s.ChildCount("m")
	assert.True(t, known)
	assert.Equal(t, 2, n)

	_, known = s.ChildCount("other")
	assert.False(t, known)
}

func TestLoadHierarchy_MatchesIncrementalFetches(t *testing.T) {
	incremental := seedCascade(t)
	require.NoError(t, incremental.UpsertChildren("other", nil))

	tree, ok := incremental.Tree()
	require.True(t, ok)

	loaded := New()
	require.NoError(t, loaded.LoadHierarchy(tree))

	assert.Equal(t, incremental.Snapshot(), loaded.Snapshot())
	assert.Equal(t, incremental.Stats(), loaded.Stats())
	for _, id := range []string{rootKey, "m", "other", "s1", "s2"} {
		a, ka := incremental.ChildrenOf(id)
		b, kb := loaded.ChildrenOf(id)
		assert.Equal(t, ka, kb, id)
		assert.Equal(t, a, b, id)
	}
	assert.NoError(t, loaded.Verify())
}

func TestLoadHierarchy_InheritsParentAndType(t *testing.T) {
	s := New()
	err := s.LoadHierarchy([]*domain.TreeNode{{
		CategoryNode: domain.CategoryNode{ID: "m", Name: "Main", Type: domain.TypeMain},
		Children: []*domain.TreeNode{{
			CategoryNode: domain.CategoryNode{ID: "s", Name: "Sub"},
			Children: []*domain.TreeNode{{
				CategoryNode: domain.CategoryNode{ID: "e", Name: "El"},
			}},
		}},
	}})
	require.NoError(t, err)

	e, err := s.Get("e")
	require.NoError(t, err)
	assert.Equal(t, domain.TypeElement, e.Type)
	assert.Equal(t, "s", e.Parent())
}

func TestLoadHierarchy_FailureKeepsOldState(t *testing.T) {
	s := seedScenario(t)
	err := s.LoadHierarchy([]*domain.TreeNode{
		{CategoryNode: domain.CategoryNode{ID: "a", Type: domain.TypeMain}},
		{CategoryNode: domain.CategoryNode{ID: "a", Type: domain.TypeMain}},
		{CategoryNode: domain.CategoryNode{ID: "b", Type: domain.TypeSub}},
	})
	require.ErrorIs(t, err, apperrors.ErrIntegrity)
	assert.True(t, s.Has("plumbing"))
}

func TestLoadHierarchy_DuplicateIDAcrossParents(t *testing.T) {
	sub := func() *domain.TreeNode {
		return &domain.TreeNode{CategoryNode: domain.CategoryNode{ID: "dup", Type: domain.TypeSub}}
	}
	err := New().LoadHierarchy([]*domain.TreeNode{
		{CategoryNode: domain.CategoryNode{ID: "a", Type: domain.TypeMain}, Children: []*domain.TreeNode{sub()}},
		{CategoryNode: domain.CategoryNode{ID: "b", Type: domain.TypeMain}, Children: []*domain.TreeNode{sub()}},
	})
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
}

func TestVerify_ReportsCorruption(t *testing.T) {
	s := seedCascade(t)
	require.NoError(t, s.Verify())

	s.children["s1"] = append(s.children["s1"], "ghost")
	n := s.byID["s2-e0"]
	wrong := "m"
	n.ParentID = &wrong
	s.byID["s2-e0"] = n

	err := s.Verify()
	require.ErrorIs(t, err, apperrors.ErrIntegrity)
	assert.Contains(t, err.Error(), "ghost")
	assert.Contains(t, err.Error(), "s2-e0")
}

func TestClear(t *testing.T) {
	s := seedCascade(t)
	s.Clear()
	assert.Zero(t, s.Stats().Nodes)
	_, known := s.Main()
	assert.False(t, known)
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := seedScenario(t)
	n, _ := s.Get("plumbing")
	*n.ParentID = "tampered"
	again, _ := s.Get("plumbing")
	assert.Equal(t, "home-services", again.Parent())
}
