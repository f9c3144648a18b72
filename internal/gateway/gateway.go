// Package gateway fetches categories from the category service and keeps the
// local store in step with what was fetched. At most one fetch per key is in
// flight; later callers for the same key wait for and share its result.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/lookup"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/source"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/store"
	apperrors "github.com/utafrali/EcommerceGo/taxonomy/pkg/errors"
)

const (
	keyMain       = "main"
	keyHierarchy  = "hierarchy"
	keyStatistics = "statistics"
)

// Config tunes the gateway.
type Config struct {
	// FetchTimeout bounds one upstream call. Zero means no bound beyond the
	// source's own.
	FetchTimeout time.Duration
}

// DefaultConfig returns a 10s fetch timeout.
func DefaultConfig() Config {
	return Config{FetchTimeout: 10 * time.Second}
}

// Gateway is the only writer of fetched data into the store.
type Gateway struct {
	src     source.Reader
	store   *store.Store
	lookups lookup.Cache
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer

	flights singleflight.Group

	// mu guards interest and is held while a finished fetch commits, so a
	// caller cannot leave between the decision to commit and the commit.
	mu       sync.Mutex
	interest map[string]int
}

// New creates a gateway writing into st and caching flat lookups in lookups.
func New(src source.Reader, st *store.Store, lookups lookup.Cache, cfg Config, logger *slog.Logger) *Gateway {
	return &Gateway{
		src:      src,
		store:    st,
		lookups:  lookups,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("taxonomy/gateway"),
		interest: make(map[string]int),
	}
}

// MainCategories returns the cached main categories, fetching them first if
// they have never been fetched.
func (g *Gateway) MainCategories(ctx context.Context) ([]domain.CategoryNode, error) {
	if nodes, known := g.store.Main(); known {
		return nodes, nil
	}
	return g.FetchMainCategories(ctx)
}

// Node returns the cached node id. Main categories are loaded first if they
// never were; deeper nodes are known only once their bucket was fetched.
func (g *Gateway) Node(ctx context.Context, id string) (domain.CategoryNode, error) {
	n, err := g.store.Get(id)
	if errors.Is(err, apperrors.ErrNotFound) {
		if _, known := g.store.Main(); !known {
			if _, err := g.FetchMainCategories(ctx); err != nil {
				return domain.CategoryNode{}, err
			}
			return g.store.Get(id)
		}
	}
	return n, err
}

// Detail returns the cached node id with its root-first path and, when its
// children are known, their count.
func (g *Gateway) Detail(ctx context.Context, id string) (domain.NodeDetail, error) {
	n, err := g.Node(ctx, id)
	if err != nil {
		return domain.NodeDetail{}, err
	}
	path, err := g.store.FullPath(id)
	if err != nil {
		return domain.NodeDetail{}, err
	}
	d := domain.NodeDetail{Category: n, FullPath: path}
	if count, known := g.store.ChildCount(id); known {
		d.ChildCount = &count
	}
	return d, nil
}

// FetchMainCategories fetches the main categories and replaces the main bucket.
func (g *Gateway) FetchMainCategories(ctx context.Context) ([]domain.CategoryNode, error) {
	r, err := do(g, ctx, "main", keyMain,
		func(ctx context.Context) (versioned[[]domain.CategoryNode], error) {
			version := g.store.BucketVersion("")
			nodes, err := g.src.MainCategories(ctx)
			return versioned[[]domain.CategoryNode]{value: normalize(nodes, domain.TypeMain, ""), version: version}, err
		},
		func(ctx context.Context, r versioned[[]domain.CategoryNode]) error {
			applied, err := g.store.UpsertMainAt(r.value, r.version)
			g.noteStale(ctx, "main", "", applied, err)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	nodes, known := g.store.Main()
	if !known {
		return cloneAll(r.value), nil
	}
	return nodes, nil
}

// Children returns the cached children of parentID, fetching subcategories or
// elements depending on the parent's type when the bucket is unknown. An
// unknown parent triggers a main-category fetch if those were never loaded.
func (g *Gateway) Children(ctx context.Context, parentID string) ([]domain.CategoryNode, error) {
	if nodes, known := g.store.ChildrenOf(parentID); known {
		return nodes, nil
	}

	parent, err := g.store.Get(parentID)
	if errors.Is(err, apperrors.ErrNotFound) {
		if _, known := g.store.Main(); !known {
			if _, err := g.FetchMainCategories(ctx); err != nil {
				return nil, err
			}
			parent, err = g.store.Get(parentID)
		}
	}
	if err != nil {
		return nil, err
	}

	switch parent.Type {
	case domain.TypeMain:
		return g.FetchSubcategories(ctx, parentID)
	case domain.TypeSub:
		return g.FetchElements(ctx, parentID)
	default:
		return []domain.CategoryNode{}, nil
	}
}

// FetchSubcategories fetches the subcategories of a main category and
// replaces its bucket. The parent must be a cached main category; main
// categories are loaded first if they never were.
func (g *Gateway) FetchSubcategories(ctx context.Context, parentID string) ([]domain.CategoryNode, error) {
	if err := g.requireParent(ctx, parentID, domain.TypeMain); err != nil {
		return nil, err
	}
	return g.fetchBucket(ctx, "subcategories", parentID, domain.TypeSub, g.src.Subcategories)
}

// FetchElements fetches the elements of a cached subcategory and replaces its
// bucket.
func (g *Gateway) FetchElements(ctx context.Context, subcategoryID string) ([]domain.CategoryNode, error) {
	if err := g.requireParent(ctx, subcategoryID, domain.TypeSub); err != nil {
		return nil, err
	}
	return g.fetchBucket(ctx, "elements", subcategoryID, domain.TypeElement, g.src.Elements)
}

func (g *Gateway) fetchBucket(
	ctx context.Context,
	op, parentID string,
	childType domain.CategoryType,
	fetch func(context.Context, string) ([]domain.CategoryNode, error),
) ([]domain.CategoryNode, error) {
	r, err := do(g, ctx, op, op+":"+parentID,
		func(ctx context.Context) (versioned[[]domain.CategoryNode], error) {
			version := g.store.BucketVersion(parentID)
			nodes, err := fetch(ctx, parentID)
			return versioned[[]domain.CategoryNode]{value: normalize(nodes, childType, parentID), version: version}, err
		},
		func(ctx context.Context, r versioned[[]domain.CategoryNode]) error {
			applied, err := g.store.UpsertChildrenAt(parentID, r.value, r.version)
			g.noteStale(ctx, op, parentID, applied, err)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	// A skipped result can leave the bucket unknown; hand back what was fetched.
	nodes, known := g.store.ChildrenOf(parentID)
	if !known {
		return cloneAll(r.value), nil
	}
	return nodes, nil
}

// versioned carries a fetched value together with the store version it was
// fetched against. The version travels with the value because the commit may
// run in a caller that joined the flight late.
type versioned[T any] struct {
	value   T
	version uint64
}

// noteStale records a fetched result that was not committed because a local
// write reached the store while the fetch was in flight. The store keeps the
// local write.
func (g *Gateway) noteStale(ctx context.Context, op, parentID string, applied bool, err error) {
	if applied || err != nil {
		return
	}
	staleResults.WithLabelValues(op).Inc()
	g.logger.DebugContext(ctx, "fetched result superseded by a local write",
		slog.String("op", op),
		slog.String("parent_id", parentID),
	)
}

func (g *Gateway) requireParent(ctx context.Context, id string, want domain.CategoryType) error {
	n, err := g.store.Get(id)
	if errors.Is(err, apperrors.ErrNotFound) && want == domain.TypeMain {
		if _, known := g.store.Main(); !known {
			if _, err := g.FetchMainCategories(ctx); err != nil {
				return err
			}
			n, err = g.store.Get(id)
		}
	}
	if err != nil {
		return err
	}
	if n.Type != want {
		return apperrors.NotFound(want.String()+" category", id)
	}
	return nil
}

// FetchHierarchy fetches the whole tree and replaces the store with it. The
// returned tree is read back from the store, so it is shaped exactly like the
// incremental fetches would have left it.
func (g *Gateway) FetchHierarchy(ctx context.Context) ([]*domain.TreeNode, error) {
	r, err := do(g, ctx, "hierarchy", keyHierarchy,
		func(ctx context.Context) (versioned[[]*domain.TreeNode], error) {
			version := g.store.Version()
			roots, err := g.src.Hierarchy(ctx)
			return versioned[[]*domain.TreeNode]{value: roots, version: version}, err
		},
		func(ctx context.Context, r versioned[[]*domain.TreeNode]) error {
			applied, err := g.store.LoadHierarchyAt(r.value, r.version)
			g.noteStale(ctx, "hierarchy", "", applied, err)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	roots, ok := g.store.Tree()
	if !ok {
		return r.value, nil
	}
	return roots, nil
}

// Search asks the category service for nodes matching query. Results are
// cached by normalized query and never enter the tree. A blank query matches
// nothing.
func (g *Gateway) Search(ctx context.Context, query string) ([]domain.CategoryNode, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []domain.CategoryNode{}, nil
	}
	return g.lookup(ctx, "search", lookup.SearchKey(q), func(ctx context.Context) ([]domain.CategoryNode, error) {
		return g.src.Search(ctx, q)
	})
}

// ByType returns every category of type t.
func (g *Gateway) ByType(ctx context.Context, t domain.CategoryType) ([]domain.CategoryNode, error) {
	if !t.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown category type %q", t))
	}
	return g.lookup(ctx, "type", lookup.TypeKey(t), func(ctx context.Context) ([]domain.CategoryNode, error) {
		return g.src.ByType(ctx, t)
	})
}

// ByLevel returns every category on level 1, 2 or 3.
func (g *Gateway) ByLevel(ctx context.Context, level int) ([]domain.CategoryNode, error) {
	if _, ok := domain.TypeForLevel(level); !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("level must be between 1 and 3, got %d", level))
	}
	return g.lookup(ctx, "level", lookup.LevelKey(level), func(ctx context.Context) ([]domain.CategoryNode, error) {
		return g.src.ByLevel(ctx, level)
	})
}

// BySlug returns the category carrying slug.
func (g *Gateway) BySlug(ctx context.Context, slug string) (domain.CategoryNode, error) {
	if slug == "" {
		return domain.CategoryNode{}, apperrors.InvalidInput("slug is required")
	}
	nodes, err := g.lookup(ctx, "slug", lookup.SlugKey(slug), func(ctx context.Context) ([]domain.CategoryNode, error) {
		n, err := g.src.BySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		return []domain.CategoryNode{n}, nil
	})
	if err != nil {
		return domain.CategoryNode{}, err
	}
	if len(nodes) == 0 {
		return domain.CategoryNode{}, apperrors.NotFound("category slug", slug)
	}
	return nodes[0], nil
}

func (g *Gateway) lookup(
	ctx context.Context,
	op, key string,
	fetch func(context.Context) ([]domain.CategoryNode, error),
) ([]domain.CategoryNode, error) {
	cached, ok, err := g.lookups.Get(ctx, key)
	switch {
	case err != nil:
		g.logger.WarnContext(ctx, "lookup cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	case ok:
		lookupCache.WithLabelValues(op, "hit").Inc()
		return cached, nil
	}
	lookupCache.WithLabelValues(op, "miss").Inc()

	nodes, err := do(g, ctx, op, key,
		func(ctx context.Context) ([]domain.CategoryNode, error) {
			nodes, err := fetch(ctx)
			if nodes == nil && err == nil {
				nodes = []domain.CategoryNode{}
			}
			return nodes, err
		},
		func(ctx context.Context, nodes []domain.CategoryNode) error {
			if err := g.lookups.Set(ctx, key, nodes); err != nil {
				g.logger.WarnContext(ctx, "lookup cache write failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return cloneAll(nodes), nil
}

// Statistics passes the category service's aggregate counts through. They
// are neither cached nor checked against the store.
func (g *Gateway) Statistics(ctx context.Context) (domain.Statistics, error) {
	stats, err := do(g, ctx, "statistics", keyStatistics, g.src.Statistics, nil)
	if err != nil {
		return domain.Statistics{}, err
	}
	stats.ByType = maps.Clone(stats.ByType)
	stats.ByLevel = maps.Clone(stats.ByLevel)
	return stats, nil
}

// Warm fetches the main categories and then the subcategories of each of
// them, concurrency at a time.
func (g *Gateway) Warm(ctx context.Context, concurrency int) error {
	start := time.Now()
	mains, err := g.FetchMainCategories(ctx)
	if err != nil {
		return fmt.Errorf("warm main categories: %w", err)
	}

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(max(concurrency, 1))
	for _, m := range mains {
		eg.Go(func() error {
			if _, err := g.FetchSubcategories(ectx, m.ID); err != nil {
				return fmt.Errorf("warm subcategories of %s: %w", m.ID, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	stats := g.store.Stats()
	g.logger.InfoContext(ctx, "category cache warmed",
		slog.Int("main", len(mains)),
		slog.Int("nodes", stats.Nodes),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

type flightResult[T any] struct {
	value     T
	committed bool
}

// do runs fetch once per key no matter how many callers ask concurrently.
// The fetch is detached from the caller's cancellation and bounded by
// FetchTimeout. When it succeeds, commit runs only if some caller is still
// waiting. A caller whose context ends first gets ctx.Err() and no longer
// counts as waiting. A caller that joins a flight whose result was not
// committed commits it itself.
func do[T any](
	g *Gateway,
	ctx context.Context,
	op, key string,
	fetch func(context.Context) (T, error),
	commit func(context.Context, T) error,
) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	g.join(key)
	ch := g.flights.DoChan(key, func() (any, error) {
		return run(g, ctx, op, key, fetch, commit)
	})

	select {
	case res := <-ch:
		g.leave(key)
		if res.Shared {
			sharedWaits.WithLabelValues(op).Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		r := res.Val.(flightResult[T])
		if !r.committed && commit != nil {
			if err := commit(ctx, r.value); err != nil {
				return zero, err
			}
		}
		return r.value, nil
	case <-ctx.Done():
		g.leave(key)
		return zero, ctx.Err()
	}
}

func run[T any](
	g *Gateway,
	ctx context.Context,
	op, key string,
	fetch func(context.Context) (T, error),
	commit func(context.Context, T) error,
) (any, error) {
	fctx := context.WithoutCancel(ctx)
	if g.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(fctx, g.cfg.FetchTimeout)
		defer cancel()
	}
	fctx, span := g.tracer.Start(fctx, "gateway."+op, trace.WithAttributes(
		attribute.String("taxonomy.fetch_key", key),
	))
	defer span.End()

	start := time.Now()
	value, err := fetch(fctx)
	fetchDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		err = classify(err)
		fetchesTotal.WithLabelValues(op, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.WarnContext(fctx, "category fetch failed",
			slog.String("op", op),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	fetchesTotal.WithLabelValues(op, "ok").Inc()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.interest[key] == 0 {
		discardedResults.WithLabelValues(op).Inc()
		span.SetAttributes(attribute.Bool("taxonomy.discarded", true))
		return flightResult[T]{value: value}, nil
	}
	if commit != nil {
		if err := commit(fctx, value); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			g.logger.ErrorContext(fctx, "fetched categories rejected by store",
				slog.String("op", op),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
	}
	return flightResult[T]{value: value, committed: true}, nil
}

func (g *Gateway) join(key string) {
	g.mu.Lock()
	g.interest[key]++
	g.mu.Unlock()
}

func (g *Gateway) leave(key string) {
	g.mu.Lock()
	if g.interest[key]--; g.interest[key] <= 0 {
		delete(g.interest, key)
	}
	g.mu.Unlock()
}

// classify turns source failures that carry no taxonomy kind into one.
func classify(err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr), errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Network(err)
	default:
		return apperrors.Server(http.StatusInternalServerError, err.Error())
	}
}

// normalize fills in the type and parent a bucket implies when the service
// left them out. Values that are present are kept for the store to check.
func normalize(nodes []domain.CategoryNode, t domain.CategoryType, parentID string) []domain.CategoryNode {
	out := make([]domain.CategoryNode, len(nodes))
	for i, n := range nodes {
		n = n.Clone()
		if n.Type == "" {
			n.Type = t
		}
		if n.ParentID == nil && parentID != "" {
			p := parentID
			n.ParentID = &p
		}
		out[i] = n
	}
	return out
}

func cloneAll(nodes []domain.CategoryNode) []domain.CategoryNode {
	out := make([]domain.CategoryNode, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}
