// Package queryclient implements the Multi-Collection Query Client: fans
// queries, gets, and counts out across the collections a Query Config
// maps requested models to, merging results back into one answer.
package queryclient

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/antflydb/vecindex/queryconfig"
	"github.com/antflydb/vecindex/vectorstore"
)

// Client fans operations out across collections routed to by a
// queryconfig.Config and merges the results.
//
// Lifecycle: Connect resolves and caches a Handle per collection; Close is
// idempotent and safe to call via defer on every exit path.
type Client struct {
	store  vectorstore.Client
	cfg    *queryconfig.Config
	logger *zap.Logger

	mu      sync.Mutex
	handles map[string]vectorstore.Handle
	closed  bool
}

// New constructs a Client over store, routed by cfg.
func New(store vectorstore.Client, cfg *queryconfig.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{store: store, cfg: cfg, logger: logger, handles: map[string]vectorstore.Handle{}}
}

// Connect resolves handles for every collection cfg names, so later
// operations never pay lookup cost per call.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for collection := range c.cfg.CollectionToModels {
		if _, ok := c.handles[collection]; ok {
			continue
		}
		h, err := c.store.GetOrCreateCollection(ctx, collection)
		if err != nil {
			return fmt.Errorf("connecting to collection %q: %w", collection, err)
		}
		c.handles[collection] = h
	}
	return nil
}

// Close marks the client closed. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// routeModels resolves the requested model list to its union of target
// collections. A nil/empty models list means every
// collection known to the query config.
func (c *Client) routeModels(models []string) []string {
	if len(models) == 0 {
		names := make([]string, 0, len(c.cfg.CollectionToModels))
		for name := range c.cfg.CollectionToModels {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}

	set := map[string]bool{}
	var out []string
	for _, m := range models {
		routing, ok := c.cfg.ModelToCollections[m]
		if !ok {
			c.logger.Warn("query client: unknown model requested", zap.String("model", m))
			continue
		}
		for _, coll := range routing.Collections {
			if !set[coll] {
				set[coll] = true
				out = append(out, coll)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (c *Client) handleFor(collection string) (vectorstore.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[collection]
	return h, ok
}

// Query fans out n_results-bounded text queries across the routed
// collections and merges per-text results by ascending distance. The call
// succeeds as long as at least one sub-request succeeds.
func (c *Client) Query(ctx context.Context, texts []string, nResults int, models []string, where vectorstore.Filter) (*vectorstore.QueryResult, error) {
	collections := c.routeModels(models)
	if len(collections) == 0 {
		return &vectorstore.QueryResult{}, nil
	}

	type partial struct {
		result *vectorstore.QueryResult
		err    error
	}
	partials := make([]partial, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, coll := range collections {
		i, coll := i, coll
		g.Go(func() error {
			h, ok := c.handleFor(coll)
			if !ok {
				h = vectorstore.Handle{Name: coll}
			}
			result, err := c.store.Query(gctx, h, texts, nResults, where)
			if err != nil {
				c.logger.Warn("query client: sub-query failed", zap.String("collection", coll), zap.Error(err))
				partials[i] = partial{err: err}
				return nil // partial failure tolerated; do not cancel siblings
			}
			partials[i] = partial{result: result}
			return nil
		})
	}
	_ = g.Wait()

	anySucceeded := false
	for _, p := range partials {
		if p.err == nil && p.result != nil {
			anySucceeded = true
		}
	}
	if !anySucceeded {
		return nil, fmt.Errorf("query: all %d routed collections failed", len(collections))
	}

	merged := &vectorstore.QueryResult{}
	for textIdx := range texts {
		var candidates []mergeCandidate
		for _, p := range partials {
			if p.err != nil || p.result == nil {
				continue
			}
			if textIdx >= len(p.result.IDs) {
				continue
			}
			ids := p.result.IDs[textIdx]
			for j, id := range ids {
				cand := mergeCandidate{id: id}
				if textIdx < len(p.result.Distances) && j < len(p.result.Distances[textIdx]) {
					cand.distance = p.result.Distances[textIdx][j]
				}
				if textIdx < len(p.result.Documents) && j < len(p.result.Documents[textIdx]) {
					cand.document = p.result.Documents[textIdx][j]
				}
				if textIdx < len(p.result.Metadatas) && j < len(p.result.Metadatas[textIdx]) {
					cand.metadata = p.result.Metadatas[textIdx][j]
				}
				candidates = append(candidates, cand)
			}
		}
		sort.Slice(candidates, func(a, b int) bool { return candidates[a].distance < candidates[b].distance })
		if nResults > 0 && len(candidates) > nResults {
			candidates = candidates[:nResults]
		}

		var ids []string
		var dists []float64
		var docs []string
		var mds []map[string]any
		for _, cand := range candidates {
			ids = append(ids, cand.id)
			dists = append(dists, cand.distance)
			docs = append(docs, cand.document)
			mds = append(mds, cand.metadata)
		}
		merged.IDs = append(merged.IDs, ids)
		merged.Distances = append(merged.Distances, dists)
		merged.Documents = append(merged.Documents, docs)
		merged.Metadatas = append(merged.Metadatas, mds)
	}
	return merged, nil
}

type mergeCandidate struct {
	id       string
	distance float64
	document string
	metadata map[string]any
}

// Get fans out a get across routed collections, concatenates results, and
// applies limit/offset after concatenation.
func (c *Client) Get(ctx context.Context, ids []string, where vectorstore.Filter, limit, offset int, models []string) (*vectorstore.GetResult, error) {
	collections := c.routeModels(models)
	if len(collections) == 0 {
		return &vectorstore.GetResult{}, nil
	}

	partials := make([]*vectorstore.GetResult, len(collections))
	errs := make([]error, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, coll := range collections {
		i, coll := i, coll
		g.Go(func() error {
			h, ok := c.handleFor(coll)
			if !ok {
				h = vectorstore.Handle{Name: coll}
			}
			result, err := c.store.Get(gctx, h, ids, where, 0, 0) // limit/offset applied post-concatenation
			if err != nil {
				c.logger.Warn("query client: sub-get failed", zap.String("collection", coll), zap.Error(err))
				errs[i] = err
				return nil
			}
			partials[i] = result
			return nil
		})
	}
	_ = g.Wait()

	merged := &vectorstore.GetResult{}
	anySucceeded := false
	for i, p := range partials {
		if errs[i] != nil || p == nil {
			continue
		}
		anySucceeded = true
		merged.IDs = append(merged.IDs, p.IDs...)
		merged.Documents = append(merged.Documents, p.Documents...)
		merged.Metadatas = append(merged.Metadatas, p.Metadatas...)
	}
	if !anySucceeded {
		return nil, fmt.Errorf("get: all %d routed collections failed", len(collections))
	}

	if offset > 0 {
		if offset >= len(merged.IDs) {
			return &vectorstore.GetResult{}, nil
		}
		merged.IDs = merged.IDs[offset:]
		merged.Documents = merged.Documents[offset:]
		merged.Metadatas = merged.Metadatas[offset:]
	}
	if limit > 0 && len(merged.IDs) > limit {
		merged.IDs = merged.IDs[:limit]
		merged.Documents = merged.Documents[:limit]
		merged.Metadatas = merged.Metadatas[:limit]
	}
	return merged, nil
}

// Count fans out a count across routed collections and sums them.
func (c *Client) Count(ctx context.Context, where vectorstore.Filter, models []string) (int, error) {
	collections := c.routeModels(models)
	if len(collections) == 0 {
		return 0, nil
	}

	counts := make([]int, len(collections))
	errs := make([]error, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, coll := range collections {
		i, coll := i, coll
		g.Go(func() error {
			h, ok := c.handleFor(coll)
			if !ok {
				h = vectorstore.Handle{Name: coll}
			}
			n, err := c.store.Count(gctx, h, where)
			if err != nil {
				c.logger.Warn("query client: sub-count failed", zap.String("collection", coll), zap.Error(err))
				errs[i] = err
				return nil
			}
			counts[i] = n
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	anySucceeded := false
	for i, n := range counts {
		if errs[i] != nil {
			continue
		}
		anySucceeded = true
		total += n
	}
	if !anySucceeded {
		return 0, fmt.Errorf("count: all %d routed collections failed", len(collections))
	}
	return total, nil
}
