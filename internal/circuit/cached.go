package circuit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"simplane/internal/cache"
)

// CachedStore caches the results of another Store. Cache failures are
// logged and treated as misses.
type CachedStore struct {
	next   Store
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps next with c. A ttl <= 0 keeps entries forever.
func NewCached(next Store, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger.With("component", "circuit-cache"),
	}
}

func cellsKey(path string) string { return fmt.Sprintf("circuit:%s:cells", path) }

func connectomeKey(path string, gid int) string {
	return fmt.Sprintf("circuit:%s:connectome:%d", path, gid)
}

func morphKey(path string, gid int) string {
	return fmt.Sprintf("circuit:%s:morph:%d", path, gid)
}

func astrocyteKey(path, kind string, id int) string {
	return fmt.Sprintf("circuit:%s:astrocyte:%s:%d", path, kind, id)
}

func (c *CachedStore) Cells(ctx context.Context, path string) (*CellTable, error) {
	return cached(ctx, c, cellsKey(path), func() (*CellTable, error) {
		return c.next.Cells(ctx, path)
	})
}

func (c *CachedStore) Connectome(ctx context.Context, path string, gid int) (*Connectome, error) {
	return cached(ctx, c, connectomeKey(path, gid), func() (*Connectome, error) {
		return c.next.Connectome(ctx, path, gid)
	})
}

// SynConnections is not cached.
func (c *CachedStore) SynConnections(ctx context.Context, path string, gids []int) (*SynConnections, error) {
	return c.next.SynConnections(ctx, path, gids)
}

// Morphology is cached per cell; only missing cells are read from the
// underlying store.
func (c *CachedStore) Morphology(ctx context.Context, path string, gids []int) (*Morphology, error) {
	out := &Morphology{Cells: make(map[int]CellMorphology, len(gids))}

	var missing []int
	for _, gid := range gids {
		var cell CellMorphology
		if c.load(ctx, morphKey(path, gid), &cell) {
			out.Cells[gid] = cell
			continue
		}
		missing = append(missing, gid)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.next.Morphology(ctx, path, missing)
	if err != nil {
		return nil, err
	}
	for gid, cell := range fetched.Cells {
		out.Cells[gid] = cell
		c.store(ctx, morphKey(path, gid), cell)
	}
	return out, nil
}

func (c *CachedStore) AstrocyteSomas(ctx context.Context, path string) (*AstrocyteSomas, error) {
	return cached(ctx, c, fmt.Sprintf("circuit:%s:astrocyte-somas", path), func() (*AstrocyteSomas, error) {
		return c.next.AstrocyteSomas(ctx, path)
	})
}

func (c *CachedStore) AstrocyteProps(ctx context.Context, path string, id int) (AstrocyteProps, error) {
	res, err := cached(ctx, c, astrocyteKey(path, "props", id), func() (*AstrocyteProps, error) {
		props, err := c.next.AstrocyteProps(ctx, path, id)
		if err != nil {
			return nil, err
		}
		return &props, nil
	})
	if err != nil {
		return nil, err
	}
	return *res, nil
}

func (c *CachedStore) EfferentNeurons(ctx context.Context, path string, id int) ([]int, error) {
	res, err := cached(ctx, c, astrocyteKey(path, "efferent", id), func() (*[]int, error) {
		gids, err := c.next.EfferentNeurons(ctx, path, id)
		if err != nil {
			return nil, err
		}
		return &gids, nil
	})
	if err != nil {
		return nil, err
	}
	return *res, nil
}

func (c *CachedStore) AstrocyteMorphology(ctx context.Context, path string, id int) (*AstrocyteMorphology, error) {
	return cached(ctx, c, astrocyteKey(path, "morph", id), func() (*AstrocyteMorphology, error) {
		return c.next.AstrocyteMorphology(ctx, path, id)
	})
}

func (c *CachedStore) AstrocyteMicrodomain(ctx context.Context, path string, id int) (*Microdomain, error) {
	return cached(ctx, c, astrocyteKey(path, "microdomain", id), func() (*Microdomain, error) {
		return c.next.AstrocyteMicrodomain(ctx, path, id)
	})
}

// AstrocyteSynapses is not cached.
func (c *CachedStore) AstrocyteSynapses(ctx context.Context, path string, id, neuron int) (*AstrocyteSynapses, error) {
	return c.next.AstrocyteSynapses(ctx, path, id, neuron)
}

func cached[T any](ctx context.Context, c *CachedStore, key string, load func() (*T, error)) (*T, error) {
	var v T
	if c.load(ctx, key, &v) {
		return &v, nil
	}

	res, err := load()
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, res)
	return res, nil
}

func (c *CachedStore) load(ctx context.Context, key string, v any) bool {
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("dropping malformed cache entry", "key", key, "error", err)
		return false
	}
	c.logger.Debug("cache hit", "key", key)
	return true
}

func (c *CachedStore) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("failed to encode cache entry", "key", key, "error", err)
		return
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}
