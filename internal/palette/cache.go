package palette

import (
	"context"
	"emojimosaic/internal/cachestore"
	"emojimosaic/internal/logging"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache resolves palette ids to color profiles. Profiles are computed at
// most once per palette per process unless cleared; results are also
// persisted to the store and reused across restarts when valid.
type Cache struct {
	store    cachestore.Store
	profiler *Profiler
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time

	group singleflight.Group

	mu          sync.RWMutex
	entries     map[string][]Profile
	generations map[string]uint64
}

// NewCache builds a cache. A nil store keeps everything in memory.
func NewCache(store cachestore.Store, profiler *Profiler, registry *Registry, logger *slog.Logger) *Cache {
	if store == nil {
		store = cachestore.NewMemory()
	}
	return &Cache{
		store:       store,
		profiler:    profiler,
		registry:    registry,
		logger:      logging.OrDiscard(logger),
		now:         time.Now,
		entries:     make(map[string][]Profile),
		generations: make(map[string]uint64),
	}
}

// Load returns the profiles for paletteID in definition order. The only
// error is ErrUnknownPalette; storage failures fall back to computing.
// Concurrent first loads of one palette share a single computation.
func (c *Cache) Load(ctx context.Context, paletteID string) ([]Profile, error) {
	definition, ok := c.registry.Lookup(paletteID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPalette, paletteID)
	}

	if profiles, ok := c.cached(definition.ID); ok {
		return profiles, nil
	}

	value, err, _ := c.group.Do(definition.ID, func() (any, error) {
		return c.populate(ctx, definition), nil
	})
	if err != nil {
		return nil, err
	}

	return cloneProfiles(value.([]Profile)), nil
}

func (c *Cache) populate(ctx context.Context, definition Definition) []Profile {
	c.mu.RLock()
	generation := c.generations[definition.ID]
	existing, ok := c.entries[definition.ID]
	c.mu.RUnlock()
	if ok {
		return existing
	}

	profiles, err := c.readPersisted(ctx, definition)
	if err != nil {
		if !errors.Is(err, cachestore.ErrNotFound) {
			c.logger.Warn("discarding persisted palette", "palette", definition.ID, "error", err)
		}

		startedAt := time.Now()
		var rendered int
		profiles, rendered = c.profiler.ProfileGlyphs(definition.Glyphs)
		c.logger.Info("profiled palette",
			"palette", definition.ID,
			"glyphs", len(profiles),
			"rendered", rendered,
			"elapsed", time.Since(startedAt).Round(time.Millisecond),
		)

		switch {
		case rendered == 0:
			// Nothing was drawn, so every profile is the white fallback.
			c.logger.Warn("renderer drew no glyphs, not persisting palette", "palette", definition.ID)
		case c.generation(definition.ID) != generation:
			c.logger.Debug("palette cleared while profiling, not persisting", "palette", definition.ID)
		default:
			c.persist(ctx, definition.ID, profiles)
		}
	}

	c.mu.Lock()
	if c.generations[definition.ID] == generation {
		c.entries[definition.ID] = profiles
	}
	c.mu.Unlock()

	return profiles
}

func (c *Cache) generation(paletteID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[paletteID]
}

func (c *Cache) readPersisted(ctx context.Context, definition Definition) ([]Profile, error) {
	payload, err := c.store.Get(ctx, CacheKey(definition.ID))
	if err != nil {
		return nil, err
	}
	return DecodeRecord(payload, definition)
}

func (c *Cache) persist(ctx context.Context, paletteID string, profiles []Profile) {
	payload, err := EncodeRecord(paletteID, profiles, c.now())
	if err != nil {
		c.logger.Warn("encode palette record failed", "palette", paletteID, "error", err)
		return
	}
	if err := c.store.Put(ctx, CacheKey(paletteID), payload); err != nil {
		c.logger.Warn("persist palette failed", "palette", paletteID, "error", err)
	}
}

func (c *Cache) cached(paletteID string) ([]Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	profiles, ok := c.entries[paletteID]
	if !ok {
		return nil, false
	}
	return cloneProfiles(profiles), true
}

// Persisted reports the profiles stored for paletteID without computing
// anything. It returns cachestore.ErrNotFound or ErrInvalidRecord when no
// usable record exists.
func (c *Cache) Persisted(ctx context.Context, paletteID string) ([]Profile, error) {
	definition, ok := c.registry.Lookup(paletteID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPalette, paletteID)
	}
	return c.readPersisted(ctx, definition)
}

// Clear drops the in-memory and persisted entries for paletteID. Clearing
// an absent entry succeeds. A load already in flight will neither
// repopulate memory nor persist its result once cleared.
func (c *Cache) Clear(ctx context.Context, paletteID string) error {
	definition, ok := c.registry.Lookup(paletteID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPalette, paletteID)
	}

	c.mu.Lock()
	delete(c.entries, definition.ID)
	c.generations[definition.ID]++
	c.mu.Unlock()
	c.group.Forget(definition.ID)

	if err := c.store.Delete(ctx, CacheKey(definition.ID)); err != nil {
		return fmt.Errorf("clear palette %s: %w", definition.ID, err)
	}

	c.logger.Debug("cleared palette cache", "palette", definition.ID)
	return nil
}

// ClearAll clears every registered palette. When the store can list its
// keys, records left behind by palettes no longer configured are removed
// as well.
func (c *Cache) ClearAll(ctx context.Context) error {
	var errs []error
	for _, paletteID := range c.registry.IDs() {
		if err := c.Clear(ctx, paletteID); err != nil {
			errs = append(errs, err)
		}
	}

	lister, ok := c.store.(cachestore.Lister)
	if !ok {
		return errors.Join(errs...)
	}
	keys, err := lister.Keys(ctx, cacheKeyPrefix+"-")
	if err != nil {
		errs = append(errs, fmt.Errorf("list palette records: %w", err))
		return errors.Join(errs...)
	}
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
			continue
		}
		c.logger.Debug("removed orphaned palette record", "key", key)
	}
	return errors.Join(errs...)
}

func (c *Cache) Registry() *Registry {
	return c.registry
}

func cloneProfiles(profiles []Profile) []Profile {
	return append([]Profile(nil), profiles...)
}
