package taxonomy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cache holds the list of known common names for type-ahead suggestions and
// resolves species metadata through its Source.
type Cache struct {
	source       Source
	snapshotPath string

	mu     sync.RWMutex
	names  []string
	lower  []string // names lowercased, same order
	loaded bool
	memo   *cache.Cache
}

// NewCache creates an empty cache. snapshotPath may be empty to disable the
// on-disk snapshot.
func NewCache(source Source, snapshotPath string) *Cache {
	return &Cache{
		source:       source,
		snapshotPath: snapshotPath,
		memo:         cache.New(cache.NoExpiration, 0),
	}
}

// Load fills the name list from the snapshot file, or from the source when no
// snapshot exists (writing one afterwards). On failure the current list is
// kept, which is empty until a load succeeds.
func (c *Cache) Load(ctx context.Context) ([]string, error) {
	names, err := c.readSnapshot()
	if err != nil {
		log.Printf("Warning: taxonomy: ignoring unreadable snapshot %s: %v", c.snapshotPath, err)
	}

	if names == nil {
		names, err = c.fetchNames(ctx)
		if err != nil {
			log.Printf("taxonomy: failed to load species list: %v", err)
			return c.Names(), err
		}
		if err := c.writeSnapshot(names); err != nil {
			log.Printf("Warning: taxonomy: failed to write snapshot %s: %v", c.snapshotPath, err)
		}
	}

	c.replace(names)
	log.Printf("taxonomy: loaded %d species names", len(names))
	return c.Names(), nil
}

// LoadWithRetry calls Load until it succeeds or ctx ends, waiting backoff
// between attempts and doubling it up to maxBackoff. Each attempt gets
// attemptTimeout. It also stops once a details lookup has filled the list.
func (c *Cache) LoadWithRetry(ctx context.Context, attemptTimeout, backoff, maxBackoff time.Duration) ([]string, error) {
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		names, err := c.Load(attemptCtx)
		cancel()
		if err == nil {
			return names, nil
		}
		if c.Loaded() {
			return c.Names(), nil
		}

		log.Printf("taxonomy: load attempt %d failed, retrying in %v", attempt, backoff)
		select {
		case <-ctx.Done():
			return c.Names(), ctx.Err()
		case <-time.After(backoff):
		}
		if c.Loaded() {
			return c.Names(), nil
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Cache) fetchNames(ctx context.Context) ([]string, error) {
	if c.source == nil {
		return nil, errors.New("no taxonomy source configured")
	}
	entries, err := c.source.FetchTaxonomy(ctx)
	if err != nil {
		return nil, err
	}
	return namesFromEntries(entries), nil
}

// adopt fills an empty name list from entries fetched for a details lookup
func (c *Cache) adopt(entries []Entry) {
	names := namesFromEntries(entries)
	if err := c.writeSnapshot(names); err != nil {
		log.Printf("Warning: taxonomy: failed to write snapshot %s: %v", c.snapshotPath, err)
	}
	c.replace(names)
	log.Printf("taxonomy: loaded %d species names from a details lookup", len(names))
}

func namesFromEntries(entries []Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := strings.TrimSpace(e.CommonName)
		key := normalizeName(name)
		if name == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names
}

// readSnapshot returns nil names when there is no snapshot to read
func (c *Cache) readSnapshot() ([]string, error) {
	if c.snapshotPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.snapshotPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (c *Cache) writeSnapshot(names []string) error {
	if c.snapshotPath == "" {
		return nil
	}
	data, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if dir := filepath.Dir(c.snapshotPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	tmp := c.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return os.Rename(tmp, c.snapshotPath)
}

func (c *Cache) replace(names []string) {
	lower := make([]string, len(names))
	for i, n := range names {
		lower[i] = strings.ToLower(n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = names
	c.lower = lower
	c.loaded = true
	c.memo.Flush()
}

// Names returns a copy of the loaded common names
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Loaded reports whether a load has succeeded
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Suggest returns up to limit names containing prefix, case-insensitively.
// Names starting with prefix come first; each group is sorted alphabetically.
func (c *Cache) Suggest(prefix string, limit int) []string {
	query := strings.ToLower(strings.TrimSpace(prefix))
	if len([]rune(query)) < minQueryLength {
		return []string{}
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	// held across compute and memo write so a concurrent Load cannot interleave
	c.mu.RLock()
	defer c.mu.RUnlock()

	memoKey := fmt.Sprintf("%s|%d", query, limit)
	if cached, found := c.memo.Get(memoKey); found {
		return append([]string(nil), cached.([]string)...)
	}

	var starts, contains []int
	for i, l := range c.lower {
		switch {
		case strings.HasPrefix(l, query):
			starts = append(starts, i)
		case strings.Contains(l, query):
			contains = append(contains, i)
		}
	}
	byName := func(idx []int) {
		sort.SliceStable(idx, func(a, b int) bool {
			la, lb := c.lower[idx[a]], c.lower[idx[b]]
			if la != lb {
				return la < lb
			}
			return c.names[idx[a]] < c.names[idx[b]]
		})
	}
	byName(starts)
	byName(contains)

	result := make([]string, 0, limit)
	for _, i := range append(starts, contains...) {
		if len(result) == limit {
			break
		}
		result = append(result, c.names[i])
	}

	c.memo.Set(memoKey, result, cache.NoExpiration)
	return append([]string(nil), result...)
}

// LookupDetails finds the metadata for a common name. The source keeps its
// own cache, so repeated lookups do not refetch the whole taxonomy.
func (c *Cache) LookupDetails(ctx context.Context, commonName string) (Details, error) {
	if strings.TrimSpace(commonName) == "" {
		return Details{}, ErrNotFound
	}
	idx, err := c.Index(ctx)
	if err != nil {
		return Details{}, err
	}
	d, ok := idx.Lookup(commonName)
	if !ok {
		return Details{}, ErrNotFound
	}
	return d, nil
}

// Index fetches the taxonomy and indexes it by common name. When the name
// list never loaded, the fetched entries fill it as well.
func (c *Cache) Index(ctx context.Context) (Index, error) {
	if c.source == nil {
		return nil, errors.New("no taxonomy source configured")
	}
	entries, err := c.source.FetchTaxonomy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch taxonomy: %w", err)
	}
	if !c.Loaded() {
		c.adopt(entries)
	}
	return NewIndex(entries), nil
}
