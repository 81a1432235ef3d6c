// Package cache holds the concurrent-safe, intentionally-stale caches
// the pipeline needs between stream consumers: the crypto-market join
// cache, the market-name resolver cache, and the bounded seen-id sets
// that dedupe inbound trades and news items.
package cache

import "sync"

// CryptoMarketEntry is one market's snapshot-derived view, cached by
// crypto symbol so the crypto-price consumer can join an inbound
// CryptoPrice tick against every market whose parsed question
// references that symbol.
type CryptoMarketEntry struct {
	MarketID    string
	Question    string
	YesPrice    float64
	Volume24h   float64
	EndDate     *int64 // unix seconds, nil if unset
	TargetPrice float64
	IsAbove     bool
}

// CryptoMarketCache is populated by the snapshot consumer and read by
// the crypto-price consumer. Entries are overwritten on every
// snapshot for their marketId.
type CryptoMarketCache struct {
	mu    sync.RWMutex
	bySym map[string]map[string]CryptoMarketEntry // symbol -> marketId -> entry
	byMkt map[string]string                        // marketId -> symbol, for overwrite/removal
}

func NewCryptoMarketCache() *CryptoMarketCache {
	return &CryptoMarketCache{
		bySym: make(map[string]map[string]CryptoMarketEntry),
		byMkt: make(map[string]string),
	}
}

// Put records or replaces the cached entry for marketId under symbol,
// removing any stale entry under a previously-cached symbol.
func (c *CryptoMarketCache) Put(symbol string, entry CryptoMarketEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if oldSym, has := c.byMkt[entry.MarketID]; has && oldSym != symbol {
		if m, ok := c.bySym[oldSym]; ok {
			delete(m, entry.MarketID)
		}
	}
	if c.bySym[symbol] == nil {
		c.bySym[symbol] = make(map[string]CryptoMarketEntry)
	}
	c.bySym[symbol][entry.MarketID] = entry
	c.byMkt[entry.MarketID] = symbol
}

// BySymbol returns a snapshot copy of every market currently matched
// to symbol.
func (c *CryptoMarketCache) BySymbol(symbol string) []CryptoMarketEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := c.bySym[symbol]
	out := make([]CryptoMarketEntry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

// NameResolver caches marketId -> human-readable question/name so the
// alert formatter doesn't need a fresh metadata lookup per alert.
// Readers may see slightly stale entries.
type NameResolver struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewNameResolver() *NameResolver {
	return &NameResolver{names: make(map[string]string)}
}

func (r *NameResolver) Put(marketID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[marketID] = name
}

func (r *NameResolver) Get(marketID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.names[marketID]
	return n, ok
}

// BoundedSeenSet is a concurrent-safe "have I seen this id" set that
// is entirely flushed once it exceeds maxEntries, rather than
// evicting one entry at a time.
type BoundedSeenSet struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	maxEntries int
}

func NewBoundedSeenSet(maxEntries int) *BoundedSeenSet {
	return &BoundedSeenSet{seen: make(map[string]struct{}), maxEntries: maxEntries}
}

// CheckAndAdd reports whether id was already seen, and records it if
// not. When the set exceeds maxEntries it is flushed first, so the
// newly-added id is retained across the flush.
func (s *BoundedSeenSet) CheckAndAdd(id string) (alreadySeen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return true
	}
	if s.maxEntries > 0 && len(s.seen) >= s.maxEntries {
		s.seen = make(map[string]struct{}, s.maxEntries/2)
	}
	s.seen[id] = struct{}{}
	return false
}

// Len reports the current set size.
func (s *BoundedSeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
