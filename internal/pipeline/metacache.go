// Package pipeline wires the detector suite, the fair-value engine,
// the quality scorer, the paper-trading engine and the alert
// dispatcher into one running process driven by inbound event
// streams.
package pipeline

import (
	"sync"
	"time"

	"github.com/marketpulse/pulsecore/internal/types"
)

// marketMeta is the slice of a MarketSnapshot the quality scorer
// needs but that arrives on a different stream than the anomaly it
// scores: snapshots carry volume/endDate/category; a WhaleTrade or
// OrderBookImbalance anomaly does not.
type marketMeta struct {
	Volume   float64
	EndDate  *time.Time
	Category string
	Question string
}

// metaCache is the pipeline's own per-market bookkeeping: the latest
// snapshot-derived metadata, a rolling count of distinct anomaly types
// seen for a market within the corroboration window, and the most
// recent news-catalyst timestamp. It exists purely to assemble
// quality.Input; it does not gate or score anything itself.
type metaCache struct {
	mu sync.Mutex

	meta map[string]marketMeta

	// corroboration tracks, per market, the last-seen time of every
	// distinct anomaly type, so an old signal ages out instead of
	// corroborating forever.
	corroboration map[string]map[types.AnomalyType]time.Time
	corrWindow    time.Duration

	// lastNews tracks the last time a market received a news item
	// clearing the scorer's catalyst requirement.
	lastNews   map[string]time.Time
	newsWindow time.Duration
}

func newMetaCache(corroborationWindow, newsWindow time.Duration) *metaCache {
	return &metaCache{
		meta:          make(map[string]marketMeta),
		corroboration: make(map[string]map[types.AnomalyType]time.Time),
		corrWindow:    corroborationWindow,
		lastNews:      make(map[string]time.Time),
		newsWindow:    newsWindow,
	}
}

// putSnapshot records the metadata carried by an inbound MarketSnapshot.
func (c *metaCache) putSnapshot(snap types.MarketSnapshot) {
	vol, _ := snap.Volume24h.Float64()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta[snap.MarketID] = marketMeta{
		Volume:   vol,
		EndDate:  snap.EndDate,
		Category: snap.Category,
		Question: snap.Question,
	}
}

// noteNews records that marketID received a news item at ts.
func (c *metaCache) noteNews(marketID string, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastNews[marketID] = ts
}

// noteAnomaly records that marketID produced an anomaly of the given
// type at ts, for later corroboration counting.
func (c *metaCache) noteAnomaly(marketID string, typ types.AnomalyType, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.corroboration[marketID]
	if m == nil {
		m = make(map[types.AnomalyType]time.Time)
		c.corroboration[marketID] = m
	}
	m[typ] = ts
}

// snapshot returns everything quality.Input needs for marketID as of
// now: cached metadata (zero value if never seen), the count of
// distinct anomaly types still within the corroboration window
// (including the one just noted by the caller), and whether a news
// catalyst landed within the news window.
func (c *metaCache) snapshot(marketID string, now time.Time) (meta marketMeta, anomalyCount int, hasNewsCatalyst bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta = c.meta[marketID]

	for typ, ts := range c.corroboration[marketID] {
		if now.Sub(ts) <= c.corrWindow {
			anomalyCount++
		} else {
			delete(c.corroboration[marketID], typ)
		}
	}

	if ts, ok := c.lastNews[marketID]; ok {
		if now.Sub(ts) <= c.newsWindow {
			hasNewsCatalyst = true
		} else {
			delete(c.lastNews, marketID)
		}
	}

	return meta, anomalyCount, hasNewsCatalyst
}
