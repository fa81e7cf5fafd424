package classify

import (
	"container/list"
	"sync"
)

// memoryCache is a bounded least-frequently-used cache for classification
// entries. Lookups and inserts are O(1) average: entries live in per-frequency
// LRU lists, and eviction removes the least recently used entry of the lowest
// frequency. All methods are safe for concurrent use.
type memoryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element // ticker -> element in a frequency bucket
	buckets  map[int]*list.List       // frequency -> entries at that frequency
	minFreq  int
}

type memoryItem struct {
	key   string
	entry Entry
	freq  int
}

func newMemoryCache(capacity int) *memoryCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &memoryCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		buckets:  make(map[int]*list.List),
	}
}

// Get returns the cached entry for a ticker, bumping its use frequency.
// Staleness is the caller's concern: a stale entry is still returned so the
// resolver can decide whether to fall through.
func (c *memoryCache) Get(ticker string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[ticker]
	if !ok {
		return Entry{}, false
	}

	c.touch(elem)
	return elem.Value.(*memoryItem).entry, true
}

// Put inserts or replaces the entry for a ticker, evicting the least
// frequently used entry when the cache is full.
func (c *memoryCache) Put(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[entry.Ticker]; ok {
		elem.Value.(*memoryItem).entry = entry
		c.touch(elem)
		return
	}

	if len(c.entries) >= c.capacity {
		c.evict()
	}

	item := &memoryItem{key: entry.Ticker, entry: entry, freq: 1}
	bucket := c.bucket(1)
	c.entries[entry.Ticker] = bucket.PushFront(item)
	c.minFreq = 1
}

// Delete removes a ticker from the cache, if present.
func (c *memoryCache) Delete(ticker string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[ticker]
	if !ok {
		return
	}
	item := elem.Value.(*memoryItem)
	c.buckets[item.freq].Remove(elem)
	delete(c.entries, ticker)
}

// Len returns the number of cached entries.
func (c *memoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// touch moves an element to the next frequency bucket. Caller holds the lock.
func (c *memoryCache) touch(elem *list.Element) {
	item := elem.Value.(*memoryItem)
	oldBucket := c.buckets[item.freq]
	oldBucket.Remove(elem)

	if item.freq == c.minFreq && oldBucket.Len() == 0 {
		c.minFreq++
	}

	item.freq++
	c.entries[item.key] = c.bucket(item.freq).PushFront(item)
}

// evict drops the least recently used entry of the minimum frequency.
// Caller holds the lock.
func (c *memoryCache) evict() {
	bucket := c.buckets[c.minFreq]
	if bucket == nil || bucket.Len() == 0 {
		// minFreq can point at a drained bucket after deletes; rescan.
		for freq, b := range c.buckets {
			if b.Len() > 0 && (bucket == nil || bucket.Len() == 0 || freq < c.minFreq) {
				bucket = b
				c.minFreq = freq
			}
		}
		if bucket == nil || bucket.Len() == 0 {
			return
		}
	}

	victim := bucket.Back()
	item := victim.Value.(*memoryItem)
	bucket.Remove(victim)
	delete(c.entries, item.key)
}

func (c *memoryCache) bucket(freq int) *list.List {
	b, ok := c.buckets[freq]
	if !ok {
		b = list.New()
		c.buckets[freq] = b
	}
	return b
}
