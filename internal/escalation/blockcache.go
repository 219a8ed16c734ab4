package escalation

import (
	"sort"
	"sync"
	"time"
)

// BlockCache remembers addresses already blocked during this process
// lifetime so that enforcement runs at most once per address.
type BlockCache struct {
	mu  sync.Mutex
	ips map[string]time.Time
}

// NewBlockCache creates an empty cache.
func NewBlockCache() *BlockCache {
	return &BlockCache{ips: make(map[string]time.Time)}
}

// Contains reports whether ip has been blocked.
func (c *BlockCache) Contains(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ips[ip]
	return ok
}

// Add records a successful block. Re-adding keeps the first timestamp.
func (c *BlockCache) Add(ip string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ips[ip]; !ok {
		c.ips[ip] = at
	}
}

// Len returns the number of cached addresses.
func (c *BlockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ips)
}

// IPs returns the cached addresses in sorted order.
func (c *BlockCache) IPs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.ips))
	for ip := range c.ips {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out
}
