package feed

import "sync"

// Cursors holds the next-page token per feed. Tokens live in memory only; a
// restart starts every feed from its first page.
type Cursors struct {
	mu   sync.Mutex
	next map[string]string
}

func NewCursors() *Cursors {
	return &Cursors{next: make(map[string]string)}
}

func (c *Cursors) Get(feed string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next[feed]
}

// Set records token for feed. An empty token clears it, so load-more stops
// once the upstream runs out of pages.
func (c *Cursors) Set(feed, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" {
		delete(c.next, feed)
		return
	}
	c.next[feed] = token
}
