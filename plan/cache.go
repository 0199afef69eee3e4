package plan

import (
	"strings"
	"sync"

	"github.com/zero-day-ai/recovery/classify"
	"github.com/zero-day-ai/recovery/types"
)

// explanationCache stores composed user-facing messages keyed by
// classification fingerprint. Only explanation text is reused; plans,
// actions and probabilities are always built fresh. Eviction is FIFO.
type explanationCache struct {
	mu      sync.Mutex
	cap     int
	entries map[string]string
	order   []string
}

// newExplanationCache returns nil when capacity is zero or negative;
// all methods tolerate a nil receiver so callers need no guard.
func newExplanationCache(capacity int) *explanationCache {
	if capacity <= 0 {
		return nil
	}
	return &explanationCache{
		cap:     capacity,
		entries: make(map[string]string, capacity),
	}
}

func (c *explanationCache) get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	text, ok := c.entries[key]
	return text, ok
}

func (c *explanationCache) put(key, text string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = text
		return
	}
	if len(c.order) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = text
	c.order = append(c.order, key)
}

// fingerprint identifies occurrences that read the same to a user:
// same category and severity, same tool and operation. The raw error
// text is deliberately excluded so near-identical messages share one
// cached explanation.
func fingerprint(cls classify.Classification, ectx types.Context) string {
	return strings.Join([]string{
		string(cls.Category),
		string(cls.Severity),
		ectx.Tool,
		ectx.Operation,
	}, "|")
}
