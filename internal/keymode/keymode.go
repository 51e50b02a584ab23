// Package keymode describes the column layout of each key mode.
package keymode

import (
	"slices"
	"sync"
)

// ColumnType classifies a column within a key mode.
type ColumnType string

const (
	Normal  ColumnType = "normal"
	Special ColumnType = "special"
	Scratch ColumnType = "scratch"
)

// MaxKeys is the widest mode with a computed layout.
const MaxKeys = 18

// Cache memoizes per-mode column layouts. The zero value is ready to use and
// safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	layouts map[int][]ColumnType
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{layouts: make(map[int][]ColumnType)}
}

// Layout returns the column types for a keys-wide chart. Unsupported modes
// get an all-Normal default that is not cached.
func (c *Cache) Layout(keys int) []ColumnType {
	if keys < 1 || keys > MaxKeys {
		return defaultLayout(keys)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.layouts == nil {
		c.layouts = make(map[int][]ColumnType)
	}
	l, ok := c.layouts[keys]
	if !ok {
		l = compute(keys)
		c.layouts[keys] = l
	}
	return slices.Clone(l)
}

// Len returns the number of cached modes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.layouts)
}

func defaultLayout(keys int) []ColumnType {
	out := make([]ColumnType, max(keys, 0))
	for i := range out {
		out[i] = Normal
	}
	return out
}

func compute(keys int) []ColumnType {
	out := defaultLayout(keys)
	switch {
	case keys == 8 || keys == 16:
		// 7K+1 and its double: scratch on the outer edge of each side.
		out[0] = Scratch
		if keys == 16 {
			out[15] = Scratch
		}
	case keys%2 == 1 && keys > 1:
		out[keys/2] = Special
	}
	return out
}
