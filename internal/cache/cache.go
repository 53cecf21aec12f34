// Package cache holds the shared response cache used for outbound forecast
// requests. Entries are immutable once written and expire after a fixed TTL.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache stores raw response bodies keyed by the exact request signature.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, body []byte)
}

var (
	_ Cache = (*TTL)(nil)
	_ Cache = Disabled{}
)

// TTL is a time-bounded, unsized cache. Expired entries are never served and
// are swept by a background janitor every other TTL.
type TTL struct {
	c *gocache.Cache
}

// NewTTL creates a cache whose entries live for ttl.
func NewTTL(ttl time.Duration) *TTL {
	return &TTL{c: gocache.New(ttl, 2*ttl)}
}

func (t *TTL) Get(key string) ([]byte, bool) {
	v, ok := t.c.Get(key)
	if !ok {
		return nil, false
	}
	body, ok := v.([]byte)
	return body, ok
}

// Set stores a private copy of body. Concurrent writers for the same key
// race and the last one wins.
func (t *TTL) Set(key string, body []byte) {
	cp := make([]byte, len(body))
	copy(cp, body)
	t.c.SetDefault(key, cp)
}

// Len reports the number of stored entries, including expired ones not yet swept.
func (t *TTL) Len() int {
	return t.c.ItemCount()
}

// Disabled never stores anything.
type Disabled struct{}

func (Disabled) Get(string) ([]byte, bool) { return nil, false }
func (Disabled) Set(string, []byte)        {}
