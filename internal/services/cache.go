package services

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a best-effort, invocation-local lookup cache. A miss or a stale
// entry only costs a provider lookup; correctness never depends on it.
type Cache interface {
	Get(key string) (string, bool)
	Add(key, value string) bool
	Remove(key string) bool
}

// NewCache returns a bounded LRU whose entries expire after ttl.
func NewCache(size int, ttl time.Duration) Cache {
	return expirable.NewLRU[string, string](size, nil, ttl)
}

type noCache struct{}

func (noCache) Get(string) (string, bool) { return "", false }
func (noCache) Add(string, string) bool   { return false }
func (noCache) Remove(string) bool        { return false }
