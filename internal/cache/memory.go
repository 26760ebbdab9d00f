package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/pii"
)

// memoryEntry holds one serialized result. A zero expiresAt means the
// entry never expires.
type memoryEntry struct {
	data        []byte
	expiresAt   time.Time
	accessCount int64
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process ResultCache. Expiry is lazy: entries past their
// TTL are dropped when read, or in bulk by ClearExpired.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	hits    int64
	misses  int64
	logger  *zap.Logger
}

// NewMemory creates an empty in-process cache.
func NewMemory(logger *zap.Logger) *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		logger:  logger,
	}
}

// Get returns the cached result for key, or (nil, nil) when the key is
// absent or expired. Takes the write lock: a hit bumps the access count
// and an expired entry is removed in place.
func (m *Memory) Get(ctx context.Context, key string) (*pii.MaskingResult, error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	if !ok {
		m.misses++
		m.mu.Unlock()
		return nil, nil
	}
	if entry.expired(time.Now()) {
		delete(m.entries, key)
		m.misses++
		m.mu.Unlock()
		return nil, nil
	}
	entry.accessCount++
	m.hits++
	data := entry.data
	m.mu.Unlock()

	return decodeResult(data)
}

// Set stores the result under key. A non-positive ttl stores it without
// expiry.
func (m *Memory) Set(ctx context.Context, key string, result *pii.MaskingResult, ttl time.Duration) error {
	data, err := encodeResult(result)
	if err != nil {
		return pii.NewCacheError("set", "failed to serialize result", err)
	}

	entry := &memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Delete removes key if present.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Clear removes every entry.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	removed := len(m.entries)
	m.entries = make(map[string]*memoryEntry)
	m.mu.Unlock()

	m.logger.Info("Cache cleared", zap.Int("deleted_keys", removed))
	return nil
}

// ClearExpired sweeps entries past their TTL and returns how many were
// removed.
func (m *Memory) ClearExpired(ctx context.Context) (int, error) {
	now := time.Now()

	m.mu.Lock()
	removed := 0
	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("Expired cache entries removed", zap.Int("removed", removed))
	}
	return removed, nil
}

// Stats reports hit/miss counters and the per-key access distribution.
func (m *Memory) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byKey := make(map[string]int64, len(m.entries))
	for key, entry := range m.entries {
		byKey[key] = entry.accessCount
	}

	stats := &Stats{
		Backend: string(MemoryBackend),
		Hits:    m.hits,
		Misses:  m.misses,
		Entries: int64(len(m.entries)),
		ByKey:   byKey,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats, nil
}

// Close is a no-op for the in-process cache.
func (m *Memory) Close() error {
	return nil
}
