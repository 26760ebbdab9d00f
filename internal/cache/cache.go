package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/pii"
)

// BackendType represents the type of result cache backend
type BackendType string

const (
	// MemoryBackend keeps results in an in-process map
	MemoryBackend BackendType = "memory"

	// RedisBackend keeps results in Redis with native TTL handling
	RedisBackend BackendType = "redis"
)

// ResultCache stores masking results keyed by input fingerprint. A miss is
// (nil, nil); a stored value that cannot be decoded is a *pii.CacheError,
// never a miss. Cached results carry only the masked text and risk score.
type ResultCache interface {
	Get(ctx context.Context, key string) (*pii.MaskingResult, error)
	Set(ctx context.Context, key string, result *pii.MaskingResult, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	// ClearExpired removes entries past their TTL and returns how many
	// were removed. Backends with native expiry may remove nothing.
	ClearExpired(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Stats reports cache performance counters.
type Stats struct {
	Backend string           `json:"backend"`
	Hits    int64            `json:"hits"`
	Misses  int64            `json:"misses"`
	HitRate float64          `json:"hit_rate"`
	Entries int64            `json:"entries"`
	ByKey   map[string]int64 `json:"hit_distribution,omitempty"`
}

// New creates the cache backend selected by cfg.Backend.
func New(cfg config.CacheConfig, logger *zap.Logger) (ResultCache, error) {
	switch BackendType(cfg.Backend) {
	case MemoryBackend:
		return NewMemory(logger), nil
	case RedisBackend:
		return NewRedis(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (must be one of: memory, redis)", cfg.Backend)
	}
}

// Fingerprint derives the cache key for text: the hex SHA-256 of the raw
// bytes, joined to a non-empty prefix with ":". Deterministic, so repeated
// inputs land on the same entry.
func Fingerprint(text, prefix string) string {
	sum := sha256.Sum256([]byte(text))
	key := hex.EncodeToString(sum[:])
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

// ValidKey reports whether key has fingerprint shape: 64 lowercase hex
// characters, optionally preceded by a non-empty prefix and ":".
func ValidKey(key string) bool {
	digest := key
	if i := strings.LastIndex(key, ":"); i >= 0 {
		if i == 0 {
			return false
		}
		digest = key[i+1:]
	}
	if len(digest) != sha256.Size*2 {
		return false
	}
	for _, c := range digest {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// storedResult is the serialized cache value. Entities are deliberately
// not stored, so cache hits return no entity list. Pointer fields let
// decoding distinguish absent fields from zero values.
type storedResult struct {
	MaskedText *string  `json:"masked_text"`
	RiskScore  *float64 `json:"risk_score"`
}

func encodeResult(result *pii.MaskingResult) ([]byte, error) {
	return json.Marshal(storedResult{
		MaskedText: &result.MaskedText,
		RiskScore:  &result.RiskScore,
	})
}

// decodeResult rebuilds a cached result. Undecodable or incomplete data is
// a CacheError so callers can distinguish corruption from a miss.
func decodeResult(data []byte) (*pii.MaskingResult, error) {
	var stored storedResult
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, pii.NewCacheError("get", "failed to deserialize cached result", err)
	}
	if stored.MaskedText == nil || stored.RiskScore == nil {
		return nil, pii.NewCacheError("get", "failed to deserialize cached result: incomplete value", nil)
	}
	return &pii.MaskingResult{
		MaskedText: *stored.MaskedText,
		RiskScore:  *stored.RiskScore,
		Cached:     true,
	}, nil
}
