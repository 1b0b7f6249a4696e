/**
 * @description
 * Redis-backed pending-operation store. It holds the in-flight state for
 * operations awaiting gateway confirmation, with a per-key TTL, and is shared
 * across process instances so a webhook landing on one instance and the
 * deferred verifier running on another observe the same records.
 *
 * Claim is the critical primitive: an atomic read-and-delete executed as a
 * single Lua script, so two concurrent confirmations for the same reference
 * can never both observe the record and double-apply the ledger mutation.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client and script support.
 */

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes for the record families the settlement service stores.
const (
	KeyPrefixPendingDeposit    = "settlement:pending:deposit:"
	KeyPrefixPendingWithdrawal = "settlement:pending:withdrawal:"
	KeyPrefixAudit             = "settlement:audit:"
	KeyPrefixBankList          = "settlement:banks"
	KeyPrefixAccountName       = "settlement:resolved_name:"
)

// claimScript atomically reads and deletes a key, returning the prior value
// or false when the key is absent.
var claimScript = redis.NewScript(`
local value = redis.call("GET", KEYS[1])
if value == false then
  return false
end
redis.call("DEL", KEYS[1])
return value
`)

// PendingStore is the Redis implementation of the TTL'd key/value store.
type PendingStore struct {
	client redis.UniversalClient
	prefix string
}

// NewPendingStore creates a store. The prefix namespaces all keys so several
// environments can share one Redis.
func NewPendingStore(client redis.UniversalClient, prefix string) *PendingStore {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	return &PendingStore{client: client, prefix: trimmed}
}

func (s *PendingStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

// Set stores value under key with the given TTL.
func (s *PendingStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal pending record: %w", err)
	}
	return s.client.Set(ctx, s.key(key), payload, ttl).Err()
}

// Get loads the value for key into dest. The boolean reports presence.
func (s *PendingStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	payload, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal pending record: %w", err)
	}
	return true, nil
}

// Remove deletes key and reports whether it existed.
func (s *PendingStore) Remove(ctx context.Context, key string) (bool, error) {
	removed, err := s.client.Del(ctx, s.key(key)).Result()
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

// Claim atomically removes key and, when it was present, loads its prior
// value into dest. Exactly one concurrent caller can claim a given key.
func (s *PendingStore) Claim(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := claimScript.Run(ctx, s.client, []string{s.key(key)}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	payload, ok := raw.(string)
	if !ok {
		return false, fmt.Errorf("unexpected claim response shape: %T", raw)
	}
	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal claimed record: %w", err)
	}
	return true, nil
}

// TTL returns the remaining lifetime of key, or zero when absent.
func (s *PendingStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// ScanKeys returns the stored keys (prefix stripped) matching pattern. Used
// by the periodic re-verifier to find deposits still awaiting confirmation.
func (s *PendingStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	fullPattern := s.key(pattern)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, fullPattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			if s.prefix != "" {
				k = strings.TrimPrefix(k, s.prefix+":")
			}
			keys = append(keys, k)
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// GetOrCompute returns the cached value for key, computing and caching it
// with the given TTL on a miss. Used for the slow-moving bank list and
// account-name resolutions.
func (s *PendingStore) GetOrCompute(ctx context.Context, key string, ttl time.Duration, dest any, compute func() (any, error)) error {
	found, err := s.Get(ctx, key, dest)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	value, err := compute()
	if err != nil {
		return err
	}
	if err := s.Set(ctx, key, value, ttl); err != nil {
		return err
	}

	// Round-trip through JSON so dest is filled the same way a cache hit
	// would fill it.
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dest)
}
