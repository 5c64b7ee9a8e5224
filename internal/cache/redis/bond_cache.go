package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// defaultBondTTL bounds how long a snapshot may lag the store.
const defaultBondTTL = 5 * time.Minute

// BondCache implements domain.BondCache using Redis hashes with JSON-
// serialized Bond data and a secondary token-handle index.
//
// Key schema:
//
//	bond:{id}            - hash with field "data" containing JSON
//	bond:token:{handle}  - string value of the bond ID
type BondCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBondCache creates a BondCache backed by the given Client.
func NewBondCache(c *Client) *BondCache {
	return &BondCache{rdb: c.Underlying(), ttl: defaultBondTTL}
}

// WithTTL overrides the snapshot expiry.
func (bc *BondCache) WithTTL(ttl time.Duration) *BondCache {
	if ttl > 0 {
		bc.ttl = ttl
	}
	return bc
}

func bondKey(id int64) string           { return "bond:" + strconv.FormatInt(id, 10) }
func bondTokenKey(handle string) string { return "bond:token:" + handle }

// Set stores a Bond in the cache with the configured TTL. Issued bonds also get
// a token-handle index entry.
func (bc *BondCache) Set(ctx context.Context, bond domain.Bond) error {
	data, err := json.Marshal(bond)
	if err != nil {
		return fmt.Errorf("redis: marshal bond %d: %w", bond.ID, err)
	}

	key := bondKey(bond.ID)

	pipe := bc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, bc.ttl)

	if bond.TokenHandle != "" {
		pipe.Set(ctx, bondTokenKey(bond.TokenHandle), bond.ID, bc.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set bond %d: %w", bond.ID, err)
	}
	return nil
}

// Get retrieves a Bond by its ID from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (bc *BondCache) Get(ctx context.Context, id int64) (domain.Bond, error) {
	data, err := bc.rdb.HGet(ctx, bondKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Bond{}, domain.ErrNotFound
		}
		return domain.Bond{}, fmt.Errorf("redis: get bond %d: %w", id, err)
	}

	var bond domain.Bond
	if err := json.Unmarshal(data, &bond); err != nil {
		return domain.Bond{}, fmt.Errorf("redis: unmarshal bond %d: %w", id, err)
	}
	return bond, nil
}

// GetByToken looks up a Bond by its token handle.
// It returns domain.ErrNotFound if the handle mapping or bond does not exist.
func (bc *BondCache) GetByToken(ctx context.Context, handle string) (domain.Bond, error) {
	idStr, err := bc.rdb.Get(ctx, bondTokenKey(handle)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Bond{}, domain.ErrNotFound
		}
		return domain.Bond{}, fmt.Errorf("redis: get bond by token %s: %w", handle, err)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return domain.Bond{}, fmt.Errorf("redis: parse bond id %q: %w", idStr, err)
	}
	return bc.Get(ctx, id)
}

// Invalidate removes a Bond and its token index entry from the cache.
func (bc *BondCache) Invalidate(ctx context.Context, id int64) error {
	// Read the bond first so the token-handle index can be cleaned up.
	bond, err := bc.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate bond %d: %w", id, err)
	}

	pipe := bc.rdb.TxPipeline()
	pipe.Del(ctx, bondKey(id))
	if err == nil && bond.TokenHandle != "" {
		pipe.Del(ctx, bondTokenKey(bond.TokenHandle))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate bond %d: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BondCache = (*BondCache)(nil)
