package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/CorsairOps/user-service/cache"
)

// scanBatch is the COUNT hint for SCAN-based key walks.
const scanBatch = 100

// UserStore implements the cache.UserStore interface using Redis.
// Each entry is a hash under <prefix>:users:<schema>:<id> with a TTL on
// the key itself, so expired entries are unreadable by construction.
type UserStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewUserStore creates a new [UserStore] instance.
func NewUserStore(client *redis.Client, prefix string, ttl time.Duration) *UserStore {
	return &UserStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// redisKey returns the Redis key for a given user ID. The schema version
// in the key orphans the whole keyspace when the entry layout changes.
func (r *UserStore) redisKey(id string) string {
	return fmt.Sprintf("%s:users:%s:%s", r.prefix, cache.SchemaVersion, id)
}

func entryFields(entry *cache.CachedEntry) (map[string]interface{}, error) {
	rolesJSON, err := json.Marshal(entry.Roles)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal roles: %w", err)
	}
	return map[string]interface{}{
		"id":          entry.ID,
		"email":       entry.Email,
		"given_name":  entry.GivenName,
		"family_name": entry.FamilyName,
		"username":    entry.Username,
		"enabled":     strconv.FormatBool(entry.Enabled),
		"created_at":  strconv.FormatInt(entry.CreatedAt, 10),
		"roles":       string(rolesJSON),
	}, nil
}

func entryFromFields(fields map[string]string) (*cache.CachedEntry, error) {
	enabled, err := strconv.ParseBool(fields["enabled"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse enabled flag: %w", err)
	}

	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	var roles []string
	if rolesJSON := fields["roles"]; rolesJSON != "" {
		if err := json.Unmarshal([]byte(rolesJSON), &roles); err != nil {
			return nil, fmt.Errorf("failed to unmarshal roles: %w", err)
		}
	}

	return &cache.CachedEntry{
		ID:         fields["id"],
		Email:      fields["email"],
		GivenName:  fields["given_name"],
		FamilyName: fields["family_name"],
		Username:   fields["username"],
		Enabled:    enabled,
		CreatedAt:  createdAt,
		Roles:      roles,
	}, nil
}

// GetOne retrieves a single live entry. A malformed hash is treated as a
// miss so a schema drift never breaks the read path.
func (r *UserStore) GetOne(ctx context.Context, id string) (*cache.CachedEntry, error) {
	res, err := r.client.HGetAll(ctx, r.redisKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read user %s from Redis: %w", id, err)
	}
	if len(res) == 0 {
		return nil, cache.ErrEntryNotFound
	}

	entry, err := entryFromFields(res)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("user_id", id).Msg("discarding malformed cache entry")
		return nil, cache.ErrEntryNotFound
	}
	return entry, nil
}

// GetMany retrieves the subset of ids with live entries, keyed by ID.
func (r *UserStore) GetMany(ctx context.Context, ids []string) (map[string]*cache.CachedEntry, error) {
	cmds := make(map[string]*redis.MapStringStringCmd, len(ids))
	pipe := r.client.Pipeline()
	for _, id := range ids {
		cmds[id] = pipe.HGetAll(ctx, r.redisKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read users from Redis: %w", err)
	}

	found := make(map[string]*cache.CachedEntry, len(ids))
	for id, cmd := range cmds {
		res, err := cmd.Result()
		if err != nil || len(res) == 0 {
			continue
		}
		entry, err := entryFromFields(res)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("user_id", id).Msg("discarding malformed cache entry")
			continue
		}
		found[id] = entry
	}
	return found, nil
}

// PutMany upserts entries. Each write resets that entry's TTL.
func (r *UserStore) PutMany(ctx context.Context, entries []*cache.CachedEntry) error {
	pipe := r.client.Pipeline()
	for _, entry := range entries {
		fields, err := entryFields(entry)
		if err != nil {
			return err
		}
		key := r.redisKey(entry.ID)
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write users to Redis: %w", err)
	}
	return nil
}

// All returns every live entry by walking the keyspace with SCAN.
func (r *UserStore) All(ctx context.Context) ([]*cache.CachedEntry, error) {
	keys, err := r.scanKeys(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]*cache.CachedEntry, 0, len(keys))
	for _, key := range keys {
		res, err := r.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read key %s from Redis: %w", key, err)
		}
		if len(res) == 0 {
			// Key expired between SCAN and HGETALL.
			continue
		}
		entry, err := entryFromFields(res)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("discarding malformed cache entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Count returns the number of live entries. Redis evicts expired keys,
// so the SCAN result is the live count.
func (r *UserStore) Count(ctx context.Context) (int, error) {
	keys, err := r.scanKeys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (r *UserStore) scanKeys(ctx context.Context) ([]string, error) {
	pattern := r.redisKey("*")

	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan user keys in Redis: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

var _ cache.UserStore = (*UserStore)(nil)
