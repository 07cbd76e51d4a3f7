package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matst80/rfbhost/internal/obs"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "rfbhost:session:"
	sessionIndexKey  = "rfbhost:sessions"
)

// Redis implements Store on top of Redis so several rfbhost instances can
// publish their sessions to one place. Records expire unless the owning
// instance keeps refreshing them.
type Redis struct {
	client     *redis.Client
	mu         sync.Mutex
	local      map[string]Record // sessions owned by this instance
	closing    bool
	ready      bool
	total      int64
	instanceID string

	heartbeatInterval time.Duration
	keyTTL            time.Duration
}

func NewRedis(addr, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &Redis{
		client:            rdb,
		local:             make(map[string]Record),
		instanceID:        fmt.Sprintf("rfbhost-%d", time.Now().UnixNano()),
		heartbeatInterval: 30 * time.Second,
		keyTTL:            2 * time.Minute,
	}, nil
}

var _ Store = (*Redis)(nil)

func (r *Redis) SetClosing(closing bool) { r.mu.Lock(); r.closing = closing; r.mu.Unlock() }
func (r *Redis) SetReady(ready bool)     { r.mu.Lock(); r.ready = ready; r.mu.Unlock() }
func (r *Redis) IsClosing() bool         { r.mu.Lock(); defer r.mu.Unlock(); return r.closing }
func (r *Redis) IsReady() bool           { r.mu.Lock(); defer r.mu.Unlock(); return r.ready }

func (r *Redis) Register(ctx context.Context, rec Record) error {
	rec.Instance = r.instanceID
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	ok, err := r.client.SetNX(ctx, sessionKeyPrefix+rec.ID, data, r.keyTTL).Result()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, rec.ID)
	}
	if err := r.client.SAdd(ctx, sessionIndexKey, rec.ID).Err(); err != nil {
		return fmt.Errorf("redis index failed: %w", err)
	}
	r.mu.Lock()
	r.local[rec.ID] = rec
	r.total++
	r.mu.Unlock()
	return nil
}

func (r *Redis) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.local, id)
	r.mu.Unlock()
	pipe := r.client.Pipeline()
	pipe.Del(ctx, sessionKeyPrefix+id)
	pipe.SRem(ctx, sessionIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis remove failed: %w", err)
	}
	return nil
}

// List returns every live record across instances. Index entries whose
// record has expired are pruned.
func (r *Redis) List(ctx context.Context) ([]Record, error) {
	ids, err := r.client.SMembers(ctx, sessionIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis members failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKeyPrefix + id
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}
	out := make([]Record, 0, len(vals))
	var stale []any
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			obs.Error("redis.unmarshal_session", obs.Fields{"err": err.Error(), "id": ids[i]})
			continue
		}
		out = append(out, rec)
	}
	if len(stale) > 0 {
		if err := r.client.SRem(ctx, sessionIndexKey, stale...).Err(); err != nil && !errors.Is(err, redis.Nil) {
			obs.Error("redis.prune_index", obs.Fields{"err": err.Error()})
		}
	}
	sortRecords(out)
	return out, nil
}

// Stats counts only sessions owned by this instance.
func (r *Redis) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Active: len(r.local), Total: r.total}
}

func (r *Redis) Close() error { return r.client.Close() }

// StartMaintenance refreshes the TTL of locally owned records until ctx is done.
func (r *Redis) StartMaintenance(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.heartbeat(ctx)
		}
	}
}

func (r *Redis) heartbeat(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.local))
	for id := range r.local {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	pipe := r.client.Pipeline()
	for _, id := range ids {
		pipe.Expire(ctx, sessionKeyPrefix+id, r.keyTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		obs.Error("redis.heartbeat", obs.Fields{"err": err.Error(), "sessions": len(ids)})
	}
}
