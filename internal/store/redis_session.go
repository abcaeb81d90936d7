package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
)

const redisSessionMaxRetries = 5

// RedisSessionStore keeps conversation sessions in Redis so several server
// replicas share one pointer per user. Plan data stays in the Repository.
type RedisSessionStore struct {
	rdb    *goredis.Client
	prefix string
	now    func() time.Time
}

// NewRedisSessionStore connects to addr and verifies it with PING.
func NewRedisSessionStore(ctx context.Context, addr, prefix string) (*RedisSessionStore, error) {
	if addr == "" {
		return nil, errors.New("missing redis address")
	}
	if prefix == "" {
		prefix = "mentor:session:"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisSessionStore{rdb: rdb, prefix: prefix, now: time.Now}, nil
}

func (r *RedisSessionStore) key(userID string) string {
	return r.prefix + userID
}

// GetSession returns the stored session, or the zero session when none exists.
func (r *RedisSessionStore) GetSession(ctx context.Context, userID string) (domain.ConversationSession, error) {
	raw, err := r.rdb.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.ConversationSession{}, nil
	}
	if err != nil {
		return domain.ConversationSession{}, fmt.Errorf("redis get session: %w", err)
	}
	var sess domain.ConversationSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.ConversationSession{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

// UpdateSession merges patch under WATCH, retrying when another writer races in.
func (r *RedisSessionStore) UpdateSession(ctx context.Context, userID string, patch domain.SessionPatch) (domain.ConversationSession, error) {
	key := r.key(userID)
	var out domain.ConversationSession

	txf := func(tx *goredis.Tx) error {
		var current domain.ConversationSession
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return fmt.Errorf("redis get session: %w", err)
		default:
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
		}

		if !current.Accepts(patch) {
			return fmt.Errorf("session at v%d, want v%d: %w", current.Version, patch.IfVersion, ErrSessionChanged)
		}
		merged := current.Merge(patch, r.now())
		blob, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, blob, 0)
			return nil
		})
		if err == nil {
			out = merged
		}
		return err
	}

	for i := 0; i < redisSessionMaxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return domain.ConversationSession{}, fmt.Errorf("update session: %w", err)
	}
	return domain.ConversationSession{}, fmt.Errorf("update session: %w", goredis.TxFailedErr)
}

// Close closes the Redis client.
func (r *RedisSessionStore) Close() error {
	return r.rdb.Close()
}
