// internal/store/redis.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key namespace. Game names are embedded verbatim; they arrive
// URL-decoded and may contain anything, which Redis keys tolerate.
const (
	keyGames     = "goldrush:games"     // list, newest first
	keyGamesSet  = "goldrush:games:set" // membership guard
	keyGamesID   = "goldrush:games:id"  // index version counter
	chanGames    = "goldrush:games"     // index wake channel
	keyPrefix    = "goldrush:game:"
	defaultQueue = "goldrush:archive"
)

func stateKey(game string) string { return keyPrefix + game + ":state" }
func logKey(game string) string   { return keyPrefix + game + ":log" }
func cursorKey(game string) string {
	return keyPrefix + game + ":id"
}
func lockKey(game string) string { return keyPrefix + game + ":lock" }
func gameChan(game string) string {
	return keyPrefix + game
}

// Redis implements Store on a go-redis client. The optimistic
// transaction is WATCH/MULTI/EXEC over the state and cursor keys; the
// lock is SET NX PX with compare-and-delete release.
type Redis struct {
	rdb   *redis.Client
	queue string
}

// ConnectRedis builds a Redis store from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
//   - ARCHIVE_QUEUE_NAME (optional)
func ConnectRedis(ctx context.Context) (*Redis, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return NewRedis(rdb), nil
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, queue: getEnv("ARCHIVE_QUEUE_NAME", defaultQueue)}
}

// RegisterGame commits the membership mark and the lobby list entry in
// one transaction, so a crash cannot strand a name in the set with no
// list row behind it.
func (s *Redis) RegisterGame(ctx context.Context, name string) (bool, error) {
	for {
		added := false
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			isMember, err := tx.SIsMember(ctx, keyGamesSet, name).Result()
			if err != nil || isMember {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SAdd(ctx, keyGamesSet, name)
				pipe.LPush(ctx, keyGames, name)
				pipe.Incr(ctx, keyGamesID)
				pipe.Publish(ctx, chanGames, name)
				return nil
			})
			if err == nil {
				added = true
			}
			return err
		}, keyGamesSet)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return added, err
	}
}

func (s *Redis) GameNames(ctx context.Context) ([]string, error) {
	return s.rdb.LRange(ctx, keyGames, 0, -1).Result()
}

func (s *Redis) IndexVersion(ctx context.Context) (int64, error) {
	return s.getInt(ctx, keyGamesID)
}

func (s *Redis) SubscribeIndex(ctx context.Context) (Subscription, error) {
	return s.subscribe(ctx, chanGames)
}

func (s *Redis) LoadState(ctx context.Context, game string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, stateKey(game)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (s *Redis) UpdateGame(ctx context.Context, game string, mutate Mutate) (int64, error) {
	var lastID int64
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, stateKey(game)).Bytes()
		if errors.Is(err, redis.Nil) {
			cur = nil
		} else if err != nil {
			return err
		}
		cursor, err := tx.Get(ctx, cursorKey(game)).Int64()
		if errors.Is(err, redis.Nil) {
			cursor = 0
		} else if err != nil {
			return err
		}

		next, events, err := mutate(cur)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next != nil {
				pipe.Set(ctx, stateKey(game), next, 0)
			}
			for i, payload := range events {
				entry, err := json.Marshal(LogEntry{
					ID:      cursor + int64(i) + 1,
					At:      now,
					Payload: payload,
				})
				if err != nil {
					return err
				}
				pipe.RPush(ctx, logKey(game), entry)
			}
			if len(events) > 0 {
				pipe.Set(ctx, cursorKey(game), cursor+int64(len(events)), 0)
			}
			return nil
		})
		lastID = cursor + int64(len(events))
		return err
	}, stateKey(game), cursorKey(game))

	if errors.Is(err, redis.TxFailedErr) {
		return 0, ErrConflict
	}
	if err != nil {
		return 0, err
	}
	return lastID, nil
}

func (s *Redis) LogRange(ctx context.Context, game string, afterID int64) ([]LogEntry, error) {
	if afterID < 0 {
		afterID = 0
	}
	// Entry with id N sits at list index N-1.
	raw, err := s.rdb.LRange(ctx, logKey(game), afterID, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]LogEntry, 0, len(raw))
	for _, item := range raw {
		var e LogEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("corrupt log entry in game %q: %w", game, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Redis) LogCursor(ctx context.Context, game string) (int64, error) {
	return s.getInt(ctx, cursorKey(game))
}

func (s *Redis) AcquireLock(ctx context.Context, game, token string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, lockKey(game), token, ttl).Result()
}

func (s *Redis) ReleaseLock(ctx context.Context, game, token string) error {
	key := lockKey(game)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) || (err == nil && cur != token) {
			// Expired or taken over; nothing of ours to release.
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (s *Redis) Publish(ctx context.Context, game string) error {
	return s.rdb.Publish(ctx, gameChan(game), "").Err()
}

func (s *Redis) Subscribe(ctx context.Context, game string) (Subscription, error) {
	return s.subscribe(ctx, gameChan(game))
}

func (s *Redis) EnqueueArchive(ctx context.Context, payload []byte) error {
	if err := s.rdb.RPush(ctx, s.queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list %q: %w", s.queue, err)
	}
	return nil
}

// subscribe confirms the subscription before returning, so a caller
// that subscribes and then re-checks its condition cannot miss a
// publish in between.
func (s *Redis) subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := s.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}
	sub := &redisSub{ps: ps, ch: make(chan struct{}, 1)}
	go sub.forward()
	return sub, nil
}

type redisSub struct {
	ps *redis.PubSub
	ch chan struct{}
}

func (s *redisSub) forward() {
	for range s.ps.Channel() {
		select {
		case s.ch <- struct{}{}:
		default: // coalesce
		}
	}
}

func (s *redisSub) C() <-chan struct{} { return s.ch }
func (s *redisSub) Close()             { s.ps.Close() }

func (s *Redis) getInt(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
