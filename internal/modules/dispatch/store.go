// README: Dispatch bookkeeping backed by Redis hashes and SETNX locks.
package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"dashr/internal/types"
)

// unlockScript deletes the lock only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const (
	stateKeyPrefix = "dispatch:order:%s"
	lockKeyPrefix  = "dispatch:lock:%s"
	// Orders resolve well within a day; stale bookkeeping expires on its own.
	keyTTL = 24 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// State returns the order's dispatch progress and whether it was ever dispatched.
func (s *Store) State(ctx context.Context, orderID types.ID) (State, bool, error) {
	vals, err := s.redis.HGetAll(ctx, stateKey(orderID)).Result()
	if err != nil {
		return State{}, false, err
	}
	if len(vals) == 0 {
		return State{}, false, nil
	}
	round, err := strconv.Atoi(vals["round"])
	if err != nil {
		return State{}, false, fmt.Errorf("parse round: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, vals["dispatched_at"])
	if err != nil {
		return State{}, false, fmt.Errorf("parse dispatched_at: %w", err)
	}
	return State{Round: round, DispatchedAt: at}, true, nil
}

func (s *Store) RecordRound(ctx context.Context, orderID types.ID, st State) error {
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, stateKey(orderID),
		"round", st.Round,
		"dispatched_at", st.DispatchedAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, stateKey(orderID), keyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Lock takes the order's dispatch lock under a fresh token; ok is false when another
// instance holds it.
func (s *Store) Lock(ctx context.Context, orderID types.ID, ttl time.Duration) (string, bool, error) {
	token := string(types.NewID())
	ok, err := s.redis.SetNX(ctx, lockKey(orderID), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// Unlock releases the lock if it still carries token. A lock that expired and was taken
// by another instance is left alone.
func (s *Store) Unlock(ctx context.Context, orderID types.ID, token string) error {
	return unlockScript.Run(ctx, s.redis, []string{lockKey(orderID)}, token).Err()
}

func (s *Store) Forget(ctx context.Context, orderID types.ID) error {
	return s.redis.Del(ctx, stateKey(orderID)).Err()
}

func stateKey(orderID types.ID) string {
	return fmt.Sprintf(stateKeyPrefix, string(orderID))
}

func lockKey(orderID types.ID) string {
	return fmt.Sprintf(lockKeyPrefix, string(orderID))
}
