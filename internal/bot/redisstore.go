package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// dialogTTL bounds how long an idle conversation's state survives in Redis;
// a stale chat reverts to a fresh ViewActive dialog on its next /start.
const dialogTTL = 24 * time.Hour

// RedisDialogStore is the multi-replica alternative to DialogStore: instead
// of an in-process LRU, conversation state lives in Redis so any console
// replica can serve the next update for a chat, grounded on the teacher's
// internal/infrastructure/cache/redis.go wrapping go-redis for keyed,
// TTL'd JSON blobs.
type RedisDialogStore struct {
	client *redis.Client
}

// NewRedisDialogStore builds a RedisDialogStore over an already-connected
// client; the caller owns the client's lifecycle (release-machine shares one
// client across the rollback lock and the console).
func NewRedisDialogStore(client *redis.Client) *RedisDialogStore {
	return &RedisDialogStore{client: client}
}

func dialogKey(chatID int64) string {
	return fmt.Sprintf("console:dialog:%d", chatID)
}

// Get returns the dialog state for chatID, creating an empty one (view
// ViewActive) if absent or if the stored value has expired or is corrupt.
func (s *RedisDialogStore) Get(chatID int64) *DialogState {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, dialogKey(chatID)).Bytes()
	if err != nil {
		return &DialogState{View: ViewActive}
	}

	var st DialogState
	if err := json.Unmarshal(raw, &st); err != nil {
		return &DialogState{View: ViewActive}
	}
	return &st
}

// Set overwrites the dialog state for chatID, refreshing its TTL.
func (s *RedisDialogStore) Set(chatID int64, st *DialogState) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	s.client.Set(ctx, dialogKey(chatID), data, dialogTTL)
}
