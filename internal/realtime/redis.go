package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NewRedis creates a new Redis client
func NewRedis(addr, password string) *redis.Client {
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	log.Printf("Redis client created (addr: %s)\n", addr)
	return rdb
}

// PublishNotification mirrors a personal-channel event onto the user's
// Redis notification channel. Fire-and-forget: delivery failures are
// logged, never propagated, and a nil client is a no-op (degraded mode).
func PublishNotification(ctx context.Context, rdb *redis.Client, userID uuid.UUID, event interface{}) {
	if rdb == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling notification: %v", err)
		return
	}
	if err := rdb.Publish(ctx, "notifications:"+userID.String(), payload).Err(); err != nil {
		log.Printf("Redis publish failed: %v", err)
	}
}
