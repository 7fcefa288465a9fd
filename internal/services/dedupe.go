package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chrismgala/verifly/pkg/logging"
)

// RedisCommands is the slice of the Redis API the dedupe and cooldown
// guards use. *redis.Client satisfies it; tests stub it.
type RedisCommands interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// WebhookDedupe remembers successfully processed webhook deliveries so
// at-least-once redelivery of an identical payload can be acknowledged
// without reprocessing. Keys are content hashes of the raw body with a
// bounded TTL; reconciliation itself is idempotent, so this is an
// optimization and a replay guard, not a correctness requirement.
//
// A delivery is only marked after processing succeeds. Marking on
// arrival would make a transient processing failure permanent: the
// provider's byte-identical retry would hit the key and be acked
// without the decision ever being applied.
type WebhookDedupe struct {
	client RedisCommands
	ttl    time.Duration
}

// NewWebhookDedupe creates a new dedupe guard. A nil client disables it.
func NewWebhookDedupe(client RedisCommands, ttl time.Duration) *WebhookDedupe {
	return &WebhookDedupe{
		client: client,
		ttl:    ttl,
	}
}

func dedupeKey(provider string, rawBody []byte) string {
	hash := sha256.Sum256(rawBody)
	return fmt.Sprintf("webhook_seen:%s:%s", provider, hex.EncodeToString(hash[:]))
}

// Seen reports whether an identical delivery was already processed
// inside the TTL window. Read-only; it never records anything. Redis
// errors fail open: a degraded cache must not drop webhooks.
func (d *WebhookDedupe) Seen(ctx context.Context, provider string, rawBody []byte) bool {
	if d == nil || d.client == nil {
		return false
	}

	n, err := d.client.Exists(ctx, dedupeKey(provider, rawBody)).Result()
	if err != nil {
		logging.Errorf("Webhook dedupe check failed, processing anyway: %v", err)
		return false
	}

	return n > 0
}

// Mark records a delivery as processed. Called only after a handler
// finished successfully; failures are logged and swallowed since a
// missed mark just means one redundant idempotent reprocess.
func (d *WebhookDedupe) Mark(ctx context.Context, provider string, rawBody []byte) {
	if d == nil || d.client == nil {
		return
	}

	if err := d.client.Set(ctx, dedupeKey(provider, rawBody), time.Now().Unix(), d.ttl).Err(); err != nil {
		logging.Errorf("Webhook dedupe mark failed: %v", err)
	}
}
