package services

import (
	"context"
	"time"

	"github.com/chrismgala/verifly/pkg/logging"
)

// Cooldown rate limits an action per subject inside a fixed window.
// Like the webhook dedupe it records only after the action succeeds, so
// a failed attempt does not burn the subject's window.
type Cooldown struct {
	client RedisCommands
	prefix string
	window time.Duration
}

// NewCooldown creates a cooldown keyed under prefix. A nil client
// disables it.
func NewCooldown(client RedisCommands, prefix string, window time.Duration) *Cooldown {
	return &Cooldown{
		client: client,
		prefix: prefix,
		window: window,
	}
}

func (c *Cooldown) key(subject string) string {
	return c.prefix + ":" + subject
}

// Active reports whether the subject is still inside its window. Redis
// errors fail open.
func (c *Cooldown) Active(ctx context.Context, subject string) bool {
	if c == nil || c.client == nil {
		return false
	}

	n, err := c.client.Exists(ctx, c.key(subject)).Result()
	if err != nil {
		logging.Errorf("Cooldown check failed, allowing: %v", err)
		return false
	}

	return n > 0
}

// Touch starts the subject's window. Call it after the action succeeded.
func (c *Cooldown) Touch(ctx context.Context, subject string) {
	if c == nil || c.client == nil {
		return
	}

	if err := c.client.Set(ctx, c.key(subject), time.Now().Unix(), c.window).Err(); err != nil {
		logging.Errorf("Cooldown touch failed: %v", err)
	}
}
