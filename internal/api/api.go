package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"

	"gorm.io/gorm"

	"github.com/chrismgala/verifly/internal/config"
	"github.com/chrismgala/verifly/internal/services"
)

// API bundles the handler dependencies. Handlers are methods on it so
// tests can wire in an in-memory database and local provider servers.
type API struct {
	db  *gorm.DB
	cfg *config.Config

	veriff       *services.VeriffClient
	stripe       *services.StripeClient
	shopify      *services.ShopifyClient
	resend       *services.ResendClient
	orchestrator *services.Orchestrator
	dedupe       *services.WebhookDedupe
	cooldown     *services.Cooldown
}

// NewAPI creates the handler set
func NewAPI(db *gorm.DB, cfg *config.Config, redisClient services.RedisCommands,
	veriff *services.VeriffClient, stripe *services.StripeClient,
	shopify *services.ShopifyClient, resend *services.ResendClient,
	orchestrator *services.Orchestrator, dedupe *services.WebhookDedupe) *API {
	return &API{
		db:           db,
		cfg:          cfg,
		veriff:       veriff,
		stripe:       stripe,
		shopify:      shopify,
		resend:       resend,
		orchestrator: orchestrator,
		dedupe:       dedupe,
		cooldown:     services.NewCooldown(redisClient, "resend_verification", resendCooldown),
	}
}

// isShopifySignatureValid verifies the X-Shopify-Hmac-Sha256 header: a
// base64 HMAC-SHA256 digest of the raw, unparsed request body.
func isShopifySignatureValid(rawBody []byte, signature, secret string) bool {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// shopIDFromStatusURL extracts the platform shop id from an order status
// URL (the first path segment). Compat shim for webhooks arriving
// without the explicit shop-domain header.
func shopIDFromStatusURL(statusURL string) string {
	parsed, err := url.Parse(statusURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.TrimPrefix(parsed.Path, "/"), "/")
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}
