package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chrismgala/verifly/internal/metrics"
	"github.com/chrismgala/verifly/internal/models"
	"github.com/chrismgala/verifly/internal/services"
	"github.com/chrismgala/verifly/pkg/logging"
)

// StripeWebhook handles identity.verification_session.* events. Event
// types with no status mapping are acknowledged so Stripe stops
// redelivering them.
func (a *API) StripeWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	rawBody, err := c.GetRawData()
	if err != nil || len(rawBody) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Failed to read request body"})
		return
	}

	event, err := a.stripe.ConstructEvent(rawBody, c.GetHeader("Stripe-Signature"))
	if err != nil {
		metrics.WebhookSignatureFailuresTotal.WithLabelValues("stripe").Inc()
		logging.Errorf("[Stripe Webhook] Signature verification failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid signature"})
		return
	}

	if a.dedupe.Seen(ctx, "stripe", rawBody) {
		logging.Infof("[Stripe Webhook] Duplicate delivery, skipping - event: %s", event.ID)
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	status, ok := models.StatusFromStripeEvent(event.Type)
	if !ok {
		logging.Infof("[Stripe Webhook] Ignoring event type %s", event.Type)
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	session := event.Data.Object
	verification, err := a.orchestrator.ReconcileDecision(ctx, services.Decision{
		CorrelationToken: session.Metadata["correlation_token"],
		SessionID:        session.ID,
		Status:           status,
	})
	if err != nil {
		a.renderReconcileError(c, "stripe", session.ID, err)
		return
	}

	a.dedupe.Mark(ctx, "stripe", rawBody)
	metrics.DecisionsReconciledTotal.WithLabelValues("stripe", string(status)).Inc()
	c.JSON(http.StatusOK, gin.H{"success": true, "verification_id": verification.ID})
}
