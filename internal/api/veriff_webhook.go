package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chrismgala/verifly/internal/metrics"
	"github.com/chrismgala/verifly/internal/models"
	"github.com/chrismgala/verifly/internal/services"
	"github.com/chrismgala/verifly/pkg/logging"
)

// veriffDecisionPayload is the decision webhook body. The session id
// lives at the top level on newer payloads and under data.verification
// on older ones.
type veriffDecisionPayload struct {
	VendorData string `json:"vendorData"`
	SessionID  string `json:"sessionId"`
	Data       struct {
		Verification struct {
			ID       string `json:"id"`
			Decision string `json:"decision"`
		} `json:"verification"`
	} `json:"data"`
}

// VeriffWebhook handles decision callbacks from Veriff. The HMAC
// signature is checked against the raw body before anything is parsed.
func (a *API) VeriffWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	rawBody, err := c.GetRawData()
	if err != nil || len(rawBody) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Failed to read request body"})
		return
	}

	signature := c.GetHeader("x-hmac-signature")
	if !a.veriff.IsSignatureValid(rawBody, signature) {
		metrics.WebhookSignatureFailuresTotal.WithLabelValues("veriff").Inc()
		logging.Errorf("[Veriff Webhook] Invalid signature")
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid signature"})
		return
	}

	if a.dedupe.Seen(ctx, "veriff", rawBody) {
		logging.Infof("[Veriff Webhook] Duplicate delivery, skipping")
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	var payload veriffDecisionPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid payload"})
		return
	}

	sessionID := payload.SessionID
	if sessionID == "" {
		sessionID = payload.Data.Verification.ID
	}

	status, ok := models.StatusFromVeriffDecision(payload.Data.Verification.Decision)
	if !ok {
		logging.Errorf("[Veriff Webhook] Unknown decision %q - session: %s", payload.Data.Verification.Decision, sessionID)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Unknown decision"})
		return
	}

	// Pre-checkout sessions carry the shopper's email as vendor data
	// instead of a correlation token.
	if strings.Contains(payload.VendorData, "@") {
		verification, err := a.orchestrator.ReconcilePreCheckout(ctx, payload.VendorData, sessionID, status)
		if err != nil {
			a.renderReconcileError(c, "veriff", sessionID, err)
			return
		}
		a.dedupe.Mark(ctx, "veriff", rawBody)
		metrics.DecisionsReconciledTotal.WithLabelValues("veriff", string(status)).Inc()
		c.JSON(http.StatusOK, gin.H{"success": true, "verification_id": verification.ID})
		return
	}

	verification, err := a.orchestrator.ReconcileDecision(ctx, services.Decision{
		CorrelationToken: payload.VendorData,
		SessionID:        sessionID,
		Status:           status,
	})
	if err != nil {
		a.renderReconcileError(c, "veriff", sessionID, err)
		return
	}

	a.dedupe.Mark(ctx, "veriff", rawBody)
	metrics.DecisionsReconciledTotal.WithLabelValues("veriff", string(status)).Inc()
	c.JSON(http.StatusOK, gin.H{"success": true, "verification_id": verification.ID})
}

func (a *API) renderReconcileError(c *gin.Context, provider, sessionID string, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrSessionMismatch):
		logging.Errorf("[%s Webhook] No matching verification - session: %s, error: %v", provider, sessionID, err)
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Verification not found"})
	case errors.Is(err, services.ErrTerminal):
		logging.Errorf("[%s Webhook] Conflicting terminal status - session: %s", provider, sessionID)
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "Verification already finalized"})
	default:
		logging.Errorf("[%s Webhook] Failed to reconcile decision - session: %s, error: %v", provider, sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to process decision"})
	}
}
