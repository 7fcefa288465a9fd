package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chrismgala/verifly/internal/metrics"
	"github.com/chrismgala/verifly/internal/middleware"
	"github.com/chrismgala/verifly/internal/models"
	"github.com/chrismgala/verifly/internal/response"
	"github.com/chrismgala/verifly/pkg/logging"
)

// SendTestVerification sends the merchant a one-off verification email
// against a real Stripe Identity session so they can walk the shopper
// flow themselves. Allowed once per shop.
func (a *API) SendTestVerification(c *gin.Context) {
	ctx := c.Request.Context()

	shop, ok := middleware.ShopFromContext(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Shop not authenticated")
		return
	}

	if shop.TestVerificationSent {
		response.ErrorJSON(c, http.StatusConflict, "Test verification already sent")
		return
	}
	if shop.Email == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "Shop has no contact email")
		return
	}

	correlationToken := uuid.NewString()
	session, err := a.stripe.CreateVerificationSession(ctx, map[string]string{
		"correlation_token": correlationToken,
		"shop_id":           strconv.FormatUint(uint64(shop.ID), 10),
		"test_verification": "true",
	})
	if err != nil {
		logging.Errorf("[Test Verification] Failed to create session - shop: %d, error: %v", shop.ID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to create verification session")
		return
	}

	verification := models.Verification{
		CorrelationToken: correlationToken,
		SessionID:        &session.ID,
		Provider:         models.ProviderStripe,
		Status:           models.StatusPending,
		Test:             true,
		ShopID:           shop.ID,
	}
	if err := a.db.Create(&verification).Error; err != nil {
		logging.Errorf("[Test Verification] Failed to create record - shop: %d, error: %v", shop.ID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to create verification")
		return
	}

	emailID, err := a.resend.SendTestVerificationEmail(ctx, shop.Email, shop.Name, session.URL)
	if err != nil {
		logging.Errorf("[Test Verification] Failed to send email - shop: %d, error: %v", shop.ID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to send verification email")
		return
	}
	metrics.VerificationEmailsSentTotal.Inc()

	updates := map[string]interface{}{"test_verification_sent": true}
	if err := a.db.Model(shop).Updates(updates).Error; err != nil {
		logging.Errorf("[Test Verification] Failed to mark sent - shop: %d, error: %v", shop.ID, err)
	}
	if err := a.db.Model(&verification).Update("email_id", emailID).Error; err != nil {
		logging.Errorf("[Test Verification] Failed to record email id - verification: %d, error: %v", verification.ID, err)
	}

	logging.Infof("[Test Verification] Sent - shop: %d, session: %s", shop.ID, session.ID)
	response.SuccessJSON(c, gin.H{"verification_id": verification.ID, "session_id": session.ID})
}
