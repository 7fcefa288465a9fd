package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chrismgala/verifly/internal/metrics"
	"github.com/chrismgala/verifly/internal/middleware"
	"github.com/chrismgala/verifly/internal/models"
	"github.com/chrismgala/verifly/internal/response"
	"github.com/chrismgala/verifly/internal/services"
	"github.com/chrismgala/verifly/pkg/logging"
)

// Resends are rate limited per session so a merchant clicking the button
// repeatedly does not spam the shopper.
const resendCooldown = 5 * time.Minute

type resendVerificationRequest struct {
	VerificationSessionID string `json:"verification_session_id"`
}

// ResendVerification re-sends the verification email for a pending
// session.
func (a *API) ResendVerification(c *gin.Context) {
	ctx := c.Request.Context()

	shop, ok := middleware.ShopFromContext(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Shop not authenticated")
		return
	}

	var req resendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.VerificationSessionID == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "verification_session_id required")
		return
	}

	var verification models.Verification
	if err := a.db.Where("session_id = ? AND shop_id = ?", req.VerificationSessionID, shop.ID).
		First(&verification).Error; err != nil {
		response.ErrorJSON(c, http.StatusNotFound, "Verification not found")
		return
	}
	if verification.Status.Terminal() {
		response.ErrorJSON(c, http.StatusConflict, "Verification already finalized")
		return
	}

	// The window is only started after a send succeeds, so a failed
	// attempt can be retried immediately.
	if a.cooldown.Active(ctx, req.VerificationSessionID) {
		response.ErrorJSON(c, http.StatusTooManyRequests, "Verification email recently sent")
		return
	}

	var hostedURL string
	switch verification.Provider {
	case models.ProviderStripe:
		session, err := a.stripe.RetrieveVerificationSession(ctx, req.VerificationSessionID)
		if err != nil {
			logging.Errorf("[Resend Verification] Failed to retrieve session - session: %s, error: %v", req.VerificationSessionID, err)
			response.ErrorJSON(c, http.StatusInternalServerError, "Failed to retrieve verification session")
			return
		}
		hostedURL = session.URL
	default:
		response.ErrorJSON(c, http.StatusBadRequest, "Resend not supported for this provider")
		return
	}

	if verification.Test {
		emailID, err := a.resend.SendTestVerificationEmail(ctx, shop.Email, shop.Name, hostedURL)
		if err != nil {
			logging.Errorf("[Resend Verification] Failed to send email - session: %s, error: %v", req.VerificationSessionID, err)
			response.ErrorJSON(c, http.StatusInternalServerError, "Failed to send verification email")
			return
		}
		a.cooldown.Touch(ctx, req.VerificationSessionID)
		metrics.VerificationEmailsSentTotal.Inc()
		a.db.Model(&verification).Update("email_id", emailID)
		response.SuccessJSON(c, gin.H{"resent": true})
		return
	}

	if verification.CustomerID == nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Verification has no customer")
		return
	}
	var customer models.Customer
	if err := a.db.First(&customer, *verification.CustomerID).Error; err != nil {
		response.ErrorJSON(c, http.StatusNotFound, "Customer not found")
		return
	}

	var orderName string
	if verification.OrderID != nil {
		var order models.Order
		if err := a.db.First(&order, *verification.OrderID).Error; err == nil {
			orderName = order.Name
		}
	}

	emailID, err := a.resend.SendVerificationEmail(ctx, services.VerificationEmail{
		To:           customer.Email,
		ShopName:     shop.Name,
		CustomerName: customer.FullName(),
		OrderNumber:  orderName,
		URL:          hostedURL,
	})
	if err != nil {
		logging.Errorf("[Resend Verification] Failed to send email - session: %s, error: %v", req.VerificationSessionID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to send verification email")
		return
	}
	a.cooldown.Touch(ctx, req.VerificationSessionID)
	metrics.VerificationEmailsSentTotal.Inc()
	a.db.Model(&verification).Update("email_id", emailID)

	logging.Infof("[Resend Verification] Resent - verification: %d, shop: %d", verification.ID, shop.ID)
	response.SuccessJSON(c, gin.H{"resent": true})
}
