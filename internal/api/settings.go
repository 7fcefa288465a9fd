package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chrismgala/verifly/internal/middleware"
	"github.com/chrismgala/verifly/internal/models"
	"github.com/chrismgala/verifly/internal/response"
	"github.com/chrismgala/verifly/pkg/logging"
)

// shopSettings is the merchant-editable slice of the shop record.
type shopSettings struct {
	VerificationsEnabled *bool    `json:"verifications_enabled,omitempty"`
	TriggerPrice         *float64 `json:"trigger_price,omitempty"`
	VerificationFlow     *string  `json:"verification_flow,omitempty"`
	SetupComplete        *bool    `json:"setup_complete,omitempty"`
	LogoURL              *string  `json:"logo_url,omitempty"`
	BrandColor           *string  `json:"brand_color,omitempty"`
	EmailDomain          *string  `json:"email_domain,omitempty"`
}

// GetSettings returns the shop's verification settings.
func (a *API) GetSettings(c *gin.Context) {
	shop, ok := middleware.ShopFromContext(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Shop not authenticated")
		return
	}

	response.SuccessJSON(c, gin.H{
		"verifications_enabled":      shop.VerificationsEnabled,
		"trigger_price":              shop.TriggerPrice,
		"verification_flow":          shop.VerificationFlow,
		"setup_complete":             shop.SetupComplete,
		"test_verification_sent":     shop.TestVerificationSent,
		"monthly_verification_count": shop.MonthlyVerificationCount,
		"logo_url":                   shop.LogoURL,
		"brand_color":                shop.BrandColor,
		"email_domain":               shop.EmailDomain,
	})
}

// UpdateSettings applies a partial settings update. Absent fields keep
// their current values.
func (a *API) UpdateSettings(c *gin.Context) {
	shop, ok := middleware.ShopFromContext(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Shop not authenticated")
		return
	}

	var req shopSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid settings payload")
		return
	}

	updates := map[string]interface{}{}
	if req.VerificationsEnabled != nil {
		updates["verifications_enabled"] = *req.VerificationsEnabled
	}
	if req.TriggerPrice != nil {
		if *req.TriggerPrice < 0 {
			response.ErrorJSON(c, http.StatusBadRequest, "Trigger price must not be negative")
			return
		}
		updates["trigger_price"] = *req.TriggerPrice
	}
	if req.VerificationFlow != nil {
		if *req.VerificationFlow != models.FlowPostCheckout && *req.VerificationFlow != models.FlowPreCheckout {
			response.ErrorJSON(c, http.StatusBadRequest, "Unknown verification flow")
			return
		}
		updates["verification_flow"] = *req.VerificationFlow
	}
	if req.SetupComplete != nil {
		updates["setup_complete"] = *req.SetupComplete
	}
	if req.LogoURL != nil {
		updates["logo_url"] = *req.LogoURL
	}
	if req.BrandColor != nil {
		updates["brand_color"] = *req.BrandColor
	}
	if req.EmailDomain != nil {
		updates["email_domain"] = *req.EmailDomain
	}

	if len(updates) == 0 {
		response.ErrorJSON(c, http.StatusBadRequest, "No settings provided")
		return
	}

	if err := a.db.Model(shop).Updates(updates).Error; err != nil {
		logging.Errorf("[Settings] Failed to update - shop: %d, error: %v", shop.ID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to update settings")
		return
	}

	logging.Infof("[Settings] Updated settings - shop: %d", shop.ID)
	response.SuccessJSON(c, gin.H{"updated": len(updates)})
}
