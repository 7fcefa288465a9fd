package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chrismgala/verifly/internal/models"
	"github.com/chrismgala/verifly/internal/response"
	"github.com/chrismgala/verifly/pkg/logging"
)

type installShopRequest struct {
	PlatformShopID string `json:"platform_shop_id" binding:"required"`
	Domain         string `json:"domain" binding:"required"`
	Name           string `json:"name"`
	Email          string `json:"email"`
}

// InstallShop registers a store on app install. Reinstalling a
// previously removed store reactivates the existing row and rotates its
// API key.
func (a *API) InstallShop(c *gin.Context) {
	var req installShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "platform_shop_id and domain required")
		return
	}

	apiKey := uuid.NewString()
	now := time.Now()

	var existing models.Shop
	err := a.db.Unscoped().Where("platform_shop_id = ?", req.PlatformShopID).First(&existing).Error
	if err == nil {
		updates := map[string]interface{}{
			"domain":     req.Domain,
			"name":       req.Name,
			"email":      req.Email,
			"api_key":    apiKey,
			"installed":  true,
			"deleted_at": nil,
		}
		if existing.TrialStartedAt == nil {
			updates["trial_started_at"] = now
		}
		if err := a.db.Unscoped().Model(&existing).Updates(updates).Error; err != nil {
			logging.Errorf("[Shops] Failed to reinstall - shop: %d, error: %v", existing.ID, err)
			response.ErrorJSON(c, http.StatusInternalServerError, "Failed to install shop")
			return
		}
		logging.Infof("[Shops] Reinstalled - shop: %d, domain: %s", existing.ID, req.Domain)
		response.SuccessJSON(c, gin.H{"shop_id": existing.ID, "api_key": apiKey})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to install shop")
		return
	}

	shop := models.Shop{
		PlatformShopID:       req.PlatformShopID,
		Domain:               req.Domain,
		Name:                 req.Name,
		Email:                req.Email,
		APIKey:               apiKey,
		VerificationsEnabled: true,
		TriggerPrice:         a.cfg.TriggerPriceDefault,
		VerificationFlow:     models.FlowPostCheckout,
		TrialStartedAt:       &now,
		Installed:            true,
	}

	var plan models.Plan
	if err := a.db.Where("visible = ?", true).Order("price ASC").First(&plan).Error; err == nil {
		shop.PlanID = &plan.ID
	}

	if err := a.db.Create(&shop).Error; err != nil {
		logging.Errorf("[Shops] Failed to install - domain: %s, error: %v", req.Domain, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to install shop")
		return
	}

	logging.Infof("[Shops] Installed - shop: %d, domain: %s", shop.ID, shop.Domain)
	response.SuccessJSON(c, gin.H{"shop_id": shop.ID, "api_key": apiKey})
}

// UninstallShop deactivates a store on app removal. The row is kept so
// reinstalls retain history, but billing state is cleared.
func (a *API) UninstallShop(c *gin.Context) {
	shopID := c.Param("shopId")

	var shop models.Shop
	if err := a.db.Where("id = ?", shopID).First(&shop).Error; err != nil {
		response.ErrorJSON(c, http.StatusNotFound, "Shop not found")
		return
	}

	updates := map[string]interface{}{
		"installed":                              false,
		"active_recurring_subscription_id":       "",
		"active_usage_subscription_line_item_id": "",
		"monthly_verification_count":             0,
		"plan_id":                                nil,
		"trial_started_at":                       nil,
	}
	if err := a.db.Model(&shop).Updates(updates).Error; err != nil {
		logging.Errorf("[Shops] Failed to uninstall - shop: %d, error: %v", shop.ID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to uninstall shop")
		return
	}

	logging.Infof("[Shops] Uninstalled - shop: %d, domain: %s", shop.ID, shop.Domain)
	response.SuccessJSON(c, gin.H{"uninstalled": true})
}
