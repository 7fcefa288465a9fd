package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chrismgala/verifly/internal/models"
	"github.com/chrismgala/verifly/internal/response"
	"github.com/chrismgala/verifly/internal/services"
	"github.com/chrismgala/verifly/pkg/logging"
)

// ProxyVerificationStatus serves the storefront widget in the
// pre-checkout flow. It reports the shopper's current status and hands
// out a short-lived token for the follow-up status confirmation call.
// Unknown shoppers are lazily created as unverified.
func (a *API) ProxyVerificationStatus(c *gin.Context) {
	shopID := c.Param("shopId")
	email := c.Param("email")
	if email == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "Email required")
		return
	}

	var shop models.Shop
	if err := a.db.Where("id = ? AND installed = ?", shopID, true).First(&shop).Error; err != nil {
		response.ErrorJSON(c, http.StatusNotFound, "Shop not found")
		return
	}

	var customer models.Customer
	err := a.db.Where("shop_id = ? AND email = ?", shop.ID, email).
		Order("created_at DESC").
		First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		customer = models.Customer{
			ShopID: shop.ID,
			Email:  email,
			Status: models.StatusUnverified,
		}
		if err := a.db.Create(&customer).Error; err != nil {
			logging.Errorf("[Proxy] Failed to create customer - shop: %d, error: %v", shop.ID, err)
			response.ErrorJSON(c, http.StatusInternalServerError, "Failed to look up verification status")
			return
		}
	} else if err != nil {
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to look up verification status")
		return
	}

	token, err := services.CreateUserToken(a.cfg.JWTSecret, shop.ID, email)
	if err != nil {
		logging.Errorf("[Proxy] Failed to issue token - shop: %d, error: %v", shop.ID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	response.SuccessJSON(c, gin.H{
		"status":   customer.Status,
		"verified": customer.Status == models.StatusApproved,
		"token":    token,
	})
}

type proxyStatusRequest struct {
	Token string `json:"token"`
}

// ProxyConfirmStatus validates a widget token and confirms whether the
// shopper it was minted for is approved. The token's shop claim must
// match the shop in the URL.
func (a *API) ProxyConfirmStatus(c *gin.Context) {
	shopID := c.Param("shopId")

	var shop models.Shop
	if err := a.db.Where("id = ? AND installed = ?", shopID, true).First(&shop).Error; err != nil {
		response.ErrorJSON(c, http.StatusNotFound, "Shop not found")
		return
	}

	var req proxyStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "Token required")
		return
	}

	claims, err := services.VerifyUserToken(a.cfg.JWTSecret, req.Token)
	if err != nil {
		response.ErrorJSON(c, http.StatusUnauthorized, "Invalid token")
		return
	}
	if claims.ShopID != shop.ID {
		response.ErrorJSON(c, http.StatusUnauthorized, "Invalid token")
		return
	}

	var customer models.Customer
	err = a.db.Where("shop_id = ? AND email = ?", shop.ID, claims.Email).
		Order("created_at DESC").
		First(&customer).Error
	if err != nil {
		response.ErrorJSON(c, http.StatusNotFound, "Customer not found")
		return
	}

	response.SuccessJSON(c, gin.H{
		"status":   customer.Status,
		"verified": customer.Status == models.StatusApproved,
	})
}
