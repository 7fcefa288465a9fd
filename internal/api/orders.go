package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chrismgala/verifly/internal/metrics"
	"github.com/chrismgala/verifly/internal/models"
	"github.com/chrismgala/verifly/internal/services"
	"github.com/chrismgala/verifly/pkg/logging"
)

// orderWebhookPayload is the commerce platform's orders/create payload,
// limited to the fields this subsystem reads.
type orderWebhookPayload struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	TotalPrice     string `json:"total_price"`
	Currency       string `json:"currency"`
	OrderStatusURL string `json:"order_status_url"`
	Customer       struct {
		ID        int64  `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"customer"`
	LineItems []struct {
		ProductID int64 `json:"product_id"`
		VariantID int64 `json:"variant_id"`
	} `json:"line_items"`
	ShippingAddress json.RawMessage `json:"shipping_address"`
	BillingAddress  json.RawMessage `json:"billing_address"`
}

// OrderCreatedWebhook ingests the orders/create webhook: upserts the
// order and customer, evaluates eligibility, and when verification is
// required starts a session and emails the customer the hosted URL.
func (a *API) OrderCreatedWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	rawBody, err := c.GetRawData()
	if err != nil || len(rawBody) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Failed to read request body"})
		return
	}

	if a.cfg.ShopifyWebhookSecret != "" {
		signature := c.GetHeader("X-Shopify-Hmac-Sha256")
		if !isShopifySignatureValid(rawBody, signature, a.cfg.ShopifyWebhookSecret) {
			metrics.WebhookSignatureFailuresTotal.WithLabelValues("shopify").Inc()
			logging.Errorf("[Orders Create] Invalid webhook signature")
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid signature"})
			return
		}
	}

	metrics.OrdersIngestedTotal.Inc()

	var payload orderWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid payload"})
		return
	}

	shop, err := a.resolveShop(c.GetHeader("X-Shopify-Shop-Domain"), payload.OrderStatusURL)
	if err != nil {
		logging.Errorf("[Orders Create] Unknown shop - order: %d, error: %v", payload.ID, err)
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Shop not found"})
		return
	}

	customer, err := a.upsertCustomer(shop, &payload)
	if err != nil {
		logging.Errorf("[Orders Create] Failed to upsert customer - order: %d, error: %v", payload.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to save customer"})
		return
	}

	order, err := a.upsertOrder(shop, customer, &payload)
	if err != nil {
		logging.Errorf("[Orders Create] Failed to upsert order - order: %d, error: %v", payload.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to save order"})
		return
	}

	logging.Infof("[Orders Create] Ingested order %s for shop %d", payload.Name, shop.ID)

	if payload.Customer.Email == "" {
		logging.Warnf("[Orders Create] Abort verification - no customer email, order: %d", payload.ID)
		c.JSON(http.StatusOK, gin.H{"success": true, "verification_required": false})
		return
	}

	flaggedItems, shopHasFlags := a.countFlaggedItems(shop, &payload)

	if !services.ShouldRequireVerification(shop, order, customer, flaggedItems, shopHasFlags) {
		logging.Infof("[Orders Create] Verification not required - order: %d", payload.ID)
		c.JSON(http.StatusOK, gin.H{"success": true, "verification_required": false})
		return
	}

	verification, hostedURL, err := a.orchestrator.StartVerification(ctx, shop, customer, order)
	if errors.Is(err, services.ErrAlreadyStarted) {
		logging.Infof("[Orders Create] Verification already exists - order: %d, verification: %d", payload.ID, verification.ID)
		c.JSON(http.StatusOK, gin.H{"success": true, "verification_required": true, "verification_id": verification.ID})
		return
	}
	if err != nil {
		logging.Errorf("[Orders Create] Failed to start verification - order: %d, error: %v", payload.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to start verification"})
		return
	}

	metrics.VerificationsStartedTotal.Inc()

	emailID, err := a.resend.SendVerificationEmail(ctx, services.VerificationEmail{
		To:           customer.Email,
		ShopName:     shop.Name,
		CustomerName: customer.FullName(),
		OrderNumber:  order.Name,
		URL:          hostedURL,
	})
	if err != nil {
		// The verification is live; the merchant can resend from the admin.
		logging.Errorf("[Orders Create] Failed to send verification email - order: %d, error: %v", payload.ID, err)
	} else {
		metrics.VerificationEmailsSentTotal.Inc()
		if err := a.orchestrator.AttachEmailID(ctx, verification.ID, emailID); err != nil {
			logging.Errorf("[Orders Create] Failed to record email id - verification: %d, error: %v", verification.ID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":               true,
		"verification_required": true,
		"verification_id":       verification.ID,
	})
}

// resolveShop locates the tenant for a webhook. The explicit shop-domain
// header wins; parsing the order status URL is the legacy fallback.
func (a *API) resolveShop(shopDomain, statusURL string) (*models.Shop, error) {
	var shop models.Shop

	if shopDomain != "" {
		if err := a.db.Where("domain = ?", shopDomain).First(&shop).Error; err == nil {
			return &shop, nil
		}
	}

	platformShopID := shopIDFromStatusURL(statusURL)
	if platformShopID == "" {
		return nil, gorm.ErrRecordNotFound
	}

	if err := a.db.Where("platform_shop_id = ?", platformShopID).First(&shop).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (a *API) upsertCustomer(shop *models.Shop, payload *orderWebhookPayload) (*models.Customer, error) {
	var customer models.Customer
	err := a.db.Where("shop_id = ? AND platform_customer_id = ?", shop.ID, payload.Customer.ID).
		First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// A widget-created customer exists only by email; adopt the
		// platform id on their first order instead of creating a twin.
		err = a.db.Where("shop_id = ? AND email = ? AND platform_customer_id IS NULL",
			shop.ID, payload.Customer.Email).
			First(&customer).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		customer = models.Customer{
			ShopID:             shop.ID,
			PlatformCustomerID: &payload.Customer.ID,
			Email:              payload.Customer.Email,
			FirstName:          payload.Customer.FirstName,
			LastName:           payload.Customer.LastName,
			Status:             models.StatusUnverified,
		}
		if err := a.db.Create(&customer).Error; err != nil {
			return nil, err
		}
		return &customer, nil
	}
	if err != nil {
		return nil, err
	}

	// Refresh contact fields only; status belongs to the orchestrator.
	updates := map[string]interface{}{
		"platform_customer_id": payload.Customer.ID,
		"email":                payload.Customer.Email,
		"first_name":           payload.Customer.FirstName,
		"last_name":            payload.Customer.LastName,
	}
	if err := a.db.Model(&customer).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (a *API) upsertOrder(shop *models.Shop, customer *models.Customer, payload *orderWebhookPayload) (*models.Order, error) {
	var order models.Order
	err := a.db.Where("platform_order_id = ?", payload.ID).First(&order).Error
	if err == nil {
		return &order, nil // duplicate delivery
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	totalPrice, err := strconv.ParseFloat(payload.TotalPrice, 64)
	if err != nil {
		// A zero total can skip the price gate, so the drop has to be
		// visible in the logs.
		logging.Errorf("[Order Webhook] Unparsable total_price %q, treating as 0 - order: %d, shop: %d", payload.TotalPrice, payload.ID, shop.ID)
		totalPrice = 0
	}

	order = models.Order{
		PlatformOrderID: payload.ID,
		Name:            payload.Name,
		TotalPrice:      totalPrice,
		Currency:        payload.Currency,
		ShippingAddress: string(payload.ShippingAddress),
		BillingAddress:  string(payload.BillingAddress),
		OrderStatusURL:  payload.OrderStatusURL,
		ShopID:          shop.ID,
		CustomerID:      customer.ID,
	}
	if err := a.db.Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// countFlaggedItems returns how many ordered items are flagged for
// verification, and whether the shop flags anything at all (a shop with
// no flags gates on price alone).
func (a *API) countFlaggedItems(shop *models.Shop, payload *orderWebhookPayload) (int, bool) {
	var productIDs, variantIDs []int64
	for _, item := range payload.LineItems {
		productIDs = append(productIDs, item.ProductID)
		variantIDs = append(variantIDs, item.VariantID)
	}

	var flaggedProducts, flaggedVariants int64
	a.db.Model(&models.Product{}).
		Where("shop_id = ? AND needs_verification = ?", shop.ID, true).
		Count(&flaggedProducts)
	a.db.Model(&models.ProductVariant{}).
		Joins("JOIN product ON product.id = product_variant.product_id").
		Where("product.shop_id = ? AND product_variant.needs_verification = ?", shop.ID, true).
		Count(&flaggedVariants)

	shopHasFlags := flaggedProducts+flaggedVariants > 0
	if !shopHasFlags {
		return 0, false
	}

	var orderedFlagged int64
	if len(productIDs) > 0 {
		a.db.Model(&models.Product{}).
			Where("shop_id = ? AND needs_verification = ? AND platform_product_id IN ?", shop.ID, true, productIDs).
			Count(&orderedFlagged)
	}

	var orderedFlaggedVariants int64
	if len(variantIDs) > 0 {
		a.db.Model(&models.ProductVariant{}).
			Joins("JOIN product ON product.id = product_variant.product_id").
			Where("product.shop_id = ? AND product_variant.needs_verification = ? AND product_variant.platform_variant_id IN ?", shop.ID, true, variantIDs).
			Count(&orderedFlaggedVariants)
	}

	return int(orderedFlagged + orderedFlaggedVariants), true
}
