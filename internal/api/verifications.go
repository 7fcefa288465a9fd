package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chrismgala/verifly/internal/middleware"
	"github.com/chrismgala/verifly/internal/models"
	"github.com/chrismgala/verifly/internal/response"
	"github.com/chrismgala/verifly/internal/services"
	"github.com/chrismgala/verifly/pkg/logging"
)

// verificationListEntry flattens a verification with its customer and
// order for the admin dashboard.
type verificationListEntry struct {
	ID            uint          `json:"id"`
	Status        models.Status `json:"status"`
	Provider      string        `json:"provider"`
	SessionID     string        `json:"session_id,omitempty"`
	Test          bool          `json:"test"`
	CreatedAt     string        `json:"created_at"`
	CustomerName  string        `json:"customer_name,omitempty"`
	CustomerEmail string        `json:"customer_email,omitempty"`
	OrderName     string        `json:"order_name,omitempty"`
	OrderTotal    float64       `json:"order_total,omitempty"`
}

// ListVerifications returns the authenticated shop's verifications,
// newest first.
func (a *API) ListVerifications(c *gin.Context) {
	shop, ok := middleware.ShopFromContext(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Shop not authenticated")
		return
	}

	var verifications []models.Verification
	if err := a.db.Where("shop_id = ?", shop.ID).
		Order("created_at DESC").
		Find(&verifications).Error; err != nil {
		logging.Errorf("[Verifications] Failed to list - shop: %d, error: %v", shop.ID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to load verifications")
		return
	}

	entries := make([]verificationListEntry, 0, len(verifications))
	for _, v := range verifications {
		entry := verificationListEntry{
			ID:        v.ID,
			Status:    v.Status,
			Provider:  v.Provider,
			Test:      v.Test,
			CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if v.SessionID != nil {
			entry.SessionID = *v.SessionID
		}
		if v.CustomerID != nil {
			var customer models.Customer
			if err := a.db.First(&customer, *v.CustomerID).Error; err == nil {
				entry.CustomerName = customer.FullName()
				entry.CustomerEmail = customer.Email
			}
		}
		if v.OrderID != nil {
			var order models.Order
			if err := a.db.First(&order, *v.OrderID).Error; err == nil {
				entry.OrderName = order.Name
				entry.OrderTotal = order.TotalPrice
			}
		}
		entries = append(entries, entry)
	}

	response.SuccessJSON(c, entries)
}

// verificationResult bundles the provider decision with captured media
// as data URLs for inline display.
type verificationResult struct {
	ID       uint                   `json:"id"`
	Status   models.Status          `json:"status"`
	Decision string                 `json:"decision,omitempty"`
	Person   map[string]interface{} `json:"person,omitempty"`
	Document map[string]interface{} `json:"document,omitempty"`
	Images   []verificationImage    `json:"images"`
}

type verificationImage struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// GetVerificationResults fetches the decision and captured documents for
// a single verification. The session id in the URL must match the one on
// record.
func (a *API) GetVerificationResults(c *gin.Context) {
	ctx := c.Request.Context()

	shop, ok := middleware.ShopFromContext(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Shop not authenticated")
		return
	}

	verification, ok := a.findShopVerification(c, shop.ID)
	if !ok {
		return
	}

	sessionID := c.Param("sessionId")
	if !verification.MatchesSession(sessionID) {
		response.ErrorJSON(c, http.StatusNotFound, "Verification not found")
		return
	}

	result := verificationResult{
		ID:     verification.ID,
		Status: verification.Status,
		Images: []verificationImage{},
	}

	if verification.Provider == models.ProviderVeriff {
		decision, err := a.veriff.GetSessionDecision(ctx, sessionID)
		if err != nil {
			logging.Errorf("[Verifications] Failed to fetch decision - session: %s, error: %v", sessionID, err)
		} else if decision != nil {
			result.Decision = decision.Decision
			result.Person = decision.Person
			result.Document = decision.Document
		}

		// The decision carries no person block until the session is
		// decided; fall back to the person endpoint so a pending or
		// resubmit session still shows what was extracted.
		if len(result.Person) == 0 {
			person, err := a.veriff.GetSessionPerson(ctx, sessionID)
			if err != nil {
				logging.Errorf("[Verifications] Failed to fetch person data - session: %s, error: %v", sessionID, err)
			} else if len(person) > 0 {
				result.Person = person
			}
		}

		images, err := a.veriff.GetSessionMedia(ctx, sessionID)
		if err != nil {
			logging.Errorf("[Verifications] Failed to fetch media - session: %s, error: %v", sessionID, err)
		}
		for _, image := range images {
			if slices.Contains(services.ExcludedDocumentNames, image.Name) {
				continue
			}
			raw, err := a.veriff.GetSessionImage(ctx, image.ID, image.URL)
			if err != nil {
				logging.Errorf("[Verifications] Failed to download image %s - session: %s, error: %v", image.ID, sessionID, err)
				continue
			}
			result.Images = append(result.Images, verificationImage{
				Name: image.Name,
				Data: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw),
			})
		}
	}

	response.SuccessJSON(c, result)
}

type overrideRequest struct {
	Override bool `json:"override"`
}

// OverrideVerification lets a merchant manually approve a verification
// after reviewing the captured documents.
func (a *API) OverrideVerification(c *gin.Context) {
	ctx := c.Request.Context()

	shop, ok := middleware.ShopFromContext(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Shop not authenticated")
		return
	}

	verification, ok := a.findShopVerification(c, shop.ID)
	if !ok {
		return
	}

	sessionID := c.Param("sessionId")
	if !verification.MatchesSession(sessionID) {
		response.ErrorJSON(c, http.StatusNotFound, "Verification not found")
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Override {
		response.ErrorJSON(c, http.StatusBadRequest, "Override flag required")
		return
	}

	if err := a.orchestrator.OverrideApprove(ctx, verification.ID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			response.ErrorJSON(c, http.StatusNotFound, "Verification not found")
			return
		}
		logging.Errorf("[Verifications] Failed to override - verification: %d, error: %v", verification.ID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to override verification")
		return
	}

	logging.Infof("[Verifications] Merchant override approved - verification: %d, shop: %d", verification.ID, shop.ID)
	response.SuccessJSON(c, gin.H{"id": verification.ID, "status": models.StatusApproved})
}

// findShopVerification loads the :id path verification and checks it
// belongs to the shop. Writes the error response itself on failure.
func (a *API) findShopVerification(c *gin.Context, shopID uint) (*models.Verification, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid verification id")
		return nil, false
	}

	var verification models.Verification
	if err := a.db.Where("id = ? AND shop_id = ?", id, shopID).First(&verification).Error; err != nil {
		response.ErrorJSON(c, http.StatusNotFound, "Verification not found")
		return nil, false
	}
	return &verification, true
}
