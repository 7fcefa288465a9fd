package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chrismgala/verifly/internal/middleware"
	"github.com/chrismgala/verifly/internal/models"
	"github.com/chrismgala/verifly/internal/response"
	"github.com/chrismgala/verifly/internal/services"
	"github.com/chrismgala/verifly/pkg/logging"
)

const productSyncPageSize = 100

type productEntry struct {
	ID                int64          `json:"id"`
	Title             string         `json:"title"`
	Handle            string         `json:"handle"`
	Tags              string         `json:"tags"`
	NeedsVerification bool           `json:"needs_verification"`
	Variants          []variantEntry `json:"variants"`
}

type variantEntry struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	NeedsVerification bool   `json:"needs_verification"`
}

// ListProducts syncs active products from the Admin API into the local
// catalog and returns them with their verification flags.
func (a *API) ListProducts(c *gin.Context) {
	ctx := c.Request.Context()

	shop, ok := middleware.ShopFromContext(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Shop not authenticated")
		return
	}

	remote, err := a.shopify.FetchProducts(ctx, shop.Domain, productSyncPageSize)
	if err != nil {
		logging.Errorf("[Products] Failed to fetch products - shop: %d, error: %v", shop.ID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to fetch products")
		return
	}

	for _, rp := range remote {
		product, err := a.syncProduct(shop.ID, rp)
		if err != nil {
			logging.Errorf("[Products] Failed to sync product %d - shop: %d, error: %v", rp.ID, shop.ID, err)
			response.ErrorJSON(c, http.StatusInternalServerError, "Failed to sync products")
			return
		}
		for _, rv := range rp.Variants {
			if err := a.syncVariant(product.ID, rv.ID, rv.Title); err != nil {
				logging.Errorf("[Products] Failed to sync variant %d - shop: %d, error: %v", rv.ID, shop.ID, err)
			}
		}
	}

	var products []models.Product
	if err := a.db.Preload("Variants").Where("shop_id = ?", shop.ID).Find(&products).Error; err != nil {
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to load products")
		return
	}

	entries := make([]productEntry, 0, len(products))
	for _, p := range products {
		entry := productEntry{
			ID:                p.PlatformProductID,
			Title:             p.Title,
			Handle:            p.Handle,
			Tags:              p.Tags,
			NeedsVerification: p.NeedsVerification,
			Variants:          make([]variantEntry, 0, len(p.Variants)),
		}
		for _, v := range p.Variants {
			entry.Variants = append(entry.Variants, variantEntry{
				ID:                v.PlatformVariantID,
				Title:             v.Title,
				NeedsVerification: v.NeedsVerification,
			})
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Title < entries[j].Title })

	response.SuccessJSON(c, entries)
}

type updateProductFlagsRequest struct {
	FlagProducts   []int64 `json:"flag_products"`
	UnflagProducts []int64 `json:"unflag_products"`
	FlagVariants   []int64 `json:"flag_variants"`
	UnflagVariants []int64 `json:"unflag_variants"`
}

// UpdateProductFlags toggles per-product and per-variant verification
// requirements.
func (a *API) UpdateProductFlags(c *gin.Context) {
	shop, ok := middleware.ShopFromContext(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Shop not authenticated")
		return
	}

	var req updateProductFlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid payload")
		return
	}

	err := a.db.Transaction(func(tx *gorm.DB) error {
		if len(req.FlagProducts) > 0 {
			if err := tx.Model(&models.Product{}).
				Where("shop_id = ? AND platform_product_id IN ?", shop.ID, req.FlagProducts).
				Update("needs_verification", true).Error; err != nil {
				return err
			}
		}
		if len(req.UnflagProducts) > 0 {
			if err := tx.Model(&models.Product{}).
				Where("shop_id = ? AND platform_product_id IN ?", shop.ID, req.UnflagProducts).
				Update("needs_verification", false).Error; err != nil {
				return err
			}
		}
		if len(req.FlagVariants) > 0 {
			if err := a.updateVariantFlags(tx, shop.ID, req.FlagVariants, true); err != nil {
				return err
			}
		}
		if len(req.UnflagVariants) > 0 {
			if err := a.updateVariantFlags(tx, shop.ID, req.UnflagVariants, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logging.Errorf("[Products] Failed to update flags - shop: %d, error: %v", shop.ID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to update product flags")
		return
	}

	response.SuccessJSON(c, gin.H{"updated": true})
}

func (a *API) updateVariantFlags(tx *gorm.DB, shopID uint, variantIDs []int64, flagged bool) error {
	return tx.Model(&models.ProductVariant{}).
		Where("platform_variant_id IN ? AND product_id IN (?)",
			variantIDs,
			tx.Model(&models.Product{}).Select("id").Where("shop_id = ?", shopID)).
		Update("needs_verification", flagged).Error
}

func (a *API) syncProduct(shopID uint, remote services.ShopifyProduct) (*models.Product, error) {
	var product models.Product
	err := a.db.Where("platform_product_id = ?", remote.ID).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		product = models.Product{
			PlatformProductID: remote.ID,
			ShopID:            shopID,
			Title:             remote.Title,
			Handle:            remote.Handle,
			Status:            remote.Status,
			Tags:              remote.Tags,
		}
		if err := a.db.Create(&product).Error; err != nil {
			return nil, err
		}
		return &product, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"title":  remote.Title,
		"handle": remote.Handle,
		"status": remote.Status,
		"tags":   remote.Tags,
	}
	if err := a.db.Model(&product).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (a *API) syncVariant(productID uint, platformVariantID int64, title string) error {
	var variant models.ProductVariant
	err := a.db.Where("platform_variant_id = ?", platformVariantID).First(&variant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return a.db.Create(&models.ProductVariant{
			PlatformVariantID: platformVariantID,
			ProductID:         productID,
			Title:             title,
		}).Error
	}
	if err != nil {
		return err
	}
	return a.db.Model(&variant).Update("title", title).Error
}
