package models

// Product mirrors a Shopify product for per-product verification
// gating. Synced on demand from the Admin API.
type Product struct {
	BaseModel

	PlatformProductID int64  `json:"platform_product_id" gorm:"uniqueIndex;not null"`
	ShopID            uint   `json:"shop_id" gorm:"index;not null"`
	Title             string `json:"title" gorm:"size:255"`
	Handle            string `json:"handle" gorm:"size:255"`
	Status            string `json:"status" gorm:"size:20"`
	Tags              string `json:"tags" gorm:"type:text"`
	NeedsVerification bool   `json:"needs_verification" gorm:"index"`

	Variants []ProductVariant `json:"variants,omitempty"`
}

// ProductVariant allows the merchant to flag individual variants rather
// than the whole product.
type ProductVariant struct {
	BaseModel

	PlatformVariantID int64  `json:"platform_variant_id" gorm:"uniqueIndex;not null"`
	ProductID         uint   `json:"product_id" gorm:"index;not null"`
	Title             string `json:"title" gorm:"size:255"`
	NeedsVerification bool   `json:"needs_verification" gorm:"index"`
}
