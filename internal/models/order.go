package models

// Order is created once at webhook ingestion and never mutated by this
// subsystem afterwards; the "Verifly Verified" tag is applied through
// the commerce API, not on this row.
type Order struct {
	BaseModel

	PlatformOrderID int64   `json:"platform_order_id" gorm:"uniqueIndex;not null"`
	Name            string  `json:"name" gorm:"size:50"` // includes the '#', e.g. "#1001"
	TotalPrice      float64 `json:"total_price"`
	Currency        string  `json:"currency" gorm:"size:10"`
	ShippingAddress string  `json:"shipping_address" gorm:"type:text"` // raw JSON from the webhook
	BillingAddress  string  `json:"billing_address" gorm:"type:text"`
	OrderStatusURL  string  `json:"order_status_url" gorm:"size:500"`

	ShopID     uint `json:"shop_id" gorm:"index;not null"`
	CustomerID uint `json:"customer_id" gorm:"index"`
}
