package models

// Customer is one storefront customer per (shop, platform customer id)
// pair. Status moves only through the verification orchestrator; this
// subsystem never deletes customers.
//
// PlatformCustomerID is nullable: customers created lazily from the
// storefront widget are known only by email until their first order
// arrives and the id is adopted.
type Customer struct {
	BaseModel

	ShopID             uint   `json:"shop_id" gorm:"not null;uniqueIndex:idx_shop_platform_customer;index"`
	PlatformCustomerID *int64 `json:"platform_customer_id" gorm:"uniqueIndex:idx_shop_platform_customer"`
	Email              string `json:"email" gorm:"size:255;index"`
	FirstName          string `json:"first_name" gorm:"size:100"`
	LastName           string `json:"last_name" gorm:"size:100"`
	Status             Status `json:"status" gorm:"size:20;not null;default:'unverified';index"`
}

// FullName joins first and last name, falling back to a generic
// salutation when the order webhook carried no name.
func (c *Customer) FullName() string {
	if c.FirstName == "" {
		return "Customer"
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
