package models

import (
	"time"
)

// Verification flow modes. Post-checkout gates fulfillment after the
// order webhook; pre-checkout runs the hosted flow from the storefront
// widget before the order exists.
const (
	FlowPostCheckout = "post-checkout"
	FlowPreCheckout  = "pre-checkout"
)

// Shop is the tenant root. One row per installed store.
type Shop struct {
	BaseModel

	// Platform identity
	PlatformShopID string `json:"platform_shop_id" gorm:"size:100;uniqueIndex;not null"`
	Domain         string `json:"domain" gorm:"size:255;uniqueIndex;not null"`
	Name           string `json:"name" gorm:"size:255"`
	Email          string `json:"email" gorm:"size:255"`

	// Merchant API authentication
	APIKey string `json:"api_key" gorm:"size:64;uniqueIndex;not null"`

	// Verification configuration. No column default on the flags: GORM
	// omits zero-value fields carrying one on struct Create, which would
	// silently flip an explicit false back to true. InstallShop sets
	// them.
	VerificationsEnabled bool    `json:"verifications_enabled"`
	TriggerPrice         float64 `json:"trigger_price"`
	VerificationFlow     string  `json:"verification_flow" gorm:"size:20;default:'post-checkout'"`
	SetupComplete        bool    `json:"setup_complete"`

	// Billing
	PlanID                            *uint      `json:"plan_id" gorm:"index"`
	Plan                              *Plan      `json:"plan,omitempty"`
	TrialStartedAt                    *time.Time `json:"trial_started_at"`
	ActiveRecurringSubscriptionID     string     `json:"active_recurring_subscription_id" gorm:"size:100"`
	ActiveUsageSubscriptionLineItemID string     `json:"active_usage_subscription_line_item_id" gorm:"size:100"`
	MonthlyVerificationCount          int        `json:"monthly_verification_count"`

	// One test verification per shop
	TestVerificationSent bool `json:"test_verification_sent"`

	// Branding for the verification email
	LogoURL     string `json:"logo_url" gorm:"size:500"`
	BrandColor  string `json:"brand_color" gorm:"size:20"`
	EmailDomain string `json:"email_domain" gorm:"size:255"`

	Installed bool `json:"installed"`
}
