package models

// Verification providers.
const (
	ProviderVeriff = "veriff"
	ProviderStripe = "stripe"
)

// Verification is the central lifecycle record: one per customer and one
// per order. CorrelationToken is generated internally and embedded in
// the provider session request (Veriff vendorData, Stripe metadata) so
// webhooks can be joined back to this row. SessionID is assigned once
// the provider session exists and is never reassigned afterwards; it is
// the join key used to authenticate inbound webhooks.
//
// CustomerID and OrderID are nullable because test verifications have
// neither; uniqueness still holds for the rows that set them.
type Verification struct {
	BaseModel

	CorrelationToken string  `json:"correlation_token" gorm:"size:36;uniqueIndex;not null"`
	SessionID        *string `json:"session_id" gorm:"size:100;uniqueIndex"`
	Provider         string  `json:"provider" gorm:"size:20;not null"`
	Status           Status  `json:"status" gorm:"size:20;not null;index"`
	EmailID          string  `json:"email_id" gorm:"size:100"`
	Test             bool    `json:"test"`

	ShopID     uint  `json:"shop_id" gorm:"index;not null"`
	CustomerID *uint `json:"customer_id" gorm:"uniqueIndex"`
	OrderID    *uint `json:"order_id" gorm:"uniqueIndex"`
}

// MatchesSession reports whether the payload-claimed session id agrees
// with the stored one. A record with no session yet matches nothing; the
// caller decides whether adopting the id is allowed.
func (v *Verification) MatchesSession(sessionID string) bool {
	return v.SessionID != nil && *v.SessionID == sessionID
}
