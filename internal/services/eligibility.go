package services

import (
	"github.com/chrismgala/verifly/internal/models"
)

// ShouldRequireVerification decides whether an order must be gated
// behind identity verification. Pure decision function, no side effects;
// it is re-evaluated on every order-create event because shop
// configuration and customer status change between orders.
//
// Rules apply in order and any failing rule short-circuits to false:
//  1. the shop's verification toggle must be on,
//  2. the customer must not already be approved,
//  3. the order total must reach the shop's trigger price,
//  4. when the shop flags specific products/variants, at least one
//     ordered item must be flagged. A shop with no flags at all gates on
//     price alone.
func ShouldRequireVerification(shop *models.Shop, order *models.Order, customer *models.Customer, flaggedItems int, shopHasFlags bool) bool {
	if shop == nil || order == nil {
		return false
	}

	if !shop.VerificationsEnabled {
		return false
	}

	if customer != nil && customer.Status == models.StatusApproved {
		return false
	}

	if order.TotalPrice < shop.TriggerPrice {
		return false
	}

	if shopHasFlags && flaggedItems == 0 {
		return false
	}

	return true
}
