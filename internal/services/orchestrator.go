package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chrismgala/verifly/internal/models"
	"github.com/chrismgala/verifly/pkg/logging"
)

var (
	// ErrNotFound means no verification matches the correlation token or
	// session id. Webhooks bearing unknown correlations are hard
	// failures; they never create records (the pre-checkout flow has its
	// own, separate entry point).
	ErrNotFound = errors.New("verification not found")

	// ErrSessionMismatch means a webhook claimed a session id that does
	// not agree with the record located by correlation token.
	ErrSessionMismatch = errors.New("session id does not match verification record")

	// ErrTerminal means the verification already holds a different
	// terminal status; re-applying the same status is not an error.
	ErrTerminal = errors.New("verification already in a terminal state")

	// ErrAlreadyStarted means a verification already exists for the
	// order or customer.
	ErrAlreadyStarted = errors.New("verification already started")
)

// SessionCreator starts hosted verification sessions with the identity
// provider.
type SessionCreator interface {
	CreateSession(ctx context.Context, person VeriffPerson, vendorData string) (*VeriffSession, error)
}

// OrderTagger applies tags to commerce orders.
type OrderTagger interface {
	AddOrderTags(ctx context.Context, shopDomain string, platformOrderID int64, tags []string) error
}

// Orchestrator owns the verification lifecycle: it is the only component
// that creates sessions and the only one that moves a Verification (and,
// by cascade, its Customer) between statuses.
type Orchestrator struct {
	db       *gorm.DB
	sessions SessionCreator
	tagger   OrderTagger
}

// NewOrchestrator creates a new verification orchestrator
func NewOrchestrator(db *gorm.DB, sessions SessionCreator, tagger OrderTagger) *Orchestrator {
	return &Orchestrator{
		db:       db,
		sessions: sessions,
		tagger:   tagger,
	}
}

// StartVerification creates a pending Verification and the matching
// provider session, returning the record and the hosted verification URL
// for the notification email.
//
// The internal record is persisted before the provider call so a webhook
// can never arrive for a session with no matching record. If the
// provider call fails the pending record is removed again and the error
// propagates; the caller decides whether to fail the whole event.
func (o *Orchestrator) StartVerification(ctx context.Context, shop *models.Shop, customer *models.Customer, order *models.Order) (*models.Verification, string, error) {
	var existing models.Verification
	err := o.db.WithContext(ctx).
		Where("order_id = ? OR customer_id = ?", order.ID, customer.ID).
		First(&existing).Error
	if err == nil {
		return &existing, "", ErrAlreadyStarted
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("failed to check existing verification: %w", err)
	}

	verification := &models.Verification{
		CorrelationToken: uuid.NewString(),
		Provider:         models.ProviderVeriff,
		Status:           models.StatusPending,
		ShopID:           shop.ID,
		CustomerID:       &customer.ID,
		OrderID:          &order.ID,
	}

	if err := o.db.WithContext(ctx).Create(verification).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create verification record: %w", err)
	}

	session, err := o.sessions.CreateSession(ctx, VeriffPerson{
		FirstName: customer.FirstName,
		LastName:  customer.LastName,
		Email:     customer.Email,
	}, verification.CorrelationToken)
	if err != nil {
		// Compensate so a later retry is not blocked by the one-per-order
		// constraint.
		o.db.WithContext(ctx).Unscoped().Delete(verification)
		return nil, "", fmt.Errorf("failed to create provider session: %w", err)
	}

	if err := o.db.WithContext(ctx).Model(verification).
		Update("session_id", session.ID).Error; err != nil {
		return nil, "", fmt.Errorf("failed to attach session id: %w", err)
	}
	verification.SessionID = &session.ID

	if err := o.db.WithContext(ctx).Model(shop).
		Update("monthly_verification_count", gorm.Expr("monthly_verification_count + 1")).Error; err != nil {
		logging.Errorf("Failed to increment verification count - shop: %d, error: %v", shop.ID, err)
	}

	return verification, session.URL, nil
}

// AttachEmailID records the dispatched notification email id on the
// verification for later correlation.
func (o *Orchestrator) AttachEmailID(ctx context.Context, verificationID uint, emailID string) error {
	return o.db.WithContext(ctx).Model(&models.Verification{}).
		Where("id = ?", verificationID).
		Update("email_id", emailID).Error
}

// Decision is a provider outcome normalized at the webhook boundary.
type Decision struct {
	CorrelationToken string
	SessionID        string
	Status           models.Status
}

// ReconcileDecision applies a provider decision to the verification it
// belongs to and cascades the outcome to the customer record.
//
// Lookup prefers an exact session id match; the correlation token is the
// fallback for the window where the session id is not yet persisted. A
// record located by token whose stored session id disagrees with the
// payload's claim is rejected; the session id is the authentication
// joining webhooks to records. Reprocessing an identical decision is a
// no-op; a conflicting terminal decision is refused.
func (o *Orchestrator) ReconcileDecision(ctx context.Context, decision Decision) (*models.Verification, error) {
	verification, err := o.locate(ctx, decision)
	if err != nil {
		return nil, err
	}

	if verification.Status.Terminal() {
		if verification.Status == decision.Status {
			return verification, nil // duplicate delivery, already applied
		}
		return nil, ErrTerminal
	}

	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"status": decision.Status}
		if verification.SessionID == nil && decision.SessionID != "" {
			// Session id arrives with the first webhook when the decision
			// raced the post-creation update. Set once, never reassigned.
			updates["session_id"] = decision.SessionID
		}
		if err := tx.Model(verification).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update verification: %w", err)
		}

		if verification.CustomerID != nil {
			if err := tx.Model(&models.Customer{}).
				Where("id = ?", *verification.CustomerID).
				Update("status", decision.Status).Error; err != nil {
				return fmt.Errorf("failed to update customer status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	verification.Status = decision.Status
	if verification.SessionID == nil && decision.SessionID != "" {
		verification.SessionID = &decision.SessionID
	}

	if decision.Status == models.StatusApproved {
		o.tagOrder(ctx, verification)
	}

	return verification, nil
}

// locate finds the verification a decision belongs to. Session id match
// wins; correlation token is the fallback.
func (o *Orchestrator) locate(ctx context.Context, decision Decision) (*models.Verification, error) {
	var verification models.Verification

	if decision.SessionID != "" {
		err := o.db.WithContext(ctx).
			Where("session_id = ?", decision.SessionID).
			First(&verification).Error
		if err == nil {
			return &verification, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up verification: %w", err)
		}
	}

	if decision.CorrelationToken == "" {
		return nil, ErrNotFound
	}

	err := o.db.WithContext(ctx).
		Where("correlation_token = ?", decision.CorrelationToken).
		First(&verification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up verification: %w", err)
	}

	// Anti-spoofing: a token match with a conflicting session claim means
	// the payload is not talking about this record.
	if verification.SessionID != nil && decision.SessionID != "" && *verification.SessionID != decision.SessionID {
		return nil, ErrSessionMismatch
	}

	return &verification, nil
}

// ReconcilePreCheckout handles the pre-checkout flow, where the hosted
// session ran from the storefront widget before any order existed and no
// Verification was created at order time. The customer's email is the
// correlation key (it was the session's vendorData); the verification is
// lazily created already holding its decision. This path is intentionally
// separate from ReconcileDecision, which never creates records.
func (o *Orchestrator) ReconcilePreCheckout(ctx context.Context, email, sessionID string, status models.Status) (*models.Verification, error) {
	var customer models.Customer
	err := o.db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at DESC").
		First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}

	var order models.Order
	err = o.db.WithContext(ctx).
		Where("customer_id = ? AND shop_id = ?", customer.ID, customer.ShopID).
		Order("created_at DESC").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}

	verification := &models.Verification{
		CorrelationToken: uuid.NewString(),
		SessionID:        &sessionID,
		Provider:         models.ProviderVeriff,
		Status:           status,
		ShopID:           customer.ShopID,
		CustomerID:       &customer.ID,
		OrderID:          &order.ID,
	}

	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(verification).Error; err != nil {
			return fmt.Errorf("failed to create verification: %w", err)
		}
		if err := tx.Model(&customer).Update("status", status).Error; err != nil {
			return fmt.Errorf("failed to update customer status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if status == models.StatusApproved {
		o.tagOrder(ctx, verification)
	}

	return verification, nil
}

// OverrideApprove is the merchant-triggered manual approval. It is
// allowed from any non-approved state, sets the status unconditionally
// and never calls the provider.
func (o *Orchestrator) OverrideApprove(ctx context.Context, verificationID uint) error {
	var verification models.Verification
	err := o.db.WithContext(ctx).First(&verification, verificationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up verification: %w", err)
	}

	if verification.Status == models.StatusApproved {
		return nil
	}

	return o.db.WithContext(ctx).Model(&verification).
		Update("status", models.StatusApproved).Error
}

// ExpireStale transitions pending verifications older than ttl to
// expired, cascading to their customers. Returns how many were expired.
func (o *Orchestrator) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)

	var stale []models.Verification
	err := o.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.StatusPending, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list stale verifications: %w", err)
	}

	expired := 0
	for i := range stale {
		verification := &stale[i]
		err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(verification).
				Update("status", models.StatusExpired).Error; err != nil {
				return err
			}
			if verification.CustomerID != nil {
				return tx.Model(&models.Customer{}).
					Where("id = ? AND status = ?", *verification.CustomerID, models.StatusPending).
					Update("status", models.StatusExpired).Error
			}
			return nil
		})
		if err != nil {
			logging.Errorf("Failed to expire verification %d: %v", verification.ID, err)
			continue
		}
		expired++
	}

	return expired, nil
}

// TagOrderAsVerified applies the verified tag to the commerce order.
// Best effort: failures are logged and the status update is not rolled
// back; the degraded state is an approved verification on an untagged
// order, reconcilable manually.
func (o *Orchestrator) TagOrderAsVerified(ctx context.Context, shopDomain string, platformOrderID int64) error {
	if o.tagger == nil {
		return nil
	}
	return o.tagger.AddOrderTags(ctx, shopDomain, platformOrderID, []string{OrderVerifiedTag})
}

func (o *Orchestrator) tagOrder(ctx context.Context, verification *models.Verification) {
	if verification.OrderID == nil {
		return
	}

	var shop models.Shop
	if err := o.db.WithContext(ctx).First(&shop, verification.ShopID).Error; err != nil {
		logging.Errorf("Order tag skipped, shop lookup failed - verification: %d, error: %v", verification.ID, err)
		return
	}

	var order models.Order
	if err := o.db.WithContext(ctx).First(&order, *verification.OrderID).Error; err != nil {
		logging.Errorf("Order tag skipped, order lookup failed - verification: %d, error: %v", verification.ID, err)
		return
	}

	if err := o.TagOrderAsVerified(ctx, shop.Domain, order.PlatformOrderID); err != nil {
		logging.Errorf("Order tags update failed - order: %d, error: %v", order.PlatformOrderID, err)
		return
	}

	logging.Infof("Order tags updated successfully - order: %d", order.PlatformOrderID)
}
