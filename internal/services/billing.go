package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/chrismgala/verifly/internal/models"
	"github.com/chrismgala/verifly/pkg/logging"
)

// UsageCharger posts metered usage charges against a shop's billing
// subscription.
type UsageCharger interface {
	CreateUsageRecord(ctx context.Context, shopDomain, lineItemID, description string, amount float64) error
}

// BillingScheduler runs the monthly usage-charge fan-out: every eligible
// shop (installed, verifications enabled, trial over, usage > 0) gets a
// metered charge, with bounded concurrency and a single retry after a
// fixed backoff.
type BillingScheduler struct {
	db      *gorm.DB
	charger UsageCharger

	trialLengthDays int
	maxConcurrency  int
	retryBackoff    time.Duration
}

// NewBillingScheduler creates a new billing scheduler
func NewBillingScheduler(db *gorm.DB, charger UsageCharger, trialLengthDays int) *BillingScheduler {
	return &BillingScheduler{
		db:              db,
		charger:         charger,
		trialLengthDays: trialLengthDays,
		maxConcurrency:  4,
		retryBackoff:    30 * time.Minute,
	}
}

// Start launches the scheduler loop, ticking at midnight on the first of
// each month until ctx is cancelled.
func (b *BillingScheduler) Start(ctx context.Context) {
	go func() {
		for {
			next := nextMonthlyRun(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				if err := b.Run(ctx); err != nil {
					logging.Errorf("Usage charge run failed: %v", err)
				}
			}
		}
	}()
}

// nextMonthlyRun returns the next first-of-month midnight after now.
func nextMonthlyRun(now time.Time) time.Time {
	year, month, _ := now.Date()
	next := time.Date(year, month, 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
	return next
}

// Run charges every eligible shop once. Shops are processed with at most
// maxConcurrency in flight; each failed charge is retried once after
// retryBackoff and then surfaced as a logged failure.
func (b *BillingScheduler) Run(ctx context.Context) error {
	var shops []models.Shop
	err := b.db.WithContext(ctx).
		Preload("Plan").
		Where("installed = ? AND plan_id IS NOT NULL", true).
		Find(&shops).Error
	if err != nil {
		return fmt.Errorf("failed to list shops: %w", err)
	}

	sem := make(chan struct{}, b.maxConcurrency)
	var wg sync.WaitGroup

	for i := range shops {
		shop := &shops[i]

		if !shop.VerificationsEnabled {
			continue // usage safeguard
		}
		if b.daysUntilTrialEnd(shop) > 0 {
			continue // trial safeguard
		}
		if shop.MonthlyVerificationCount == 0 || shop.Plan == nil {
			continue
		}
		if shop.ActiveRecurringSubscriptionID == "" || shop.ActiveUsageSubscriptionLineItemID == "" {
			logging.Warnf("Skipping usage charge, missing subscription - shop: %d", shop.ID)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			b.chargeWithRetry(ctx, shop)
		}()
	}

	wg.Wait()
	return nil
}

// chargeWithRetry attempts the charge, retrying once after the backoff.
func (b *BillingScheduler) chargeWithRetry(ctx context.Context, shop *models.Shop) {
	err := b.chargeForUsage(ctx, shop)
	if err == nil {
		return
	}

	logging.Errorf("Usage charge failed, retrying in %s - shop: %d, error: %v", b.retryBackoff, shop.ID, err)

	select {
	case <-ctx.Done():
		return
	case <-time.After(b.retryBackoff):
	}

	if err := b.chargeForUsage(ctx, shop); err != nil {
		logging.Errorf("Usage charge failed after retry - shop: %d, error: %v", shop.ID, err)
	}
}

// chargeForUsage posts one metered charge for the shop's verification
// usage in the elapsed month and resets the counter.
func (b *BillingScheduler) chargeForUsage(ctx context.Context, shop *models.Shop) error {
	totalUsageCost := math.Round(float64(shop.MonthlyVerificationCount)*shop.Plan.UsagePrice*100) / 100
	if totalUsageCost <= 0 {
		return nil
	}

	description := fmt.Sprintf("Charge of $%.2f for %d verifications in %s",
		totalUsageCost, shop.MonthlyVerificationCount, previousMonthName(time.Now()))

	if err := b.charger.CreateUsageRecord(ctx, shop.Domain,
		shop.ActiveUsageSubscriptionLineItemID, description, totalUsageCost); err != nil {
		return err
	}

	if err := b.db.WithContext(ctx).Model(shop).
		Update("monthly_verification_count", 0).Error; err != nil {
		logging.Errorf("Failed to reset verification count - shop: %d, error: %v", shop.ID, err)
	}

	logging.Infof("Usage charge created - shop: %d, amount: %.2f", shop.ID, totalUsageCost)
	return nil
}

// daysUntilTrialEnd returns the number of days left in the shop's trial,
// zero or negative when the trial is over. A shop with no trial start is
// treated as out of trial.
func (b *BillingScheduler) daysUntilTrialEnd(shop *models.Shop) int {
	if shop.TrialStartedAt == nil {
		return 0
	}
	end := shop.TrialStartedAt.AddDate(0, 0, b.trialLengthDays)
	diff := time.Until(end)
	return int(math.Ceil(diff.Hours() / 24))
}

// previousMonthName names the month a first-of-month run is billing for.
func previousMonthName(now time.Time) string {
	return now.AddDate(0, -1, 0).Month().String()
}
