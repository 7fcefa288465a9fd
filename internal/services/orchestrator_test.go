package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/chrismgala/verifly/internal/database"
	"github.com/chrismgala/verifly/internal/models"
)

type stubSessionCreator struct {
	createFunc func(ctx context.Context, person VeriffPerson, vendorData string) (*VeriffSession, error)
	calls      int
}

func (s *stubSessionCreator) CreateSession(ctx context.Context, person VeriffPerson, vendorData string) (*VeriffSession, error) {
	s.calls++
	return s.createFunc(ctx, person, vendorData)
}

type stubOrderTagger struct {
	taggedOrders []int64
	err          error
}

func (s *stubOrderTagger) AddOrderTags(ctx context.Context, shopDomain string, platformOrderID int64, tags []string) error {
	if s.err != nil {
		return s.err
	}
	s.taggedOrders = append(s.taggedOrders, platformOrderID)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func seedShopCustomerOrder(t *testing.T, db *gorm.DB) (*models.Shop, *models.Customer, *models.Order) {
	t.Helper()

	shop := &models.Shop{
		PlatformShopID:       "shop-1",
		Domain:               "teststore.myshopify.com",
		Name:                 "Test Store",
		APIKey:               "key-1",
		VerificationsEnabled: true,
		TriggerPrice:         100,
		Installed:            true,
	}
	if err := db.Create(shop).Error; err != nil {
		t.Fatalf("failed to seed shop: %v", err)
	}

	platformCustomerID := int64(9001)
	customer := &models.Customer{
		ShopID:             shop.ID,
		PlatformCustomerID: &platformCustomerID,
		Email:              "shopper@example.com",
		FirstName:          "Alex",
		LastName:           "Kim",
		Status:             models.StatusUnverified,
	}
	if err := db.Create(customer).Error; err != nil {
		t.Fatalf("failed to seed customer: %v", err)
	}

	order := &models.Order{
		PlatformOrderID: 5001,
		Name:            "#1001",
		TotalPrice:      250,
		Currency:        "USD",
		ShopID:          shop.ID,
		CustomerID:      customer.ID,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}

	return shop, customer, order
}

func alwaysSession(id, url string) *stubSessionCreator {
	return &stubSessionCreator{
		createFunc: func(ctx context.Context, person VeriffPerson, vendorData string) (*VeriffSession, error) {
			return &VeriffSession{ID: id, URL: url, VendorData: vendorData}, nil
		},
	}
}

func TestStartVerification(t *testing.T) {
	db := openTestDB(t)
	shop, customer, order := seedShopCustomerOrder(t, db)

	sessions := alwaysSession("session-1", "https://verify.example/s1")
	o := NewOrchestrator(db, sessions, &stubOrderTagger{})

	verification, url, err := o.StartVerification(context.Background(), shop, customer, order)
	if err != nil {
		t.Fatalf("StartVerification failed: %v", err)
	}
	if url != "https://verify.example/s1" {
		t.Errorf("hosted url = %q", url)
	}
	if verification.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", verification.Status)
	}
	if verification.SessionID == nil || *verification.SessionID != "session-1" {
		t.Errorf("session id not persisted: %v", verification.SessionID)
	}
	if verification.CorrelationToken == "" {
		t.Error("expected a correlation token")
	}

	var reloadedShop models.Shop
	if err := db.First(&reloadedShop, shop.ID).Error; err != nil {
		t.Fatalf("failed to reload shop: %v", err)
	}
	if reloadedShop.MonthlyVerificationCount != 1 {
		t.Errorf("monthly count = %d, want 1", reloadedShop.MonthlyVerificationCount)
	}
}

func TestStartVerificationAlreadyStarted(t *testing.T) {
	db := openTestDB(t)
	shop, customer, order := seedShopCustomerOrder(t, db)

	sessions := alwaysSession("session-1", "https://verify.example/s1")
	o := NewOrchestrator(db, sessions, &stubOrderTagger{})

	first, _, err := o.StartVerification(context.Background(), shop, customer, order)
	if err != nil {
		t.Fatalf("first StartVerification failed: %v", err)
	}

	second, _, err := o.StartVerification(context.Background(), shop, customer, order)
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("err = %v, want ErrAlreadyStarted", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected the existing verification to be returned")
	}
	if sessions.calls != 1 {
		t.Errorf("provider called %d times, want 1", sessions.calls)
	}
}

func TestStartVerificationProviderFailureCompensates(t *testing.T) {
	db := openTestDB(t)
	shop, customer, order := seedShopCustomerOrder(t, db)

	sessions := &stubSessionCreator{
		createFunc: func(ctx context.Context, person VeriffPerson, vendorData string) (*VeriffSession, error) {
			return nil, errors.New("provider down")
		},
	}
	o := NewOrchestrator(db, sessions, &stubOrderTagger{})

	if _, _, err := o.StartVerification(context.Background(), shop, customer, order); err == nil {
		t.Fatal("expected provider failure to propagate")
	}

	var count int64
	db.Model(&models.Verification{}).Count(&count)
	if count != 0 {
		t.Errorf("orphaned verification records left: %d", count)
	}

	// A retry after the failure must not hit the one-per-order guard.
	sessions.createFunc = func(ctx context.Context, person VeriffPerson, vendorData string) (*VeriffSession, error) {
		return &VeriffSession{ID: "session-retry", URL: "https://verify.example/r"}, nil
	}
	if _, _, err := o.StartVerification(context.Background(), shop, customer, order); err != nil {
		t.Fatalf("retry after compensation failed: %v", err)
	}
}

func TestReconcileDecisionApproves(t *testing.T) {
	db := openTestDB(t)
	shop, customer, order := seedShopCustomerOrder(t, db)

	tagger := &stubOrderTagger{}
	o := NewOrchestrator(db, alwaysSession("session-1", "u"), tagger)

	verification, _, err := o.StartVerification(context.Background(), shop, customer, order)
	if err != nil {
		t.Fatalf("StartVerification failed: %v", err)
	}

	got, err := o.ReconcileDecision(context.Background(), Decision{
		CorrelationToken: verification.CorrelationToken,
		SessionID:        "session-1",
		Status:           models.StatusApproved,
	})
	if err != nil {
		t.Fatalf("ReconcileDecision failed: %v", err)
	}
	if got.Status != models.StatusApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}

	var reloadedCustomer models.Customer
	db.First(&reloadedCustomer, customer.ID)
	if reloadedCustomer.Status != models.StatusApproved {
		t.Errorf("customer status = %q, want approved", reloadedCustomer.Status)
	}

	if len(tagger.taggedOrders) != 1 || tagger.taggedOrders[0] != order.PlatformOrderID {
		t.Errorf("tagged orders = %v, want [%d]", tagger.taggedOrders, order.PlatformOrderID)
	}
}

func TestReconcileDecisionDeclineDoesNotTag(t *testing.T) {
	db := openTestDB(t)
	shop, customer, order := seedShopCustomerOrder(t, db)

	tagger := &stubOrderTagger{}
	o := NewOrchestrator(db, alwaysSession("session-1", "u"), tagger)

	verification, _, _ := o.StartVerification(context.Background(), shop, customer, order)

	if _, err := o.ReconcileDecision(context.Background(), Decision{
		CorrelationToken: verification.CorrelationToken,
		SessionID:        "session-1",
		Status:           models.StatusDeclined,
	}); err != nil {
		t.Fatalf("ReconcileDecision failed: %v", err)
	}

	if len(tagger.taggedOrders) != 0 {
		t.Errorf("declined decision tagged orders: %v", tagger.taggedOrders)
	}

	var reloadedCustomer models.Customer
	db.First(&reloadedCustomer, customer.ID)
	if reloadedCustomer.Status != models.StatusDeclined {
		t.Errorf("customer status = %q, want declined", reloadedCustomer.Status)
	}
}

func TestReconcileDecisionUnknownSession(t *testing.T) {
	db := openTestDB(t)
	o := NewOrchestrator(db, alwaysSession("s", "u"), &stubOrderTagger{})

	_, err := o.ReconcileDecision(context.Background(), Decision{
		CorrelationToken: "no-such-token",
		SessionID:        "no-such-session",
		Status:           models.StatusApproved,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// Unknown correlations must never create records.
	var count int64
	db.Model(&models.Verification{}).Count(&count)
	if count != 0 {
		t.Errorf("verification created for unknown correlation: %d", count)
	}
}

func TestReconcileDecisionSessionMismatch(t *testing.T) {
	db := openTestDB(t)
	shop, customer, order := seedShopCustomerOrder(t, db)

	o := NewOrchestrator(db, alwaysSession("session-real", "u"), &stubOrderTagger{})
	verification, _, _ := o.StartVerification(context.Background(), shop, customer, order)

	_, err := o.ReconcileDecision(context.Background(), Decision{
		CorrelationToken: verification.CorrelationToken,
		SessionID:        "session-spoofed",
		Status:           models.StatusApproved,
	})
	if !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("err = %v, want ErrSessionMismatch", err)
	}

	var reloaded models.Verification
	db.First(&reloaded, verification.ID)
	if reloaded.Status != models.StatusPending {
		t.Errorf("spoofed decision changed status to %q", reloaded.Status)
	}
	if *reloaded.SessionID != "session-real" {
		t.Errorf("spoofed decision reassigned session id to %q", *reloaded.SessionID)
	}
}

func TestReconcileDecisionAdoptsSessionID(t *testing.T) {
	db := openTestDB(t)
	shop, customer, order := seedShopCustomerOrder(t, db)

	// Simulate the race where the decision webhook lands before the
	// post-creation session id update: record exists, session id nil.
	verification := &models.Verification{
		CorrelationToken: "token-race",
		Provider:         models.ProviderVeriff,
		Status:           models.StatusPending,
		ShopID:           shop.ID,
		CustomerID:       &customer.ID,
		OrderID:          &order.ID,
	}
	if err := db.Create(verification).Error; err != nil {
		t.Fatalf("failed to seed verification: %v", err)
	}

	o := NewOrchestrator(db, alwaysSession("s", "u"), &stubOrderTagger{})
	got, err := o.ReconcileDecision(context.Background(), Decision{
		CorrelationToken: "token-race",
		SessionID:        "session-late",
		Status:           models.StatusApproved,
	})
	if err != nil {
		t.Fatalf("ReconcileDecision failed: %v", err)
	}
	if got.SessionID == nil || *got.SessionID != "session-late" {
		t.Errorf("session id not adopted: %v", got.SessionID)
	}

	var reloaded models.Verification
	db.First(&reloaded, verification.ID)
	if reloaded.SessionID == nil || *reloaded.SessionID != "session-late" {
		t.Errorf("session id not persisted")
	}
}

func TestReconcileDecisionIdempotentDuplicate(t *testing.T) {
	db := openTestDB(t)
	shop, customer, order := seedShopCustomerOrder(t, db)

	tagger := &stubOrderTagger{}
	o := NewOrchestrator(db, alwaysSession("session-1", "u"), tagger)
	verification, _, _ := o.StartVerification(context.Background(), shop, customer, order)

	decision := Decision{
		CorrelationToken: verification.CorrelationToken,
		SessionID:        "session-1",
		Status:           models.StatusApproved,
	}
	if _, err := o.ReconcileDecision(context.Background(), decision); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if _, err := o.ReconcileDecision(context.Background(), decision); err != nil {
		t.Fatalf("duplicate delivery failed: %v", err)
	}

	if len(tagger.taggedOrders) != 1 {
		t.Errorf("duplicate delivery re-tagged the order: %v", tagger.taggedOrders)
	}
}

func TestReconcileDecisionConflictingTerminal(t *testing.T) {
	db := openTestDB(t)
	shop, customer, order := seedShopCustomerOrder(t, db)

	o := NewOrchestrator(db, alwaysSession("session-1", "u"), &stubOrderTagger{})
	verification, _, _ := o.StartVerification(context.Background(), shop, customer, order)

	if _, err := o.ReconcileDecision(context.Background(), Decision{
		CorrelationToken: verification.CorrelationToken,
		SessionID:        "session-1",
		Status:           models.StatusApproved,
	}); err != nil {
		t.Fatalf("first decision failed: %v", err)
	}

	_, err := o.ReconcileDecision(context.Background(), Decision{
		CorrelationToken: verification.CorrelationToken,
		SessionID:        "session-1",
		Status:           models.StatusDeclined,
	})
	if !errors.Is(err, ErrTerminal) {
		t.Fatalf("err = %v, want ErrTerminal", err)
	}

	var reloaded models.Verification
	db.First(&reloaded, verification.ID)
	if reloaded.Status != models.StatusApproved {
		t.Errorf("conflicting decision overwrote status: %q", reloaded.Status)
	}
}

func TestReconcileDecisionResubmitIsRetryable(t *testing.T) {
	db := openTestDB(t)
	shop, customer, order := seedShopCustomerOrder(t, db)

	o := NewOrchestrator(db, alwaysSession("session-1", "u"), &stubOrderTagger{})
	verification, _, _ := o.StartVerification(context.Background(), shop, customer, order)

	if _, err := o.ReconcileDecision(context.Background(), Decision{
		CorrelationToken: verification.CorrelationToken,
		SessionID:        "session-1",
		Status:           models.StatusResubmit,
	}); err != nil {
		t.Fatalf("resubmit decision failed: %v", err)
	}

	// Resubmit is not terminal, a later approval must go through.
	got, err := o.ReconcileDecision(context.Background(), Decision{
		CorrelationToken: verification.CorrelationToken,
		SessionID:        "session-1",
		Status:           models.StatusApproved,
	})
	if err != nil {
		t.Fatalf("approval after resubmit failed: %v", err)
	}
	if got.Status != models.StatusApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}
}

func TestReconcilePreCheckout(t *testing.T) {
	db := openTestDB(t)
	_, customer, order := seedShopCustomerOrder(t, db)

	tagger := &stubOrderTagger{}
	o := NewOrchestrator(db, alwaysSession("s", "u"), tagger)

	verification, err := o.ReconcilePreCheckout(context.Background(),
		customer.Email, "session-pre", models.StatusApproved)
	if err != nil {
		t.Fatalf("ReconcilePreCheckout failed: %v", err)
	}
	if verification.SessionID == nil || *verification.SessionID != "session-pre" {
		t.Errorf("session id = %v", verification.SessionID)
	}
	if verification.Status != models.StatusApproved {
		t.Errorf("status = %q", verification.Status)
	}
	if verification.OrderID == nil || *verification.OrderID != order.ID {
		t.Errorf("order not linked: %v", verification.OrderID)
	}

	var reloadedCustomer models.Customer
	db.First(&reloadedCustomer, customer.ID)
	if reloadedCustomer.Status != models.StatusApproved {
		t.Errorf("customer status = %q", reloadedCustomer.Status)
	}
	if len(tagger.taggedOrders) != 1 {
		t.Errorf("order not tagged: %v", tagger.taggedOrders)
	}
}

func TestReconcilePreCheckoutUnknownEmail(t *testing.T) {
	db := openTestDB(t)
	o := NewOrchestrator(db, alwaysSession("s", "u"), &stubOrderTagger{})

	_, err := o.ReconcilePreCheckout(context.Background(),
		"stranger@example.com", "session-pre", models.StatusApproved)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOverrideApprove(t *testing.T) {
	db := openTestDB(t)
	shop, customer, order := seedShopCustomerOrder(t, db)

	o := NewOrchestrator(db, alwaysSession("session-1", "u"), &stubOrderTagger{})
	verification, _, _ := o.StartVerification(context.Background(), shop, customer, order)

	if _, err := o.ReconcileDecision(context.Background(), Decision{
		SessionID: "session-1",
		Status:    models.StatusDeclined,
	}); err != nil {
		t.Fatalf("decline failed: %v", err)
	}

	if err := o.OverrideApprove(context.Background(), verification.ID); err != nil {
		t.Fatalf("OverrideApprove failed: %v", err)
	}

	var reloaded models.Verification
	db.First(&reloaded, verification.ID)
	if reloaded.Status != models.StatusApproved {
		t.Errorf("status = %q, want approved", reloaded.Status)
	}

	// Overriding again is a no-op.
	if err := o.OverrideApprove(context.Background(), verification.ID); err != nil {
		t.Fatalf("repeat override failed: %v", err)
	}
}

func TestOverrideApproveNotFound(t *testing.T) {
	db := openTestDB(t)
	o := NewOrchestrator(db, alwaysSession("s", "u"), &stubOrderTagger{})

	if err := o.OverrideApprove(context.Background(), 12345); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExpireStale(t *testing.T) {
	db := openTestDB(t)
	shop, customer, order := seedShopCustomerOrder(t, db)

	o := NewOrchestrator(db, alwaysSession("session-1", "u"), &stubOrderTagger{})
	verification, _, _ := o.StartVerification(context.Background(), shop, customer, order)

	db.Model(&models.Customer{}).Where("id = ?", customer.ID).
		Update("status", models.StatusPending)

	// Backdate the record past the TTL.
	old := time.Now().Add(-200 * time.Hour)
	db.Model(&models.Verification{}).Where("id = ?", verification.ID).
		Update("created_at", old)

	expired, err := o.ExpireStale(context.Background(), 168*time.Hour)
	if err != nil {
		t.Fatalf("ExpireStale failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	var reloaded models.Verification
	db.First(&reloaded, verification.ID)
	if reloaded.Status != models.StatusExpired {
		t.Errorf("status = %q, want expired", reloaded.Status)
	}

	var reloadedCustomer models.Customer
	db.First(&reloadedCustomer, customer.ID)
	if reloadedCustomer.Status != models.StatusExpired {
		t.Errorf("customer status = %q, want expired", reloadedCustomer.Status)
	}
}

func TestExpireStaleLeavesFreshPending(t *testing.T) {
	db := openTestDB(t)
	shop, customer, order := seedShopCustomerOrder(t, db)

	o := NewOrchestrator(db, alwaysSession("session-1", "u"), &stubOrderTagger{})
	verification, _, _ := o.StartVerification(context.Background(), shop, customer, order)

	expired, err := o.ExpireStale(context.Background(), 168*time.Hour)
	if err != nil {
		t.Fatalf("ExpireStale failed: %v", err)
	}
	if expired != 0 {
		t.Errorf("expired = %d, want 0", expired)
	}

	var reloaded models.Verification
	db.First(&reloaded, verification.ID)
	if reloaded.Status != models.StatusPending {
		t.Errorf("fresh pending verification expired")
	}
}
