package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountrepository "github.com/gigvault/escrow/internal/account/repository"
	"github.com/gigvault/escrow/internal/config"
	gatewaydomain "github.com/gigvault/escrow/internal/gateway/domain"
	payoutdomain "github.com/gigvault/escrow/internal/payout/domain"
	payoutrepository "github.com/gigvault/escrow/internal/payout/repository"
	payoutservice "github.com/gigvault/escrow/internal/payout/service"
	projectrepository "github.com/gigvault/escrow/internal/project/repository"
	txdomain "github.com/gigvault/escrow/internal/transaction/domain"
	txrepository "github.com/gigvault/escrow/internal/transaction/repository"
	"github.com/gigvault/escrow/internal/webhook/domain"
	"github.com/gigvault/escrow/internal/webhook/repository"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test"

type gatewayStub struct{}

func (gatewayStub) CreateOrder(ctx context.Context, req gatewaydomain.CreateOrderRequest) (*gatewaydomain.Order, error) {
	return &gatewaydomain.Order{ID: "order_stub", Status: "created"}, nil
}

func (gatewayStub) CreatePayout(ctx context.Context, req gatewaydomain.CreatePayoutRequest) (*gatewaydomain.PayoutRef, error) {
	return &gatewaydomain.PayoutRef{ID: "pout_stub_1", Status: "queued"}, nil
}

type fixture struct {
	processor domain.Processor
	payouts   payoutdomain.Service
	db        *gorm.DB
	node      *snowflake.Node
	txRepo    txdomain.Repository
}

func setupProcessor(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	prepareWebhookSchema(t, db)

	txRepo := txrepository.Provide()
	payouts := payoutservice.NewService(payoutservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Platform:    config.NewStaticPlatformConfigHolder(config.PlatformConfig{CommissionPercent: 10, Currency: "INR"}),
		Repo:        payoutrepository.Provide(),
		TxRepo:      txRepo,
		ProjectRepo: projectrepository.Provide(),
		AccountRepo: accountrepository.Provide(),
		Gateway:     gatewayStub{},
	})

	processor := NewProcessor(Params{
		Cfg:     config.Config{GatewayWebhookSecret: testWebhookSecret},
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
		TxRepo:  txRepo,
		Payouts: payouts,
	})

	return &fixture{processor: processor, payouts: payouts, db: db, node: node, txRepo: txRepo}
}

func prepareWebhookSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE projects (
			id BIGINT PRIMARY KEY,
			client_id BIGINT NOT NULL,
			freelancer_id BIGINT NOT NULL,
			title TEXT NOT NULL,
			amount BIGINT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE freelancer_accounts (
			id BIGINT PRIMARY KEY,
			freelancer_id BIGINT NOT NULL,
			account_type TEXT NOT NULL,
			account_holder TEXT NOT NULL,
			account_number TEXT,
			ifsc TEXT,
			vpa TEXT,
			verification_status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE transactions (
			id BIGINT PRIMARY KEY,
			project_id BIGINT NOT NULL,
			client_id BIGINT NOT NULL,
			freelancer_id BIGINT NOT NULL,
			total_amount BIGINT NOT NULL,
			platform_commission BIGINT NOT NULL,
			freelancer_amount BIGINT NOT NULL,
			gateway_order_id TEXT,
			gateway_payment_id TEXT,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE payouts (
			id BIGINT PRIMARY KEY,
			transaction_id BIGINT NOT NULL,
			freelancer_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			gateway_payout_id TEXT,
			utr TEXT,
			failure_reason TEXT,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE webhook_events (
			id BIGINT PRIMARY KEY,
			event_type TEXT NOT NULL,
			gateway_event_id TEXT NOT NULL,
			payload JSON NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			error_message TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_webhook_events_gateway_event_id
			ON webhook_events (gateway_event_id)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

// seedScheduledPayout creates a RELEASED transaction with a PENDING payout
// known to the gateway as pout_stub_1.
func (f *fixture) seedScheduledPayout(t *testing.T) (*txdomain.Transaction, snowflake.ID) {
	t.Helper()

	now := time.Now().UTC()
	txn := &txdomain.Transaction{
		ID:                 f.node.Generate(),
		ProjectID:          f.node.Generate(),
		ClientID:           f.node.Generate(),
		FreelancerID:       f.node.Generate(),
		TotalAmount:        1000,
		PlatformCommission: 100,
		FreelancerAmount:   900,
		Status:             txdomain.StatusReleased,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := f.txRepo.Insert(context.Background(), f.db, txn); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	payoutID := f.node.Generate()
	if err := f.db.Exec(
		`INSERT INTO payouts (id, transaction_id, freelancer_id, amount, gateway_payout_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		payoutID, txn.ID, txn.FreelancerID, 900, "pout_stub_1", payoutdomain.StatusPending, now, now,
	).Error; err != nil {
		t.Fatalf("seed payout: %v", err)
	}
	return txn, payoutID
}

func (f *fixture) deliver(t *testing.T, body string) error {
	t.Helper()
	raw := []byte(body)
	return f.processor.HandleWebhook(context.Background(), raw, gatewaydomain.SignWebhook(testWebhookSecret, raw))
}

func (f *fixture) eventRow(t *testing.T, gatewayEventID string) (processed bool, errorMessage *string, found bool) {
	t.Helper()
	var row struct {
		Processed    bool
		ErrorMessage *string
		Found        int
	}
	err := f.db.Raw(
		`SELECT processed, error_message, 1 AS found FROM webhook_events WHERE gateway_event_id = ?`,
		gatewayEventID,
	).Scan(&row).Error
	if err != nil {
		t.Fatalf("read event row: %v", err)
	}
	return row.Processed, row.ErrorMessage, row.Found == 1
}

func TestHandleWebhookPayoutProcessed(t *testing.T) {
	f := setupProcessor(t)
	txn, payoutID := f.seedScheduledPayout(t)

	body := `{"id":"evt_1","event":"payout.processed","payload":{"payout":{"entity":{"id":"pout_stub_1","status":"processed","utr":"UTR42"}}}}`
	if err := f.deliver(t, body); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	payout, err := f.payouts.GetPayout(context.Background(), payoutID)
	if err != nil {
		t.Fatalf("get payout: %v", err)
	}
	if payout.Status != payoutdomain.StatusProcessed {
		t.Fatalf("payout status = %s, want PROCESSED", payout.Status)
	}
	if payout.UTR == nil || *payout.UTR != "UTR42" {
		t.Fatalf("utr not recorded")
	}

	updated, err := f.txRepo.FindByID(context.Background(), f.db, txn.ID)
	if err != nil || updated == nil {
		t.Fatalf("load transaction: %v", err)
	}
	if updated.Status != txdomain.StatusCompleted {
		t.Fatalf("transaction status = %s, want COMPLETED", updated.Status)
	}

	processed, _, found := f.eventRow(t, "evt_1")
	if !found || !processed {
		t.Fatalf("event row processed = %v found = %v, want processed", processed, found)
	}
}

func TestHandleWebhookDuplicateDeliveryDispatchesOnce(t *testing.T) {
	f := setupProcessor(t)
	_, payoutID := f.seedScheduledPayout(t)

	body := `{"id":"evt_dup","event":"payout.failed","payload":{"payout":{"entity":{"id":"pout_stub_1","status":"failed","failure_reason":"account closed"}}}}`
	if err := f.deliver(t, body); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.deliver(t, body); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	var count int
	if err := f.db.Raw(`SELECT COUNT(1) FROM webhook_events WHERE gateway_event_id = ?`, "evt_dup").Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("event rows = %d, want 1", count)
	}

	payout, err := f.payouts.GetPayout(context.Background(), payoutID)
	if err != nil {
		t.Fatalf("get payout: %v", err)
	}
	if payout.Status != payoutdomain.StatusFailed {
		t.Fatalf("payout status = %s, want FAILED", payout.Status)
	}
	if payout.FailureReason == nil || *payout.FailureReason != "account closed" {
		t.Fatalf("failure reason not recorded")
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := setupProcessor(t)

	body := []byte(`{"id":"evt_sig","event":"payout.processed","payload":{}}`)
	err := f.processor.HandleWebhook(context.Background(), body, "not-a-signature")
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}

	_, _, found := f.eventRow(t, "evt_sig")
	if found {
		t.Fatalf("rejected delivery must not be logged")
	}
}

func TestHandleWebhookUnknownEventAcknowledged(t *testing.T) {
	f := setupProcessor(t)

	body := `{"id":"evt_other","event":"refund.created","payload":{}}`
	if err := f.deliver(t, body); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	processed, errMsg, found := f.eventRow(t, "evt_other")
	if !found || !processed || errMsg != nil {
		t.Fatalf("unknown event row = (processed %v, err %v, found %v), want processed clean row", processed, errMsg, found)
	}
}

func TestHandleWebhookHandlerFailureRecordsError(t *testing.T) {
	f := setupProcessor(t)

	// No payout with this gateway id exists, so dispatch fails and the
	// gateway should redeliver.
	body := `{"id":"evt_fail","event":"payout.processed","payload":{"payout":{"entity":{"id":"pout_unknown","status":"processed"}}}}`
	err := f.deliver(t, body)
	if err == nil {
		t.Fatalf("expected handler failure")
	}

	processed, errMsg, found := f.eventRow(t, "evt_fail")
	if !found {
		t.Fatalf("failed event must still be logged")
	}
	if processed {
		t.Fatalf("failed event must not be marked processed")
	}
	if errMsg == nil || *errMsg == "" {
		t.Fatalf("error_message not recorded")
	}
}

func TestHandleWebhookRedeliveryRetriesFailedEvent(t *testing.T) {
	f := setupProcessor(t)

	// First delivery races ahead of the payout row and fails; the row is
	// logged unprocessed and the gateway gets a 5xx.
	body := `{"id":"evt_retry","event":"payout.processed","payload":{"payout":{"entity":{"id":"pout_stub_1","status":"processed","utr":"UTR77"}}}}`
	if err := f.deliver(t, body); err == nil {
		t.Fatalf("expected first delivery to fail before the payout exists")
	}
	processed, errMsg, found := f.eventRow(t, "evt_retry")
	if !found || processed || errMsg == nil {
		t.Fatalf("first delivery row = (processed %v, err %v, found %v), want unprocessed with error", processed, errMsg, found)
	}

	// The payout lands, the gateway redelivers the identical event, and
	// the stored row must be dispatched again rather than acknowledged.
	txn, payoutID := f.seedScheduledPayout(t)
	if err := f.deliver(t, body); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	payout, err := f.payouts.GetPayout(context.Background(), payoutID)
	if err != nil {
		t.Fatalf("get payout: %v", err)
	}
	if payout.Status != payoutdomain.StatusProcessed {
		t.Fatalf("payout status = %s, want PROCESSED after redelivery", payout.Status)
	}
	if payout.UTR == nil || *payout.UTR != "UTR77" {
		t.Fatalf("utr not recorded on redelivery")
	}
	updated, err := f.txRepo.FindByID(context.Background(), f.db, txn.ID)
	if err != nil || updated == nil {
		t.Fatalf("load transaction: %v", err)
	}
	if updated.Status != txdomain.StatusCompleted {
		t.Fatalf("transaction status = %s, want COMPLETED", updated.Status)
	}

	processed, errMsg, found = f.eventRow(t, "evt_retry")
	if !found || !processed || errMsg != nil {
		t.Fatalf("redelivered row = (processed %v, err %v, found %v), want processed clean row", processed, errMsg, found)
	}

	var count int
	if err := f.db.Raw(`SELECT COUNT(1) FROM webhook_events WHERE gateway_event_id = ?`, "evt_retry").Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("event rows = %d, want 1", count)
	}
}

func TestHandleWebhookConcurrentDuplicateDeliveries(t *testing.T) {
	f := setupProcessor(t)
	_, payoutID := f.seedScheduledPayout(t)

	body := `{"id":"evt_race","event":"payout.failed","payload":{"payout":{"entity":{"id":"pout_stub_1","status":"failed","failure_reason":"account closed"}}}}`

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := []byte(body)
			errs[i] = f.processor.HandleWebhook(context.Background(), raw, gatewaydomain.SignWebhook(testWebhookSecret, raw))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	var count int
	if err := f.db.Raw(`SELECT COUNT(1) FROM webhook_events WHERE gateway_event_id = ?`, "evt_race").Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("event rows = %d, want 1", count)
	}

	payout, err := f.payouts.GetPayout(context.Background(), payoutID)
	if err != nil {
		t.Fatalf("get payout: %v", err)
	}
	if payout.Status != payoutdomain.StatusFailed {
		t.Fatalf("payout status = %s, want FAILED", payout.Status)
	}
	if payout.FailureReason == nil || *payout.FailureReason != "account closed" {
		t.Fatalf("failure reason not recorded")
	}

	processed, _, found := f.eventRow(t, "evt_race")
	if !found || !processed {
		t.Fatalf("event row processed = %v found = %v, want processed", processed, found)
	}
}

func TestHandleWebhookPaymentCapturedHoldsTransaction(t *testing.T) {
	f := setupProcessor(t)

	now := time.Now().UTC()
	orderID := "order_cap_1"
	txn := &txdomain.Transaction{
		ID:                 f.node.Generate(),
		ProjectID:          f.node.Generate(),
		ClientID:           f.node.Generate(),
		FreelancerID:       f.node.Generate(),
		TotalAmount:        1000,
		PlatformCommission: 100,
		FreelancerAmount:   900,
		GatewayOrderID:     &orderID,
		Status:             txdomain.StatusCreated,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := f.txRepo.Insert(context.Background(), f.db, txn); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	body := `{"id":"evt_cap","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_cap_1","order_id":"order_cap_1","status":"captured"}}}}`
	if err := f.deliver(t, body); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	updated, err := f.txRepo.FindByID(context.Background(), f.db, txn.ID)
	if err != nil || updated == nil {
		t.Fatalf("load transaction: %v", err)
	}
	if updated.Status != txdomain.StatusHeld {
		t.Fatalf("transaction status = %s, want HELD", updated.Status)
	}
	if updated.GatewayPaymentID == nil || *updated.GatewayPaymentID != "pay_cap_1" {
		t.Fatalf("gateway payment id not recorded")
	}
}

func TestHandleWebhookPaymentFailedIgnoredAfterCapture(t *testing.T) {
	f := setupProcessor(t)

	now := time.Now().UTC()
	orderID := "order_race_1"
	paymentID := "pay_race_1"
	txn := &txdomain.Transaction{
		ID:                 f.node.Generate(),
		ProjectID:          f.node.Generate(),
		ClientID:           f.node.Generate(),
		FreelancerID:       f.node.Generate(),
		TotalAmount:        1000,
		PlatformCommission: 100,
		FreelancerAmount:   900,
		GatewayOrderID:     &orderID,
		GatewayPaymentID:   &paymentID,
		Status:             txdomain.StatusHeld,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := f.txRepo.Insert(context.Background(), f.db, txn); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	body := `{"id":"evt_late_fail","event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_race_1","order_id":"order_race_1","status":"failed"}}}}`
	if err := f.deliver(t, body); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	updated, err := f.txRepo.FindByID(context.Background(), f.db, txn.ID)
	if err != nil || updated == nil {
		t.Fatalf("load transaction: %v", err)
	}
	if updated.Status != txdomain.StatusHeld {
		t.Fatalf("transaction status = %s, want HELD preserved", updated.Status)
	}
}
