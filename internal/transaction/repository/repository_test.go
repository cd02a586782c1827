package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gigvault/escrow/internal/transaction/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupRepo(t *testing.T) (domain.Repository, *gorm.DB, *snowflake.Node) {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.Exec(`CREATE TABLE transactions (
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
	)`).Error)
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX ux_transactions_gateway_order_id
		ON transactions (gateway_order_id)
		WHERE gateway_order_id IS NOT NULL`).Error)

	return Provide(), db, node
}

func insertTransaction(t *testing.T, repo domain.Repository, db *gorm.DB, node *snowflake.Node, status domain.Status) *domain.Transaction {
	t.Helper()
	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:                 node.Generate(),
		ProjectID:          node.Generate(),
		ClientID:           node.Generate(),
		FreelancerID:       node.Generate(),
		TotalAmount:        1000,
		PlatformCommission: 100,
		FreelancerAmount:   900,
		Status:             status,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, repo.Insert(context.Background(), db, txn))
	return txn
}

func TestUpdateStatusGuardsOnCurrentStatus(t *testing.T) {
	repo, db, node := setupRepo(t)
	txn := insertTransaction(t, repo, db, node, domain.StatusHeld)
	ctx := context.Background()

	moved, err := repo.UpdateStatus(ctx, db, txn.ID, domain.StatusHeld, domain.StatusReleased)
	require.NoError(t, err)
	require.True(t, moved)

	// The same guarded transition must lose once the row left HELD.
	moved, err = repo.UpdateStatus(ctx, db, txn.ID, domain.StatusHeld, domain.StatusReleased)
	require.NoError(t, err)
	assert.False(t, moved, "guarded update succeeded twice")

	current, err := repo.FindByID(ctx, db, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, domain.StatusReleased, current.Status)
}

func TestMarkPaymentCapturedOnlyFromCreated(t *testing.T) {
	repo, db, node := setupRepo(t)
	txn := insertTransaction(t, repo, db, node, domain.StatusCreated)
	ctx := context.Background()

	captured, err := repo.MarkPaymentCaptured(ctx, db, txn.ID, "pay_1")
	require.NoError(t, err)
	require.True(t, captured)

	captured, err = repo.MarkPaymentCaptured(ctx, db, txn.ID, "pay_2")
	require.NoError(t, err)
	assert.False(t, captured, "capture succeeded from HELD")

	current, err := repo.FindByID(ctx, db, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	require.NotNil(t, current.GatewayPaymentID)
	assert.Equal(t, "pay_1", *current.GatewayPaymentID, "payment id overwritten by losing capture")
}

func TestFindActiveByProjectSkipsFailed(t *testing.T) {
	repo, db, node := setupRepo(t)
	ctx := context.Background()

	failed := insertTransaction(t, repo, db, node, domain.StatusFailed)

	active, err := repo.FindActiveByProject(ctx, db, failed.ProjectID)
	require.NoError(t, err)
	assert.Nil(t, active, "FAILED transaction reported as active")

	held := insertTransaction(t, repo, db, node, domain.StatusHeld)
	active, err = repo.FindActiveByProject(ctx, db, held.ProjectID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, held.ID, active.ID)
}

func TestFindByGatewayOrderID(t *testing.T) {
	repo, db, node := setupRepo(t)
	ctx := context.Background()

	txn := insertTransaction(t, repo, db, node, domain.StatusCreated)
	orderID := "order_find_1"
	require.NoError(t, db.Exec(`UPDATE transactions SET gateway_order_id = ? WHERE id = ?`, orderID, txn.ID).Error)

	found, err := repo.FindByGatewayOrderID(ctx, db, orderID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, txn.ID, found.ID)

	missing, err := repo.FindByGatewayOrderID(ctx, db, "order_unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
