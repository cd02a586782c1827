package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gigvault/escrow/internal/transaction/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO transactions (
			id, project_id, client_id, freelancer_id,
			total_amount, platform_commission, freelancer_amount,
			gateway_order_id, gateway_payment_id, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.ProjectID,
		txn.ClientID,
		txn.FreelancerID,
		txn.TotalAmount,
		txn.PlatformCommission,
		txn.FreelancerAmount,
		txn.GatewayOrderID,
		txn.GatewayPaymentID,
		txn.Status,
		txn.CreatedAt,
		txn.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	return r.findOne(ctx, db, `WHERE id = ?`, id)
}

func (r *repo) FindByGatewayOrderID(ctx context.Context, db *gorm.DB, orderID string) (*domain.Transaction, error) {
	return r.findOne(ctx, db, `WHERE gateway_order_id = ?`, orderID)
}

func (r *repo) FindActiveByProject(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (*domain.Transaction, error) {
	return r.findOne(ctx, db,
		`WHERE project_id = ? AND status <> ? ORDER BY created_at DESC`,
		projectID, domain.StatusFailed,
	)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, project_id, client_id, freelancer_id,
			total_amount, platform_commission, freelancer_amount,
			gateway_order_id, gateway_payment_id, status, created_at, updated_at
		 FROM transactions `+where+` LIMIT 1`,
		args...,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		time.Now().UTC(),
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkPaymentCaptured(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transactions
		 SET status = ?, gateway_payment_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusHeld,
		paymentID,
		time.Now().UTC(),
		id,
		domain.StatusCreated,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
