package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gigvault/escrow/internal/payout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `id, transaction_id, freelancer_id, amount,
	gateway_payout_id, utr, failure_reason, status, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (
			id, transaction_id, freelancer_id, amount,
			gateway_payout_id, utr, failure_reason, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.TransactionID,
		payout.FreelancerID,
		payout.Amount,
		payout.GatewayPayoutID,
		payout.UTR,
		payout.FailureReason,
		payout.Status,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payout, error) {
	return r.findOne(ctx, db, `WHERE id = ?`, id)
}

func (r *repo) FindByGatewayPayoutID(ctx context.Context, db *gorm.DB, gatewayPayoutID string) (*domain.Payout, error) {
	return r.findOne(ctx, db, `WHERE gateway_payout_id = ?`, gatewayPayoutID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Payout, error) {
	var item domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM payouts `+where+` LIMIT 1`,
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

func (r *repo) CountActiveByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM payouts
		 WHERE transaction_id = ? AND status IN (?, ?, ?)`,
		transactionID,
		domain.StatusQueued,
		domain.StatusPending,
		domain.StatusProcessing,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) ListByFreelancer(ctx context.Context, db *gorm.DB, freelancerID snowflake.ID, limit int) ([]domain.Payout, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var items []domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM payouts
		 WHERE freelancer_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		freelancerID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkScheduled(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayPayoutID string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, gateway_payout_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusPending,
		gatewayPayoutID,
		time.Now().UTC(),
		id,
		domain.StatusQueued,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusProcessing,
		time.Now().UTC(),
		id,
		domain.StatusQueued,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, utr string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, utr = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?, ?)`,
		domain.StatusProcessed,
		utr,
		time.Now().UTC(),
		id,
		domain.StatusQueued,
		domain.StatusPending,
		domain.StatusProcessing,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, to domain.Status, reason string) (bool, error) {
	if to != domain.StatusFailed && to != domain.StatusReversed {
		return false, domain.ErrUnknownStatus
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?, ?)`,
		to,
		reason,
		time.Now().UTC(),
		id,
		domain.StatusQueued,
		domain.StatusPending,
		domain.StatusProcessing,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
