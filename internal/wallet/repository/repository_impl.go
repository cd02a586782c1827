package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gigvault/escrow/internal/wallet/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (*domain.Wallet, error) {
	var item domain.Wallet
	err := db.WithContext(ctx).Raw(
		`SELECT client_id, balance, updated_at
		 FROM wallets
		 WHERE client_id = ?
		 LIMIT 1`,
		clientID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ClientID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Debit(ctx context.Context, db *gorm.DB, clientID snowflake.ID, amount int64) (bool, error) {
	if amount <= 0 {
		return false, domain.ErrInvalidAmount
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE wallets
		 SET balance = balance - ?, updated_at = ?
		 WHERE client_id = ? AND balance >= ?`,
		amount,
		time.Now().UTC(),
		clientID,
		amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Credit(ctx context.Context, db *gorm.DB, clientID snowflake.ID, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	return db.WithContext(ctx).Exec(
		`UPDATE wallets
		 SET balance = balance + ?, updated_at = ?
		 WHERE client_id = ?`,
		amount,
		time.Now().UTC(),
		clientID,
	).Error
}
