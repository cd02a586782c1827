package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/gigvault/escrow/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindVerified(ctx context.Context, db *gorm.DB, freelancerID snowflake.ID) (*domain.FreelancerAccount, error) {
	var item domain.FreelancerAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, freelancer_id, account_type, account_holder, account_number,
			ifsc, vpa, verification_status, created_at, updated_at
		 FROM freelancer_accounts
		 WHERE freelancer_id = ? AND verification_status = ?
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		freelancerID,
		domain.VerificationVerified,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
