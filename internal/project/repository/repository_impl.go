package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/gigvault/escrow/internal/project/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Project, error) {
	var item domain.Project
	err := db.WithContext(ctx).Raw(
		`SELECT id, client_id, freelancer_id, title, amount, status, created_at, updated_at
		 FROM projects
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
