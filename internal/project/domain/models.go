package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Project is owned by the marketplace CRUD layer; the escrow core only
// reads it.
type Project struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	ClientID     snowflake.ID `json:"client_id" gorm:"not null;index"`
	FreelancerID snowflake.ID `json:"freelancer_id" gorm:"not null;index"`
	Title        string       `json:"title" gorm:"type:text;not null"`
	Amount       int64        `json:"amount" gorm:"not null"`
	Status       Status       `json:"status" gorm:"type:text;not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (Project) TableName() string { return "projects" }

var ErrNotFound = errors.New("project_not_found")

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Project, error)
}
