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
	StatusCreated   Status = "CREATED"
	StatusHeld      Status = "HELD"
	StatusReleased  Status = "RELEASED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Transaction is one funded project-payment attempt. The amount split is
// computed once at creation and never updated afterwards:
// TotalAmount == PlatformCommission + FreelancerAmount.
type Transaction struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	ProjectID          snowflake.ID `json:"project_id" gorm:"not null;index"`
	ClientID           snowflake.ID `json:"client_id" gorm:"not null"`
	FreelancerID       snowflake.ID `json:"freelancer_id" gorm:"not null"`
	TotalAmount        int64        `json:"total_amount" gorm:"not null"`
	PlatformCommission int64        `json:"platform_commission" gorm:"not null"`
	FreelancerAmount   int64        `json:"freelancer_amount" gorm:"not null"`
	GatewayOrderID     *string      `json:"gateway_order_id,omitempty" gorm:"type:text;uniqueIndex"`
	GatewayPaymentID   *string      `json:"gateway_payment_id,omitempty" gorm:"type:text"`
	Status             Status       `json:"status" gorm:"type:text;not null"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

var (
	ErrNotFound      = errors.New("transaction_not_found")
	ErrStateConflict = errors.New("state_conflict")
)

// Repository persists transactions. Every transition is a guarded update:
// the boolean result is false when the row was not in the expected status,
// which means a concurrent operation already won the transition.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindByGatewayOrderID(ctx context.Context, db *gorm.DB, orderID string) (*Transaction, error)
	// FindActiveByProject returns the project's most recent non-FAILED
	// transaction, if any.
	FindActiveByProject(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (*Transaction, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status) (bool, error)
	// MarkPaymentCaptured moves CREATED to HELD and records the verified
	// gateway payment id in the same statement.
	MarkPaymentCaptured(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID string) (bool, error)
}
