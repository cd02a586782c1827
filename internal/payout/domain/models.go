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
	StatusQueued     Status = "QUEUED"
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusProcessed  Status = "PROCESSED"
	StatusFailed     Status = "FAILED"
	StatusReversed   Status = "REVERSED"
)

// Terminal reports whether the payout reached an end state.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed || s == StatusReversed
}

// Payout is one release attempt against a transaction. Retries insert new
// rows; history is never overwritten. At most one payout per transaction
// may be in a non-terminal status at a time.
type Payout struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	TransactionID   snowflake.ID `json:"transaction_id" gorm:"not null;index"`
	FreelancerID    snowflake.ID `json:"freelancer_id" gorm:"not null;index"`
	Amount          int64        `json:"amount" gorm:"not null"`
	GatewayPayoutID *string      `json:"gateway_payout_id,omitempty" gorm:"type:text;uniqueIndex"`
	UTR             *string      `json:"utr,omitempty" gorm:"type:text"`
	FailureReason   *string      `json:"failure_reason,omitempty" gorm:"type:text"`
	Status          Status       `json:"status" gorm:"type:text;not null"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

func (Payout) TableName() string { return "payouts" }

var (
	ErrNotFound            = errors.New("payout_not_found")
	ErrProjectNotCompleted = errors.New("project_not_completed")
	ErrUnknownStatus       = errors.New("unknown_payout_status")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	FindByGatewayPayoutID(ctx context.Context, db *gorm.DB, gatewayPayoutID string) (*Payout, error)
	// CountActiveByTransaction counts payouts still in a non-terminal
	// status for the transaction.
	CountActiveByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (int64, error)
	ListByFreelancer(ctx context.Context, db *gorm.DB, freelancerID snowflake.ID, limit int) ([]Payout, error)
	// MarkScheduled stores the gateway payout id and moves QUEUED to
	// PENDING once the transfer is accepted by the gateway.
	MarkScheduled(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayPayoutID string) (bool, error)
	// MarkProcessing moves QUEUED or PENDING to PROCESSING.
	MarkProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	// MarkProcessed finalizes a payout with its UTR. Guarded on the
	// payout still being non-terminal.
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, utr string) (bool, error)
	// MarkFailed finalizes a payout as FAILED or REVERSED with a reason.
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, to Status, reason string) (bool, error)
}

// MapGatewayStatus translates the gateway's payout status vocabulary.
func MapGatewayStatus(raw string) (Status, error) {
	switch raw {
	case "queued":
		return StatusQueued, nil
	case "pending":
		return StatusPending, nil
	case "processing":
		return StatusProcessing, nil
	case "processed":
		return StatusProcessed, nil
	case "failed", "rejected", "cancelled":
		return StatusFailed, nil
	case "reversed":
		return StatusReversed, nil
	default:
		return "", ErrUnknownStatus
	}
}
