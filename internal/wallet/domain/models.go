package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Wallet holds a client's prepaid balance in minor currency units.
type Wallet struct {
	ClientID  snowflake.ID `json:"client_id" gorm:"primaryKey"`
	Balance   int64        `json:"balance" gorm:"not null;default:0"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Wallet) TableName() string { return "wallets" }

var (
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrInvalidAmount     = errors.New("invalid_amount")
)

type Repository interface {
	FindByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (*Wallet, error)
	// Debit subtracts amount only when the balance covers it; the caller
	// checks the returned flag for insufficient funds.
	Debit(ctx context.Context, db *gorm.DB, clientID snowflake.ID, amount int64) (bool, error)
	Credit(ctx context.Context, db *gorm.DB, clientID snowflake.ID, amount int64) error
}
