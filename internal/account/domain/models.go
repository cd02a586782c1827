package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationRejected VerificationStatus = "REJECTED"
)

type AccountType string

const (
	AccountTypeBank AccountType = "bank"
	AccountTypeVPA  AccountType = "vpa"
)

// FreelancerAccount is the payout destination registered by a freelancer.
// Account CRUD and KYC verification live outside the escrow core; payouts
// only ever target a VERIFIED account.
type FreelancerAccount struct {
	ID                 snowflake.ID       `json:"id" gorm:"primaryKey"`
	FreelancerID       snowflake.ID       `json:"freelancer_id" gorm:"not null;index"`
	AccountType        AccountType        `json:"account_type" gorm:"type:text;not null"`
	AccountHolder      string             `json:"account_holder" gorm:"type:text;not null"`
	AccountNumber      string             `json:"account_number,omitempty" gorm:"type:text"`
	IFSC               string             `json:"ifsc,omitempty" gorm:"type:text"`
	VPA                string             `json:"vpa,omitempty" gorm:"type:text"`
	VerificationStatus VerificationStatus `json:"verification_status" gorm:"type:text;not null"`
	CreatedAt          time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"not null"`
}

func (FreelancerAccount) TableName() string { return "freelancer_accounts" }

var ErrNoVerifiedAccount = errors.New("no_verified_account")

type Repository interface {
	FindVerified(ctx context.Context, db *gorm.DB, freelancerID snowflake.ID) (*FreelancerAccount, error)
}
