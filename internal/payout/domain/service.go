package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type ReleaseRequest struct {
	TransactionID snowflake.ID
	AdminID       snowflake.ID
}

// UpdateStatusRequest carries a gateway-reported payout status change,
// either from a webhook or from a direct gateway response.
type UpdateStatusRequest struct {
	GatewayPayoutID string
	Status          string
	UTR             string
	FailureReason   string
}

type Service interface {
	ReleasePayment(ctx context.Context, req ReleaseRequest) (*Payout, error)
	UpdatePayoutStatus(ctx context.Context, req UpdateStatusRequest) error
	GetPayout(ctx context.Context, id snowflake.ID) (*Payout, error)
	ListFreelancerPayouts(ctx context.Context, freelancerID snowflake.ID, limit int) ([]Payout, error)
}
