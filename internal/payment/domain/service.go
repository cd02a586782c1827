package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	txdomain "github.com/gigvault/escrow/internal/transaction/domain"
)

var (
	ErrNotProjectOwner  = errors.New("not_project_owner")
	ErrAlreadyFunded    = errors.New("project_already_funded")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidSignature = errors.New("invalid_signature")
)

type CreatePaymentRequest struct {
	ClientID  snowflake.ID
	ProjectID snowflake.ID
}

// OrderResult is what a client needs to open the gateway checkout.
type OrderResult struct {
	Transaction    *txdomain.Transaction
	GatewayOrderID string
	Amount         int64
	Currency       string
	GatewayKeyID   string
}

// VerifyPaymentRequest carries the checkout callback fields whose
// signature proves the gateway captured the payment.
type VerifyPaymentRequest struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type Service interface {
	// CreateWalletPayment funds a project from the client's prepaid
	// wallet. Debit and transaction insert commit atomically; the
	// transaction starts in HELD because the platform already holds the
	// funds.
	CreateWalletPayment(ctx context.Context, req CreatePaymentRequest) (*txdomain.Transaction, error)
	// CreateServicePaymentOrder opens a gateway order for checkout and
	// records a CREATED transaction carrying the frozen commission split.
	CreateServicePaymentOrder(ctx context.Context, req CreatePaymentRequest) (*OrderResult, error)
	// ProcessServicePayment verifies the checkout signature and moves the
	// transaction to HELD. Safe to call more than once for the same
	// capture.
	ProcessServicePayment(ctx context.Context, req VerifyPaymentRequest) (*txdomain.Transaction, error)
	GetTransaction(ctx context.Context, id snowflake.ID) (*txdomain.Transaction, error)
}
