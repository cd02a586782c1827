package domain

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable covers network failures and gateway 5xx responses.
	// Callers may retry; the HTTP client already retries with backoff
	// before surfacing it.
	ErrUnavailable = errors.New("gateway_unavailable")
	// ErrRejected covers gateway 4xx responses. Never retried.
	ErrRejected = errors.New("gateway_rejected")
)

// Order is the gateway's representation of a pending charge.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

type CreateOrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// PayoutRef is the gateway's handle for a scheduled transfer.
type PayoutRef struct {
	ID     string
	Status string
}

type CreatePayoutRequest struct {
	Amount        int64
	Currency      string
	Reference     string
	AccountHolder string
	AccountNumber string
	IFSC          string
	VPA           string
	Narration     string
}

// Client is the escrow core's view of the payment gateway. Implementations
// perform blocking I/O; every method honors ctx cancellation.
type Client interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	CreatePayout(ctx context.Context, req CreatePayoutRequest) (*PayoutRef, error)
}
