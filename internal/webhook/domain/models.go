package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Gateway event types the processor acts on. Anything else is recorded
// and acknowledged without side effects.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventPayoutProcessed = "payout.processed"
	EventPayoutFailed    = "payout.failed"
	EventPayoutReversed  = "payout.reversed"
)

var (
	ErrInvalidSignature = errors.New("invalid_webhook_signature")
	ErrInvalidPayload   = errors.New("invalid_webhook_payload")
)

// EventRecord is the durable log of every accepted webhook delivery. The
// unique gateway_event_id index is what makes redeliveries harmless.
type EventRecord struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventType      string         `json:"event_type" gorm:"type:text;not null"`
	GatewayEventID string         `json:"gateway_event_id" gorm:"type:text;not null;uniqueIndex"`
	Payload        datatypes.JSON `json:"payload" gorm:"not null"`
	Processed      bool           `json:"processed" gorm:"not null"`
	ErrorMessage   *string        `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "webhook_events" }

// Envelope is the gateway's delivery format.
type Envelope struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment,omitempty"`
		Payout *struct {
			Entity PayoutEntity `json:"entity"`
		} `json:"payout,omitempty"`
	} `json:"payload"`
}

type PaymentEntity struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type PayoutEntity struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	UTR           string `json:"utr"`
	FailureReason string `json:"failure_reason"`
}

type Repository interface {
	// InsertEvent stores the delivery, relying on the unique
	// gateway_event_id index. Returns false when the event was already
	// recorded by an earlier delivery.
	InsertEvent(ctx context.Context, db *gorm.DB, ev *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	MarkError(ctx context.Context, db *gorm.DB, id snowflake.ID, message string) error
	FindByGatewayEventID(ctx context.Context, db *gorm.DB, gatewayEventID string) (*EventRecord, error)
}

type Processor interface {
	// HandleWebhook verifies the raw-body signature, dedupes by gateway
	// event id and dispatches the event. A nil return means the delivery
	// is acknowledged, including duplicates and ignored event types.
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}
