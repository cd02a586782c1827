package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gigvault/escrow/internal/config"
	gatewaydomain "github.com/gigvault/escrow/internal/gateway/domain"
	obsmetrics "github.com/gigvault/escrow/internal/observability/metrics"
	payoutdomain "github.com/gigvault/escrow/internal/payout/domain"
	txdomain "github.com/gigvault/escrow/internal/transaction/domain"
	"github.com/gigvault/escrow/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg     config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	TxRepo  txdomain.Repository
	Payouts payoutdomain.Service
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Processor struct {
	cfg     config.Config
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	txRepo  txdomain.Repository
	payouts payoutdomain.Service
	metrics *obsmetrics.Metrics
}

func NewProcessor(p Params) domain.Processor {
	return &Processor{
		cfg:     p.Cfg,
		db:      p.DB,
		log:     p.Log.Named("webhook.processor"),
		genID:   p.GenID,
		repo:    p.Repo,
		txRepo:  p.TxRepo,
		payouts: p.Payouts,
		metrics: p.Metrics,
	}
}

func (p *Processor) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	// The signature covers the exact raw body; rejected deliveries leave
	// no trace in the event log.
	if !gatewaydomain.VerifyWebhookSignature(p.cfg.GatewayWebhookSecret, body, signature) {
		p.record("unknown", "signature_rejected")
		p.log.Warn("webhook signature rejected")
		return domain.ErrInvalidSignature
	}

	var envelope domain.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		p.record("unknown", "invalid_payload")
		return domain.ErrInvalidPayload
	}
	if strings.TrimSpace(envelope.ID) == "" || strings.TrimSpace(envelope.Event) == "" {
		p.record("unknown", "invalid_payload")
		return domain.ErrInvalidPayload
	}

	record := &domain.EventRecord{
		ID:             p.genID.Generate(),
		EventType:      envelope.Event,
		GatewayEventID: envelope.ID,
		Payload:        datatypes.JSON(body),
		CreatedAt:      time.Now().UTC(),
	}
	inserted, err := p.repo.InsertEvent(ctx, p.db, record)
	if err != nil {
		return err
	}
	if !inserted {
		// An earlier delivery already holds the row. Only a processed row
		// makes the redelivery a no-op; a row left with an error_message
		// means the handler failed last time and the gateway is retrying
		// for us, so run the dispatch again against the stored row.
		stored, err := p.repo.FindByGatewayEventID(ctx, p.db, envelope.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			return gorm.ErrRecordNotFound
		}
		if stored.Processed {
			p.record(envelope.Event, "duplicate")
			p.log.Info("duplicate webhook delivery ignored",
				zap.String("gateway_event_id", envelope.ID),
				zap.String("event", envelope.Event))
			return nil
		}
		record = stored
		p.log.Info("retrying previously failed webhook delivery",
			zap.String("gateway_event_id", envelope.ID),
			zap.String("event", envelope.Event))
	}

	if err := p.dispatch(ctx, envelope); err != nil {
		p.record(envelope.Event, "failed")
		if markErr := p.repo.MarkError(ctx, p.db, record.ID, err.Error()); markErr != nil {
			p.log.Error("failed to record webhook error",
				zap.String("gateway_event_id", envelope.ID),
				zap.Error(markErr))
		}
		p.log.Error("webhook handler failed",
			zap.String("gateway_event_id", envelope.ID),
			zap.String("event", envelope.Event),
			zap.Error(err))
		return err
	}

	if err := p.repo.MarkProcessed(ctx, p.db, record.ID); err != nil {
		return err
	}
	p.record(envelope.Event, "processed")
	return nil
}

func (p *Processor) dispatch(ctx context.Context, envelope domain.Envelope) error {
	switch envelope.Event {
	case domain.EventPaymentCaptured:
		return p.handlePaymentCaptured(ctx, envelope)
	case domain.EventPaymentFailed:
		return p.handlePaymentFailed(ctx, envelope)
	case domain.EventPayoutProcessed, domain.EventPayoutFailed, domain.EventPayoutReversed:
		return p.handlePayoutEvent(ctx, envelope)
	default:
		p.log.Info("ignoring unhandled webhook event",
			zap.String("gateway_event_id", envelope.ID),
			zap.String("event", envelope.Event))
		return nil
	}
}

// handlePaymentCaptured is the server-to-server confirmation path. It
// converges with the browser verify callback: whichever arrives first
// moves the transaction to HELD, the other becomes a no-op.
func (p *Processor) handlePaymentCaptured(ctx context.Context, envelope domain.Envelope) error {
	payment, err := paymentEntity(envelope)
	if err != nil {
		return err
	}

	txn, err := p.txRepo.FindByGatewayOrderID(ctx, p.db, payment.OrderID)
	if err != nil {
		return err
	}
	if txn == nil {
		return txdomain.ErrNotFound
	}

	captured, err := p.txRepo.MarkPaymentCaptured(ctx, p.db, txn.ID, payment.ID)
	if err != nil {
		return err
	}
	if !captured {
		p.log.Info("payment already captured",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("gateway_payment_id", payment.ID))
		return nil
	}

	p.log.Info("payment captured via webhook",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("gateway_order_id", payment.OrderID),
		zap.String("gateway_payment_id", payment.ID))
	return nil
}

func (p *Processor) handlePaymentFailed(ctx context.Context, envelope domain.Envelope) error {
	payment, err := paymentEntity(envelope)
	if err != nil {
		return err
	}

	txn, err := p.txRepo.FindByGatewayOrderID(ctx, p.db, payment.OrderID)
	if err != nil {
		return err
	}
	if txn == nil {
		return txdomain.ErrNotFound
	}

	failed, err := p.txRepo.UpdateStatus(ctx, p.db, txn.ID, txdomain.StatusCreated, txdomain.StatusFailed)
	if err != nil {
		return err
	}
	if !failed {
		// Capture won the race or the transaction already failed.
		p.log.Info("payment failure ignored, transaction not in CREATED",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("status", string(txn.Status)))
		return nil
	}

	p.log.Warn("payment failed",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("gateway_order_id", payment.OrderID))
	return nil
}

func (p *Processor) handlePayoutEvent(ctx context.Context, envelope domain.Envelope) error {
	if envelope.Payload.Payout == nil {
		return domain.ErrInvalidPayload
	}
	entity := envelope.Payload.Payout.Entity
	if strings.TrimSpace(entity.ID) == "" {
		return domain.ErrInvalidPayload
	}

	status := entity.Status
	if status == "" {
		// Some gateways omit the entity status; the event name carries it.
		status = strings.TrimPrefix(envelope.Event, "payout.")
	}

	err := p.payouts.UpdatePayoutStatus(ctx, payoutdomain.UpdateStatusRequest{
		GatewayPayoutID: entity.ID,
		Status:          status,
		UTR:             entity.UTR,
		FailureReason:   entity.FailureReason,
	})
	if errors.Is(err, payoutdomain.ErrUnknownStatus) {
		// Unknown status names are recorded, logged and acknowledged so
		// the gateway does not redeliver forever.
		p.log.Warn("webhook carried unknown payout status",
			zap.String("gateway_payout_id", entity.ID),
			zap.String("status", entity.Status))
		return nil
	}
	return err
}

func paymentEntity(envelope domain.Envelope) (*domain.PaymentEntity, error) {
	if envelope.Payload.Payment == nil {
		return nil, domain.ErrInvalidPayload
	}
	entity := envelope.Payload.Payment.Entity
	if strings.TrimSpace(entity.OrderID) == "" {
		return nil, domain.ErrInvalidPayload
	}
	return &entity, nil
}

func (p *Processor) record(event, result string) {
	if p.metrics != nil {
		p.metrics.RecordWebhookEvent(event, result)
	}
}
