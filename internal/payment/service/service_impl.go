package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gigvault/escrow/internal/config"
	gatewaydomain "github.com/gigvault/escrow/internal/gateway/domain"
	obsmetrics "github.com/gigvault/escrow/internal/observability/metrics"
	"github.com/gigvault/escrow/internal/payment/domain"
	projectdomain "github.com/gigvault/escrow/internal/project/domain"
	txdomain "github.com/gigvault/escrow/internal/transaction/domain"
	walletdomain "github.com/gigvault/escrow/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Platform    *config.PlatformConfigHolder
	TxRepo      txdomain.Repository
	WalletRepo  walletdomain.Repository
	ProjectRepo projectdomain.Repository
	Gateway     gatewaydomain.Client
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	platform    *config.PlatformConfigHolder
	txRepo      txdomain.Repository
	walletRepo  walletdomain.Repository
	projectRepo projectdomain.Repository
	gateway     gatewaydomain.Client
	metrics     *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		platform:    p.Platform,
		txRepo:      p.TxRepo,
		walletRepo:  p.WalletRepo,
		projectRepo: p.ProjectRepo,
		gateway:     p.Gateway,
		metrics:     p.Metrics,
	}
}

func (s *Service) CreateWalletPayment(ctx context.Context, req domain.CreatePaymentRequest) (*txdomain.Transaction, error) {
	project, txn, err := s.prepareFunding(ctx, req)
	if err != nil {
		return nil, err
	}
	txn.Status = txdomain.StatusHeld

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		debited, err := s.walletRepo.Debit(ctx, tx, req.ClientID, txn.TotalAmount)
		if err != nil {
			return err
		}
		if !debited {
			return walletdomain.ErrInsufficientFunds
		}
		return s.txRepo.Insert(ctx, tx, txn)
	})
	if err != nil {
		s.recordPayment("wallet", "failed")
		return nil, err
	}

	s.recordPayment("wallet", "held")
	s.log.Info("wallet payment captured",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("project_id", project.ID.String()),
		zap.Int64("total_amount", txn.TotalAmount),
		zap.Int64("platform_commission", txn.PlatformCommission))
	return txn, nil
}

func (s *Service) CreateServicePaymentOrder(ctx context.Context, req domain.CreatePaymentRequest) (*domain.OrderResult, error) {
	project, txn, err := s.prepareFunding(ctx, req)
	if err != nil {
		return nil, err
	}

	platform := s.platform.Get()
	order, err := s.gateway.CreateOrder(ctx, gatewaydomain.CreateOrderRequest{
		Amount:   txn.TotalAmount,
		Currency: platform.Currency,
		Receipt:  txn.ID.String(),
		Notes: map[string]string{
			"project_id": project.ID.String(),
			"client_id":  req.ClientID.String(),
		},
	})
	if err != nil {
		s.recordPayment("gateway", "order_failed")
		return nil, err
	}

	txn.GatewayOrderID = &order.ID
	if err := s.txRepo.Insert(ctx, s.db, txn); err != nil {
		return nil, err
	}

	s.recordPayment("gateway", "order_created")
	s.log.Info("payment order created",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("project_id", project.ID.String()),
		zap.String("gateway_order_id", order.ID),
		zap.Int64("total_amount", txn.TotalAmount))

	return &domain.OrderResult{
		Transaction:    txn,
		GatewayOrderID: order.ID,
		Amount:         txn.TotalAmount,
		Currency:       platform.Currency,
		GatewayKeyID:   s.cfg.GatewayKeyID,
	}, nil
}

func (s *Service) ProcessServicePayment(ctx context.Context, req domain.VerifyPaymentRequest) (*txdomain.Transaction, error) {
	orderID := strings.TrimSpace(req.GatewayOrderID)
	paymentID := strings.TrimSpace(req.GatewayPaymentID)
	if orderID == "" || paymentID == "" {
		return nil, domain.ErrInvalidSignature
	}
	if !gatewaydomain.VerifyPaymentSignature(s.cfg.GatewayKeySecret, orderID, paymentID, req.Signature) {
		s.recordPayment("gateway", "signature_rejected")
		s.log.Warn("payment signature rejected", zap.String("gateway_order_id", orderID))
		return nil, domain.ErrInvalidSignature
	}

	txn, err := s.txRepo.FindByGatewayOrderID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, txdomain.ErrNotFound
	}

	captured, err := s.txRepo.MarkPaymentCaptured(ctx, s.db, txn.ID, paymentID)
	if err != nil {
		return nil, err
	}
	if !captured {
		// Already verified, or the transaction moved on. Re-verification
		// of the same capture succeeds; anything else is a conflict.
		current, err := s.txRepo.FindByID(ctx, s.db, txn.ID)
		if err != nil {
			return nil, err
		}
		if current != nil && current.GatewayPaymentID != nil && *current.GatewayPaymentID == paymentID {
			return current, nil
		}
		return nil, txdomain.ErrStateConflict
	}

	txn.Status = txdomain.StatusHeld
	txn.GatewayPaymentID = &paymentID

	s.recordPayment("gateway", "held")
	s.log.Info("gateway payment captured",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("gateway_order_id", orderID),
		zap.String("gateway_payment_id", paymentID))
	return txn, nil
}

func (s *Service) GetTransaction(ctx context.Context, id snowflake.ID) (*txdomain.Transaction, error) {
	txn, err := s.txRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, txdomain.ErrNotFound
	}
	return txn, nil
}

// prepareFunding runs the checks shared by both funding paths and builds
// the transaction with its commission split. The split is computed from
// the platform configuration at creation time and frozen on the row.
func (s *Service) prepareFunding(ctx context.Context, req domain.CreatePaymentRequest) (*projectdomain.Project, *txdomain.Transaction, error) {
	project, err := s.projectRepo.FindByID(ctx, s.db, req.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if project == nil {
		return nil, nil, projectdomain.ErrNotFound
	}
	if project.ClientID != req.ClientID {
		return nil, nil, domain.ErrNotProjectOwner
	}
	if project.Amount <= 0 {
		return nil, nil, domain.ErrInvalidAmount
	}

	active, err := s.txRepo.FindActiveByProject(ctx, s.db, project.ID)
	if err != nil {
		return nil, nil, err
	}
	if active != nil {
		return nil, nil, domain.ErrAlreadyFunded
	}

	commission := commissionOf(project.Amount, s.platform.Get().CommissionPercent)
	now := time.Now().UTC()
	return project, &txdomain.Transaction{
		ID:                 s.genID.Generate(),
		ProjectID:          project.ID,
		ClientID:           project.ClientID,
		FreelancerID:       project.FreelancerID,
		TotalAmount:        project.Amount,
		PlatformCommission: commission,
		FreelancerAmount:   project.Amount - commission,
		Status:             txdomain.StatusCreated,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// commissionOf rounds to the nearest minor unit; the freelancer amount is
// always the remainder, so the two parts sum to the total exactly.
func commissionOf(amount int64, percent float64) int64 {
	return int64(math.Round(float64(amount) * percent / 100))
}

func (s *Service) recordPayment(funding, result string) {
	if s.metrics != nil {
		s.metrics.RecordPayment(funding, result)
	}
}
