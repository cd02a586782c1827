package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/gigvault/escrow/internal/account/domain"
	"github.com/gigvault/escrow/internal/config"
	gatewaydomain "github.com/gigvault/escrow/internal/gateway/domain"
	obsmetrics "github.com/gigvault/escrow/internal/observability/metrics"
	"github.com/gigvault/escrow/internal/payout/domain"
	projectdomain "github.com/gigvault/escrow/internal/project/domain"
	txdomain "github.com/gigvault/escrow/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Platform    *config.PlatformConfigHolder
	Repo        domain.Repository
	TxRepo      txdomain.Repository
	ProjectRepo projectdomain.Repository
	AccountRepo accountdomain.Repository
	Gateway     gatewaydomain.Client
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	platform    *config.PlatformConfigHolder
	repo        domain.Repository
	txRepo      txdomain.Repository
	projectRepo projectdomain.Repository
	accountRepo accountdomain.Repository
	gateway     gatewaydomain.Client
	metrics     *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payout.service"),
		genID:       p.GenID,
		platform:    p.Platform,
		repo:        p.Repo,
		txRepo:      p.TxRepo,
		projectRepo: p.ProjectRepo,
		accountRepo: p.AccountRepo,
		gateway:     p.Gateway,
		metrics:     p.Metrics,
	}
}

// ReleasePayment moves a HELD transaction to RELEASED and schedules the
// freelancer transfer. The local transition and the payout insert commit
// together; the gateway call happens after commit, and a gateway failure
// compensates by reverting the transaction to HELD for a later retry.
func (s *Service) ReleasePayment(ctx context.Context, req domain.ReleaseRequest) (*domain.Payout, error) {
	if req.TransactionID == 0 {
		return nil, txdomain.ErrNotFound
	}

	txn, err := s.txRepo.FindByID(ctx, s.db, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, txdomain.ErrNotFound
	}
	if txn.Status != txdomain.StatusHeld {
		return nil, txdomain.ErrStateConflict
	}

	project, err := s.projectRepo.FindByID(ctx, s.db, txn.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, projectdomain.ErrNotFound
	}
	if project.Status != projectdomain.StatusCompleted {
		return nil, domain.ErrProjectNotCompleted
	}

	account, err := s.accountRepo.FindVerified(ctx, s.db, txn.FreelancerID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrNoVerifiedAccount
	}

	now := time.Now().UTC()
	payout := &domain.Payout{
		ID:            s.genID.Generate(),
		TransactionID: txn.ID,
		FreelancerID:  txn.FreelancerID,
		Amount:        txn.FreelancerAmount,
		Status:        domain.StatusQueued,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.txRepo.UpdateStatus(ctx, tx, txn.ID, txdomain.StatusHeld, txdomain.StatusReleased)
		if err != nil {
			return err
		}
		if !moved {
			// A concurrent release already won.
			return txdomain.ErrStateConflict
		}

		active, err := s.repo.CountActiveByTransaction(ctx, tx, txn.ID)
		if err != nil {
			return err
		}
		if active > 0 {
			return txdomain.ErrStateConflict
		}

		return s.repo.Insert(ctx, tx, payout)
	})
	if err != nil {
		return nil, err
	}

	ref, err := s.gateway.CreatePayout(ctx, gatewaydomain.CreatePayoutRequest{
		Amount:        payout.Amount,
		Currency:      s.platform.Get().Currency,
		Reference:     payout.ID.String(),
		AccountHolder: account.AccountHolder,
		AccountNumber: account.AccountNumber,
		IFSC:          account.IFSC,
		VPA:           account.VPA,
		Narration:     fmt.Sprintf("Escrow release for project %s", txn.ProjectID),
	})
	if err != nil {
		s.compensateFailedSchedule(ctx, txn.ID, payout.ID, err)
		s.recordPayout(string(domain.StatusFailed))
		return nil, err
	}

	if _, err := s.repo.MarkScheduled(ctx, s.db, payout.ID, ref.ID); err != nil {
		// Scheduled at the gateway but not recorded locally; the payout
		// webhooks still reconcile by gateway_payout_id once this row is
		// repaired, so log loudly instead of failing the release.
		s.log.Error("failed to record scheduled payout",
			zap.String("payout_id", payout.ID.String()),
			zap.String("gateway_payout_id", ref.ID),
			zap.Error(err))
	} else {
		payout.Status = domain.StatusPending
		payout.GatewayPayoutID = &ref.ID
	}

	s.recordPayout(string(payout.Status))
	s.log.Info("payout scheduled",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("payout_id", payout.ID.String()),
		zap.String("gateway_payout_id", ref.ID),
		zap.String("admin_id", req.AdminID.String()),
		zap.Int64("amount", payout.Amount))

	return payout, nil
}

// compensateFailedSchedule reverts a release whose gateway call failed so
// the admin can retry: transaction back to HELD, payout finalized FAILED.
func (s *Service) compensateFailedSchedule(ctx context.Context, txnID, payoutID snowflake.ID, cause error) {
	reverted, err := s.txRepo.UpdateStatus(ctx, s.db, txnID, txdomain.StatusReleased, txdomain.StatusHeld)
	if err != nil || !reverted {
		s.log.Error("failed to revert transaction after gateway failure",
			zap.String("transaction_id", txnID.String()),
			zap.Bool("reverted", reverted),
			zap.Error(err))
	}
	if _, err := s.repo.MarkFailed(ctx, s.db, payoutID, domain.StatusFailed, cause.Error()); err != nil {
		s.log.Error("failed to mark payout failed",
			zap.String("payout_id", payoutID.String()),
			zap.Error(err))
	}
	s.log.Warn("payout scheduling failed, transaction reverted to HELD",
		zap.String("transaction_id", txnID.String()),
		zap.String("payout_id", payoutID.String()),
		zap.Error(cause))
}

// UpdatePayoutStatus applies a gateway-reported status change. It is
// idempotent: re-applying the status a payout already has is a no-op.
func (s *Service) UpdatePayoutStatus(ctx context.Context, req domain.UpdateStatusRequest) error {
	gatewayPayoutID := strings.TrimSpace(req.GatewayPayoutID)
	if gatewayPayoutID == "" {
		return domain.ErrNotFound
	}

	mapped, err := domain.MapGatewayStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		return err
	}

	payout, err := s.repo.FindByGatewayPayoutID(ctx, s.db, gatewayPayoutID)
	if err != nil {
		return err
	}
	if payout == nil {
		return domain.ErrNotFound
	}

	if payout.Status == mapped {
		return nil
	}
	if payout.Status.Terminal() {
		// Late or out-of-order delivery after a terminal state; the log
		// line is the audit trail for manual reconciliation.
		s.log.Warn("ignoring status change for terminal payout",
			zap.String("payout_id", payout.ID.String()),
			zap.String("current", string(payout.Status)),
			zap.String("incoming", string(mapped)))
		return nil
	}

	switch mapped {
	case domain.StatusProcessing:
		if _, err := s.repo.MarkProcessing(ctx, s.db, payout.ID); err != nil {
			return err
		}
	case domain.StatusProcessed:
		return s.finalizeProcessed(ctx, payout, strings.TrimSpace(req.UTR))
	case domain.StatusFailed, domain.StatusReversed:
		return s.finalizeFailed(ctx, payout, mapped, strings.TrimSpace(req.FailureReason))
	case domain.StatusQueued, domain.StatusPending:
		// The gateway never moves a payout backwards; nothing to apply.
	}

	s.recordPayout(string(mapped))
	return nil
}

// finalizeProcessed marks the payout PROCESSED and completes the parent
// transaction in the same database transaction.
func (s *Service) finalizeProcessed(ctx context.Context, payout *domain.Payout, utr string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.MarkProcessed(ctx, tx, payout.ID, utr)
		if err != nil {
			return err
		}
		if !moved {
			return txdomain.ErrStateConflict
		}

		completed, err := s.txRepo.UpdateStatus(ctx, tx, payout.TransactionID, txdomain.StatusReleased, txdomain.StatusCompleted)
		if err != nil {
			return err
		}
		if !completed {
			// The transaction left RELEASED through another path; keep
			// the payout result but surface the anomaly.
			s.log.Error("payout processed but transaction not in RELEASED",
				zap.String("payout_id", payout.ID.String()),
				zap.String("transaction_id", payout.TransactionID.String()))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordPayout(string(domain.StatusProcessed))
	s.log.Info("payout processed",
		zap.String("payout_id", payout.ID.String()),
		zap.String("transaction_id", payout.TransactionID.String()),
		zap.String("utr", utr))
	return nil
}

// finalizeFailed records a FAILED or REVERSED payout. The parent
// transaction deliberately stays RELEASED: funds already left platform
// custody but were not delivered, which an operator must reconcile.
func (s *Service) finalizeFailed(ctx context.Context, payout *domain.Payout, to domain.Status, reason string) error {
	moved, err := s.repo.MarkFailed(ctx, s.db, payout.ID, to, reason)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	s.recordPayout(string(to))
	s.log.Warn("payout failed, transaction flagged for manual reconciliation",
		zap.String("payout_id", payout.ID.String()),
		zap.String("transaction_id", payout.TransactionID.String()),
		zap.String("status", string(to)),
		zap.String("reason", reason))
	return nil
}

func (s *Service) GetPayout(ctx context.Context, id snowflake.ID) (*domain.Payout, error) {
	payout, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, domain.ErrNotFound
	}
	return payout, nil
}

func (s *Service) ListFreelancerPayouts(ctx context.Context, freelancerID snowflake.ID, limit int) ([]domain.Payout, error) {
	return s.repo.ListByFreelancer(ctx, s.db, freelancerID, limit)
}

func (s *Service) recordPayout(status string) {
	if s.metrics != nil {
		s.metrics.RecordPayoutStatus(status)
	}
}
