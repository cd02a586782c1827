package gateway

import (
	"github.com/gigvault/escrow/internal/config"
	"github.com/gigvault/escrow/internal/gateway/domain"
	"github.com/gigvault/escrow/internal/gateway/razorpay"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(func(cfg config.Config, log *zap.Logger) domain.Client {
		return razorpay.New(cfg, log)
	}),
)
