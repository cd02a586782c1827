package payout

import (
	"github.com/gigvault/escrow/internal/payout/repository"
	"github.com/gigvault/escrow/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
