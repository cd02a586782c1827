package wallet

import (
	"github.com/gigvault/escrow/internal/wallet/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet",
	fx.Provide(repository.Provide),
)
