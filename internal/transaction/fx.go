package transaction

import (
	"github.com/gigvault/escrow/internal/transaction/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.ledger",
	fx.Provide(repository.Provide),
)
