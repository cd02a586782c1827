package webhook

import (
	"github.com/gigvault/escrow/internal/webhook/repository"
	"github.com/gigvault/escrow/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewProcessor),
)
