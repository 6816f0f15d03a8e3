package webhook

import (
	"github.com/smallbiznis/billsync/internal/webhook/adapters/stripe"
	"github.com/smallbiznis/billsync/internal/webhook/repository"
	"github.com/smallbiznis/billsync/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(stripe.NewAdapter),
	fx.Provide(stripe.NewClient),
	fx.Provide(service.NewService),
)
