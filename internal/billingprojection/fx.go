package billingprojection

import (
	"github.com/smallbiznis/billsync/internal/billingprojection/domain"
	"github.com/smallbiznis/billsync/internal/billingprojection/repository"
	"github.com/smallbiznis/billsync/internal/billingprojection/service"
	subscriptiondomain "github.com/smallbiznis/billsync/internal/subscription/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("billingprojection.service",
	fx.Provide(repository.Provide),
	fx.Provide(fx.Annotate(
		service.NewService,
		fx.As(new(domain.Service)),
		fx.As(new(subscriptiondomain.OwnerResolver)),
	)),
)
