package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billsync/internal/billingprojection/domain"
	"github.com/smallbiznis/billsync/internal/clock"
	"github.com/smallbiznis/billsync/internal/config"
	subscriptiondomain "github.com/smallbiznis/billsync/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log              *zap.Logger
	Clock            clock.Clock
	Policy           *config.PolicyHolder
	Repo             domain.Repository
	SubscriptionRepo subscriptiondomain.Repository
}

type Service struct {
	log              *zap.Logger
	clock            clock.Clock
	policy           *config.PolicyHolder
	repo             domain.Repository
	subscriptionRepo subscriptiondomain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		log:              p.Log.Named("billingprojection.service"),
		clock:            p.Clock,
		policy:           p.Policy,
		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
	}
}

// Recompute re-derives and stores the user's billing columns within db's transaction.
func (s *Service) Recompute(ctx context.Context, db *gorm.DB, userID snowflake.ID) (domain.RecomputeResult, error) {
	if userID == 0 {
		return domain.RecomputeResult{}, domain.ErrInvalidUser
	}

	user, err := s.repo.FindUser(ctx, db, userID)
	if err != nil {
		return domain.RecomputeResult{}, err
	}
	if user == nil {
		return domain.RecomputeResult{UserID: userID}, domain.ErrUserNotFound
	}

	subscriptions, err := s.subscriptionRepo.ListByUser(ctx, db, userID)
	if err != nil {
		return domain.RecomputeResult{}, err
	}

	projection := Derive(*user, subscriptions, s.currentPolicy())
	result := domain.RecomputeResult{UserID: userID, Projection: projection}
	if projection.Equal(*user) {
		return result, nil
	}

	if err := s.repo.UpdateBilling(ctx, db, userID, projection, s.clock.Now().UTC()); err != nil {
		return domain.RecomputeResult{}, err
	}
	result.Changed = true

	s.log.Info("user billing updated",
		zap.String("user_id", userID.String()),
		zap.String("from_status", string(user.Status)),
		zap.String("to_status", string(projection.Status)),
		zap.Bool("is_paid", projection.IsPaid),
	)
	return result, nil
}

// ResolveOwner finds the user already linked to a provider customer.
func (s *Service) ResolveOwner(ctx context.Context, db *gorm.DB, providerCustomerID string) (*snowflake.ID, error) {
	providerCustomerID = strings.TrimSpace(providerCustomerID)
	if providerCustomerID == "" {
		return nil, nil
	}
	user, err := s.repo.FindByProviderCustomerID(ctx, db, providerCustomerID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	id := user.ID
	return &id, nil
}

func (s *Service) currentPolicy() config.BillingPolicy {
	if s.policy == nil {
		return config.DefaultBillingPolicy()
	}
	return s.policy.Get()
}
