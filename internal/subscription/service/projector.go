package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billsync/internal/clock"
	subscriptiondomain "github.com/smallbiznis/billsync/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Projector struct {
	log *zap.Logger

	genID  *snowflake.Node
	clock  clock.Clock
	repo   subscriptiondomain.Repository
	owners subscriptiondomain.OwnerResolver
}

type Params struct {
	fx.In

	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   subscriptiondomain.Repository
	Owners subscriptiondomain.OwnerResolver `optional:"true"`
}

func NewService(p Params) subscriptiondomain.Service {
	return &Projector{
		log: p.Log.Named("subscription.service"),

		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		owners: p.Owners,
	}
}

func (p *Projector) FindByProviderID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	return p.repo.FindByProviderID(ctx, db, strings.TrimSpace(providerSubscriptionID))
}

// Apply folds a provider snapshot into the stored subscription.
func (p *Projector) Apply(ctx context.Context, db *gorm.DB, snapshot subscriptiondomain.Snapshot, kind subscriptiondomain.ChangeKind) (subscriptiondomain.ProjectionResult, error) {
	snapshot.ProviderSubscriptionID = strings.TrimSpace(snapshot.ProviderSubscriptionID)
	snapshot.ProviderCustomerID = strings.TrimSpace(snapshot.ProviderCustomerID)
	if snapshot.ProviderSubscriptionID == "" {
		return subscriptiondomain.ProjectionResult{}, subscriptiondomain.ErrInvalidSnapshot
	}

	status := subscriptiondomain.StatusCanceled
	if kind != subscriptiondomain.KindDeleted {
		normalized, ok := subscriptiondomain.NormalizeStatus(snapshot.Status)
		if !ok {
			p.log.Warn("unknown subscription status",
				zap.String("provider_subscription_id", snapshot.ProviderSubscriptionID),
				zap.String("status", snapshot.Status),
			)
			return subscriptiondomain.ProjectionResult{
				Outcome: subscriptiondomain.ResultRejected,
				Reason:  "unknown_status",
			}, nil
		}
		status = normalized
		if err := validatePeriod(snapshot); err != nil {
			return subscriptiondomain.ProjectionResult{}, err
		}
	} else if snapshot.HasPeriod() {
		if err := validatePeriod(snapshot); err != nil {
			return subscriptiondomain.ProjectionResult{}, err
		}
	}

	existing, err := p.repo.FindByProviderIDForUpdate(ctx, db, snapshot.ProviderSubscriptionID)
	if err != nil {
		return subscriptiondomain.ProjectionResult{}, err
	}

	if existing == nil {
		created, err := p.create(ctx, db, snapshot, kind, status)
		if err != nil {
			return subscriptiondomain.ProjectionResult{}, err
		}
		if created != nil {
			return subscriptiondomain.ProjectionResult{
				Outcome:      subscriptiondomain.ResultCreated,
				Subscription: created,
			}, nil
		}
		// Lost the insert race; the winner's row is now visible.
		existing, err = p.repo.FindByProviderIDForUpdate(ctx, db, snapshot.ProviderSubscriptionID)
		if err != nil {
			return subscriptiondomain.ProjectionResult{}, err
		}
		if existing == nil {
			return subscriptiondomain.ProjectionResult{}, gorm.ErrRecordNotFound
		}
	}

	return p.update(ctx, db, existing, snapshot, kind, status)
}

func (p *Projector) create(ctx context.Context, db *gorm.DB, snapshot subscriptiondomain.Snapshot, kind subscriptiondomain.ChangeKind, status subscriptiondomain.SubscriptionStatus) (*subscriptiondomain.Subscription, error) {
	now := p.clock.Now().UTC()

	owner, err := p.resolveOwner(ctx, db, snapshot)
	if err != nil {
		return nil, err
	}

	item := &subscriptiondomain.Subscription{
		ID:                     p.genID.Generate(),
		UserID:                 owner,
		ProviderSubscriptionID: snapshot.ProviderSubscriptionID,
		ProviderCustomerID:     snapshot.ProviderCustomerID,
		Status:                 status,
		CurrentPeriodStart:     timePtr(snapshot.CurrentPeriodStart),
		CurrentPeriodEnd:       timePtr(snapshot.CurrentPeriodEnd),
		Amount:                 snapshot.Amount,
		Currency:               strings.ToUpper(strings.TrimSpace(snapshot.Currency)),
		CancelAtPeriodEnd:      snapshot.CancelAtPeriodEnd,
		CanceledAt:             utcPtr(snapshot.CanceledAt),
		LastEventID:            snapshot.EventID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if kind == subscriptiondomain.KindDeleted && item.CanceledAt == nil {
		item.CanceledAt = &now
	}

	inserted, err := p.repo.Insert(ctx, db, item)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}

	if kind == subscriptiondomain.KindDeleted {
		p.log.Info("recorded cancellation for unknown subscription",
			zap.String("provider_subscription_id", item.ProviderSubscriptionID),
		)
	}
	return item, nil
}

func (p *Projector) update(ctx context.Context, db *gorm.DB, existing *subscriptiondomain.Subscription, snapshot subscriptiondomain.Snapshot, kind subscriptiondomain.ChangeKind, status subscriptiondomain.SubscriptionStatus) (subscriptiondomain.ProjectionResult, error) {
	previous := existing.Status
	result := subscriptiondomain.ProjectionResult{Subscription: existing, Previous: previous}
	now := p.clock.Now().UTC()

	if kind == subscriptiondomain.KindDeleted {
		existing.Status = subscriptiondomain.StatusCanceled
		if existing.CanceledAt == nil {
			existing.CanceledAt = utcPtr(snapshot.CanceledAt)
			if existing.CanceledAt == nil {
				existing.CanceledAt = &now
			}
		}
		if existing.CurrentPeriodStart == nil {
			existing.CurrentPeriodStart = timePtr(snapshot.CurrentPeriodStart)
		}
		if existing.CurrentPeriodEnd == nil {
			existing.CurrentPeriodEnd = timePtr(snapshot.CurrentPeriodEnd)
		}
		existing.CancelAtPeriodEnd = false
	} else {
		if existing.CurrentPeriodEnd != nil && existing.CurrentPeriodEnd.After(snapshot.CurrentPeriodEnd) {
			result.Outcome = subscriptiondomain.ResultStale
			result.Reason = "older_billing_period"
			return result, nil
		}
		if !subscriptiondomain.CanTransition(previous, status) {
			p.log.Warn("rejected subscription transition",
				zap.String("provider_subscription_id", existing.ProviderSubscriptionID),
				zap.String("from", string(previous)),
				zap.String("to", string(status)),
			)
			result.Outcome = subscriptiondomain.ResultRejected
			result.Reason = "transition_not_allowed"
			return result, nil
		}

		existing.Status = status
		existing.CurrentPeriodStart = timePtr(snapshot.CurrentPeriodStart)
		existing.CurrentPeriodEnd = timePtr(snapshot.CurrentPeriodEnd)
		existing.Amount = snapshot.Amount
		if currency := strings.ToUpper(strings.TrimSpace(snapshot.Currency)); currency != "" {
			existing.Currency = currency
		}
		existing.CancelAtPeriodEnd = snapshot.CancelAtPeriodEnd
		if snapshot.CanceledAt != nil {
			existing.CanceledAt = utcPtr(snapshot.CanceledAt)
		}
	}

	if snapshot.ProviderCustomerID != "" {
		existing.ProviderCustomerID = snapshot.ProviderCustomerID
	}
	if existing.UserID == nil {
		owner, err := p.resolveOwner(ctx, db, snapshot)
		if err != nil {
			return subscriptiondomain.ProjectionResult{}, err
		}
		existing.UserID = owner
	}
	existing.LastEventID = snapshot.EventID
	existing.UpdatedAt = now

	if err := p.repo.Update(ctx, db, existing); err != nil {
		return subscriptiondomain.ProjectionResult{}, err
	}

	result.Outcome = subscriptiondomain.ResultApplied
	return result, nil
}

// resolveOwner prefers the user id carried in provider metadata.
func (p *Projector) resolveOwner(ctx context.Context, db *gorm.DB, snapshot subscriptiondomain.Snapshot) (*snowflake.ID, error) {
	if hint := strings.TrimSpace(snapshot.UserHint); hint != "" {
		id, err := snowflake.ParseString(hint)
		if err == nil && id > 0 {
			return &id, nil
		}
		p.log.Warn("ignoring malformed owner hint",
			zap.String("provider_subscription_id", snapshot.ProviderSubscriptionID),
			zap.String("user_hint", hint),
		)
	}

	if p.owners == nil || snapshot.ProviderCustomerID == "" {
		return nil, nil
	}
	owner, err := p.owners.ResolveOwner(ctx, db, snapshot.ProviderCustomerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		p.log.Warn("subscription owner unresolved",
			zap.String("provider_subscription_id", snapshot.ProviderSubscriptionID),
			zap.String("provider_customer_id", snapshot.ProviderCustomerID),
		)
	}
	return owner, nil
}

func validatePeriod(snapshot subscriptiondomain.Snapshot) error {
	if snapshot.CurrentPeriodStart.IsZero() || snapshot.CurrentPeriodEnd.IsZero() {
		return subscriptiondomain.ErrInvalidPeriod
	}
	if !snapshot.CurrentPeriodEnd.After(snapshot.CurrentPeriodStart) {
		return subscriptiondomain.ErrInvalidPeriod
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	value := t.UTC()
	return &value
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	value := t.UTC()
	return &value
}
