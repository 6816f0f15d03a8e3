package service

import (
	"context"
	"errors"

	billingdomain "github.com/smallbiznis/billsync/internal/billingprojection/domain"
	paymentdomain "github.com/smallbiznis/billsync/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/billsync/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/billsync/internal/webhook/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type route int

const (
	routeIgnore route = iota
	routeSubscription
	routeInvoice
	routeUpcoming
)

// plan is everything an event needs that can be computed before the
// transaction opens, so provider calls never hold row locks.
type plan struct {
	route    route
	event    *webhookdomain.Event
	change   subscriptiondomain.ChangeKind
	snapshot subscriptiondomain.Snapshot
	invoice  webhookdomain.Invoice
	status   paymentdomain.PaymentStatus
	fetched  *subscriptiondomain.Snapshot
}

func classify(eventType string) (route, subscriptiondomain.ChangeKind, paymentdomain.PaymentStatus) {
	switch eventType {
	case webhookdomain.EventTypeSubscriptionCreated:
		return routeSubscription, subscriptiondomain.KindCreated, ""
	case webhookdomain.EventTypeSubscriptionUpdated:
		return routeSubscription, subscriptiondomain.KindUpdated, ""
	case webhookdomain.EventTypeSubscriptionDeleted:
		return routeSubscription, subscriptiondomain.KindDeleted, ""
	case webhookdomain.EventTypeInvoicePaid, webhookdomain.EventTypeInvoicePaymentSucceeded:
		return routeInvoice, "", paymentdomain.PaymentStatusSucceeded
	case webhookdomain.EventTypeInvoicePaymentFailed:
		return routeInvoice, "", paymentdomain.PaymentStatusFailed
	case webhookdomain.EventTypeInvoiceUpcoming:
		return routeUpcoming, "", ""
	default:
		return routeIgnore, "", ""
	}
}

func (d *Dispatcher) plan(ctx context.Context, log *zap.Logger, event *webhookdomain.Event) (*plan, error) {
	r, change, status := classify(event.Type)
	p := &plan{route: r, event: event, change: change, status: status}

	switch r {
	case routeSubscription:
		snapshot, err := d.adapter.ParseSubscription(event)
		if err != nil {
			return nil, err
		}
		p.snapshot = snapshot
	case routeInvoice:
		invoice, err := d.adapter.ParseInvoice(event)
		if err != nil {
			return nil, err
		}
		p.invoice = invoice
		p.fetched = d.prefetchSubscription(ctx, log, invoice.SubscriptionID, event.ID)
	}
	return p, nil
}

// prefetchSubscription loads a subscription from the provider when an invoice
// references one we have never stored. Failures degrade to a payment without a
// subscription link.
func (d *Dispatcher) prefetchSubscription(ctx context.Context, log *zap.Logger, providerSubscriptionID, eventID string) *subscriptiondomain.Snapshot {
	if providerSubscriptionID == "" || d.client == nil {
		return nil
	}
	existing, err := d.subscriptions.FindByProviderID(ctx, d.db, providerSubscriptionID)
	if err != nil {
		log.Warn("subscription lookup failed before provider fetch",
			zap.String("provider_subscription_id", providerSubscriptionID),
			zap.Error(err),
		)
		return nil
	}
	if existing != nil {
		return nil
	}

	snapshot, err := d.client.FetchSubscription(ctx, providerSubscriptionID)
	if err != nil {
		log.Warn("provider subscription fetch failed",
			zap.String("provider_subscription_id", providerSubscriptionID),
			zap.Error(err),
		)
		return nil
	}
	snapshot.EventID = eventID
	return &snapshot
}

func (d *Dispatcher) apply(ctx context.Context, tx *gorm.DB, log *zap.Logger, p *plan) (webhookdomain.Outcome, error) {
	switch p.route {
	case routeSubscription:
		if err := d.applySubscription(ctx, tx, log, p.snapshot, p.change); err != nil {
			return "", err
		}
		return webhookdomain.OutcomeProcessed, nil
	case routeInvoice:
		if err := d.applyInvoice(ctx, tx, log, p); err != nil {
			return "", err
		}
		return webhookdomain.OutcomeProcessed, nil
	case routeUpcoming:
		log.Info("upcoming invoice acknowledged")
		return webhookdomain.OutcomeIgnored, nil
	default:
		log.Debug("unhandled webhook type acknowledged")
		return webhookdomain.OutcomeIgnored, nil
	}
}

func (d *Dispatcher) applySubscription(ctx context.Context, tx *gorm.DB, log *zap.Logger, snapshot subscriptiondomain.Snapshot, change subscriptiondomain.ChangeKind) error {
	result, err := d.subscriptions.Apply(ctx, tx, snapshot, change)
	if err != nil {
		return err
	}
	d.recordProjection(ctx, result)

	fields := []zap.Field{
		zap.String("provider_subscription_id", snapshot.ProviderSubscriptionID),
		zap.String("result", string(result.Outcome)),
	}
	if result.Reason != "" {
		fields = append(fields, zap.String("reason", result.Reason))
	}
	if !result.Changed() {
		log.Info("subscription update not applied", fields...)
		return nil
	}
	log.Debug("subscription projected", fields...)
	return d.recompute(ctx, tx, log, result.Subscription)
}

func (d *Dispatcher) applyInvoice(ctx context.Context, tx *gorm.DB, log *zap.Logger, p *plan) error {
	invoice := p.invoice

	var subscription *subscriptiondomain.Subscription
	if invoice.SubscriptionID != "" {
		found, err := d.subscriptions.FindByProviderID(ctx, tx, invoice.SubscriptionID)
		if err != nil {
			return err
		}
		subscription = found
	}

	if subscription == nil && p.fetched != nil {
		result, err := d.subscriptions.Apply(ctx, tx, *p.fetched, subscriptiondomain.KindUpdated)
		switch {
		case errors.Is(err, subscriptiondomain.ErrInvalidPeriod), errors.Is(err, subscriptiondomain.ErrInvalidSnapshot):
			log.Warn("fetched subscription unusable", zap.String("provider_subscription_id", invoice.SubscriptionID), zap.Error(err))
		case err != nil:
			return err
		default:
			d.recordProjection(ctx, result)
			subscription = result.Subscription
			if result.Changed() {
				if err := d.recompute(ctx, tx, log, subscription); err != nil {
					return err
				}
			}
		}
	}

	req := paymentdomain.RecordPaymentRequest{
		ProviderInvoiceID:       invoice.ID,
		ProviderPaymentIntentID: invoice.PaymentIntentID,
		Currency:                invoice.Currency,
		Status:                  p.status,
		BillingReason:           invoice.BillingReason,
		Amount:                  invoice.AmountPaid,
	}
	if p.status == paymentdomain.PaymentStatusSucceeded {
		req.PaidAt = invoice.PaidAt
		if req.PaidAt == nil {
			paidAt := p.event.Created
			if paidAt.IsZero() {
				paidAt = d.clock.Now().UTC()
			}
			req.PaidAt = &paidAt
		}
	} else {
		req.Amount = invoice.AmountDue
	}
	if subscription != nil {
		id := subscription.ID
		req.SubscriptionID = &id
		req.UserID = subscription.UserID
	} else if invoice.SubscriptionID != "" {
		log.Warn("payment recorded without local subscription", zap.String("provider_subscription_id", invoice.SubscriptionID))
	}

	result, err := d.payments.RecordPayment(ctx, tx, req)
	if err != nil {
		return err
	}
	if d.webhookMetrics != nil {
		d.webhookMetrics.IncPayment(string(req.Status), result.Created)
	}
	if d.obsMetrics != nil {
		d.obsMetrics.RecordPaymentEvent(ctx, string(req.Status), result.Created)
	}
	return nil
}

func (d *Dispatcher) recompute(ctx context.Context, tx *gorm.DB, log *zap.Logger, subscription *subscriptiondomain.Subscription) error {
	if subscription == nil || subscription.UserID == nil {
		log.Warn("user billing projection skipped: owner unresolved")
		return nil
	}
	userID := *subscription.UserID
	_, err := d.billing.Recompute(ctx, tx, userID)
	if errors.Is(err, billingdomain.ErrUserNotFound) {
		log.Warn("user billing projection skipped: user not found", zap.String("user_id", userID.String()))
		return nil
	}
	return err
}

func (d *Dispatcher) recordProjection(ctx context.Context, result subscriptiondomain.ProjectionResult) {
	if d.webhookMetrics != nil {
		d.webhookMetrics.IncProjection(string(result.Outcome))
	}
	if d.obsMetrics != nil {
		d.obsMetrics.RecordProjection(ctx, string(result.Outcome))
	}
}
