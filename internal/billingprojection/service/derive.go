package service

import (
	"strings"

	"github.com/smallbiznis/billsync/internal/billingprojection/domain"
	"github.com/smallbiznis/billsync/internal/config"
	subscriptiondomain "github.com/smallbiznis/billsync/internal/subscription/domain"
)

// Derive computes the billing projection for a user from its subscriptions.
// It is pure so that policy changes can be exercised without storage.
func Derive(user domain.UserBilling, subscriptions []subscriptiondomain.Subscription, policy config.BillingPolicy) domain.Projection {
	projection := domain.Projection{
		Status:             user.Status,
		NextBillingAt:      user.NextBillingAt,
		ProviderCustomerID: user.ProviderCustomerID,
	}
	if projection.Status == "" {
		projection.Status = domain.UserStatusPending
	}

	active := latestActive(subscriptions)
	governing := active
	if governing == nil {
		governing = mostRecent(subscriptions)
	}

	if active != nil {
		projection.IsPaid = true
		if active.CurrentPeriodEnd != nil {
			end := active.CurrentPeriodEnd.UTC()
			projection.NextBillingAt = &end
		}
	} else if policy.ClearNextBillingWhenInactive {
		projection.NextBillingAt = nil
	}

	if governing != nil && governing.ProviderCustomerID != "" {
		customerID := governing.ProviderCustomerID
		projection.ProviderCustomerID = &customerID
	}

	if governing == nil || isProtected(projection.Status, policy) {
		return projection
	}
	rule, ok := ruleFor(governing.Status, policy)
	if !ok {
		return projection
	}
	if len(rule.OnlyFrom) > 0 && !contains(rule.OnlyFrom, string(projection.Status)) {
		return projection
	}
	projection.Status = domain.UserStatus(rule.UserStatus)
	return projection
}

func latestActive(subscriptions []subscriptiondomain.Subscription) *subscriptiondomain.Subscription {
	var best *subscriptiondomain.Subscription
	for i := range subscriptions {
		item := &subscriptions[i]
		if item.Status != subscriptiondomain.StatusActive {
			continue
		}
		if best == nil || laterEnd(item, best) {
			best = item
		}
	}
	return best
}

func laterEnd(a, b *subscriptiondomain.Subscription) bool {
	switch {
	case a.CurrentPeriodEnd == nil:
		return false
	case b.CurrentPeriodEnd == nil:
		return true
	default:
		return a.CurrentPeriodEnd.After(*b.CurrentPeriodEnd)
	}
}

func mostRecent(subscriptions []subscriptiondomain.Subscription) *subscriptiondomain.Subscription {
	var best *subscriptiondomain.Subscription
	for i := range subscriptions {
		item := &subscriptions[i]
		if best == nil || item.UpdatedAt.After(best.UpdatedAt) {
			best = item
		}
	}
	return best
}

func ruleFor(status subscriptiondomain.SubscriptionStatus, policy config.BillingPolicy) (config.StatusRule, bool) {
	for _, rule := range policy.StatusRules {
		if strings.TrimSpace(rule.SubscriptionStatus) == string(status) {
			return rule, true
		}
	}
	return config.StatusRule{}, false
}

func isProtected(status domain.UserStatus, policy config.BillingPolicy) bool {
	return contains(policy.ProtectedStatuses, string(status))
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
