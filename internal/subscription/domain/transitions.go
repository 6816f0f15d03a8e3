package domain

import "strings"

var transitions = map[SubscriptionStatus]map[SubscriptionStatus]struct{}{
	StatusIncomplete: {StatusActive: {}, StatusCanceled: {}},
	StatusActive:     {StatusPastDue: {}, StatusUnpaid: {}, StatusCanceled: {}},
	StatusPastDue:    {StatusActive: {}, StatusUnpaid: {}, StatusCanceled: {}},
	StatusUnpaid:     {StatusActive: {}, StatusPastDue: {}, StatusCanceled: {}},
	StatusCanceled:   {},
}

// CanTransition reports whether the state machine allows moving from one status to another.
// Re-asserting the current status is always allowed.
func CanTransition(from, to SubscriptionStatus) bool {
	if from == to {
		return true
	}
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// NormalizeStatus maps a provider status onto the local state machine.
func NormalizeStatus(raw string) (SubscriptionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "incomplete":
		return StatusIncomplete, true
	case "active", "trialing":
		return StatusActive, true
	case "past_due":
		return StatusPastDue, true
	case "unpaid":
		return StatusUnpaid, true
	case "canceled", "incomplete_expired":
		return StatusCanceled, true
	default:
		return "", false
	}
}
