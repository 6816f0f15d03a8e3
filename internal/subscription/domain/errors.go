package domain

import "errors"

var (
	ErrInvalidSnapshot = errors.New("invalid_subscription_snapshot")
	ErrInvalidPeriod   = errors.New("invalid_billing_period")
)
