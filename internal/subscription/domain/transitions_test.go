package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SubscriptionStatus
		want     bool
	}{
		{StatusIncomplete, StatusActive, true},
		{StatusIncomplete, StatusCanceled, true},
		{StatusIncomplete, StatusPastDue, false},
		{StatusActive, StatusPastDue, true},
		{StatusActive, StatusUnpaid, true},
		{StatusActive, StatusCanceled, true},
		{StatusActive, StatusIncomplete, false},
		{StatusPastDue, StatusActive, true},
		{StatusPastDue, StatusCanceled, true},
		{StatusUnpaid, StatusActive, true},
		{StatusCanceled, StatusActive, false},
		{StatusCanceled, StatusPastDue, false},
		{StatusCanceled, StatusCanceled, true},
		{StatusActive, StatusActive, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]SubscriptionStatus{
		"active":             StatusActive,
		"trialing":           StatusActive,
		" PAST_DUE ":         StatusPastDue,
		"unpaid":             StatusUnpaid,
		"incomplete":         StatusIncomplete,
		"incomplete_expired": StatusCanceled,
		"canceled":           StatusCanceled,
	}
	for raw, want := range tests {
		got, ok := NormalizeStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	_, ok := NormalizeStatus("paused")
	assert.False(t, ok)
}
