package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billsync/internal/billingprojection/domain"
	"github.com/smallbiznis/billsync/internal/billingprojection/repository"
	"github.com/smallbiznis/billsync/internal/billingprojection/service"
	"github.com/smallbiznis/billsync/internal/clock"
	"github.com/smallbiznis/billsync/internal/config"
	subscriptiondomain "github.com/smallbiznis/billsync/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/billsync/internal/subscription/repository"
	"github.com/smallbiznis/billsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newBillingService(t *testing.T) (*service.Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	svc := service.NewService(service.Params{
		Log:              zap.NewNop(),
		Clock:            clock.NewFakeClock(testutil.Date(2024, 1, 15)),
		Policy:           config.NewStaticPolicyHolder(config.DefaultBillingPolicy()),
		Repo:             repository.Provide(),
		SubscriptionRepo: subscriptionrepo.Provide(),
	})
	return svc, db
}

func insertSubscription(t *testing.T, db *gorm.DB, id snowflake.ID, userID snowflake.ID, providerID string, status subscriptiondomain.SubscriptionStatus, end time.Time) {
	t.Helper()
	start := end.AddDate(0, -1, 0)
	now := time.Now().UTC()
	inserted, err := subscriptionrepo.Provide().Insert(context.Background(), db, &subscriptiondomain.Subscription{
		ID:                     id,
		UserID:                 &userID,
		ProviderSubscriptionID: providerID,
		ProviderCustomerID:     "cus_1",
		Status:                 status,
		CurrentPeriodStart:     &start,
		CurrentPeriodEnd:       &end,
		Currency:               "USD",
		CreatedAt:              now,
		UpdatedAt:              now,
	})
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestRecomputeProjectsActiveSubscription(t *testing.T) {
	ctx := context.Background()
	svc, db := newBillingService(t)

	testutil.SeedUser(t, db, 10, domain.UserStatusPending, "")
	insertSubscription(t, db, 100, 10, "sub_1", subscriptiondomain.StatusActive, testutil.Date(2024, 2, 1))

	result, err := svc.Recompute(ctx, db, 10)
	require.NoError(t, err)
	assert.True(t, result.Changed)

	user := testutil.LoadUser(t, db, 10)
	assert.Equal(t, domain.UserStatusApproved, user.Status)
	assert.True(t, user.IsPaid)
	require.NotNil(t, user.NextBillingAt)
	assert.True(t, user.NextBillingAt.Equal(testutil.Date(2024, 2, 1)))
	require.NotNil(t, user.ProviderCustomerID)
	assert.Equal(t, "cus_1", *user.ProviderCustomerID)

	again, err := svc.Recompute(ctx, db, 10)
	require.NoError(t, err)
	assert.False(t, again.Changed)
}

func TestRecomputeUnknownUser(t *testing.T) {
	svc, db := newBillingService(t)

	_, err := svc.Recompute(context.Background(), db, 404)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestResolveOwner(t *testing.T) {
	ctx := context.Background()
	svc, db := newBillingService(t)
	testutil.SeedUser(t, db, 10, domain.UserStatusPending, "cus_known")

	owner, err := svc.ResolveOwner(ctx, db, "cus_known")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, snowflake.ID(10), *owner)

	owner, err = svc.ResolveOwner(ctx, db, "cus_missing")
	require.NoError(t, err)
	assert.Nil(t, owner)
}
