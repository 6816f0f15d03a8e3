package repository_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/billsync/internal/subscription/domain"
	"github.com/smallbiznis/billsync/internal/subscription/repository"
	"github.com/smallbiznis/billsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscription(id snowflake.ID, status subscriptiondomain.SubscriptionStatus) *subscriptiondomain.Subscription {
	now := testutil.Date(2024, 1, 1)
	return &subscriptiondomain.Subscription{
		ID:                     id,
		ProviderSubscriptionID: "sub_dup",
		ProviderCustomerID:     "cus_1",
		Status:                 status,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

func TestInsertReportsDuplicateSubscription(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := repository.Provide()

	first, err := repo.Insert(ctx, db, subscription(1, subscriptiondomain.StatusActive))
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.Insert(ctx, db, subscription(2, subscriptiondomain.StatusCanceled))
	require.NoError(t, err)
	assert.False(t, second)

	stored, err := repo.FindByProviderIDForUpdate(ctx, db, "sub_dup")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, snowflake.ID(1), stored.ID)
	assert.Equal(t, subscriptiondomain.StatusActive, stored.Status)
}
