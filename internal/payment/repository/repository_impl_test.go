package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/billsync/internal/payment/domain"
	"github.com/smallbiznis/billsync/internal/payment/repository"
	"github.com/smallbiznis/billsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payment(id snowflake.ID, invoiceID string, status paymentdomain.PaymentStatus) *paymentdomain.Payment {
	return &paymentdomain.Payment{
		ID:                id,
		ProviderInvoiceID: invoiceID,
		Amount:            1200,
		Currency:          "USD",
		Status:            status,
		CreatedAt:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestInsertReportsDuplicateInvoice(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := repository.Provide()

	first, err := repo.Insert(ctx, db, payment(1, "in_dup", paymentdomain.PaymentStatusSucceeded))
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.Insert(ctx, db, payment(2, "in_dup", paymentdomain.PaymentStatusFailed))
	require.NoError(t, err)
	assert.False(t, second)

	stored, err := repo.FindByInvoiceID(ctx, db, "in_dup")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, snowflake.ID(1), stored.ID)
	assert.Equal(t, paymentdomain.PaymentStatusSucceeded, stored.Status)

	var count int64
	require.NoError(t, db.Model(&paymentdomain.Payment{}).Where("provider_invoice_id = ?", "in_dup").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestFindByInvoiceIDMissing(t *testing.T) {
	stored, err := repository.Provide().FindByInvoiceID(context.Background(), testutil.NewDB(t), "in_none")
	require.NoError(t, err)
	assert.Nil(t, stored)
}
