package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billsync/internal/clock"
	paymentdomain "github.com/smallbiznis/billsync/internal/payment/domain"
	"github.com/smallbiznis/billsync/internal/payment/repository"
	"github.com/smallbiznis/billsync/internal/payment/service"
	"github.com/smallbiznis/billsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func newService(t *testing.T) (paymentdomain.Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	svc := service.NewService(service.Params{
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Clock: clock.NewFakeClock(testutil.Date(2024, 1, 1)),
		Repo:  repository.Provide(),
	})
	return svc, db
}

func countPayments(t *testing.T, db *gorm.DB, invoiceID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&paymentdomain.Payment{}).Where("provider_invoice_id = ?", invoiceID).Count(&count).Error)
	return count
}

func TestRecordPaymentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)

	req := paymentdomain.RecordPaymentRequest{
		ProviderInvoiceID:       "in_001",
		ProviderPaymentIntentID: "pi_001",
		Amount:                  5000,
		Currency:                "usd",
		Status:                  paymentdomain.PaymentStatusSucceeded,
		BillingReason:           "subscription_cycle",
	}

	first, err := svc.RecordPayment(ctx, db, req)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "USD", first.Payment.Currency)
	require.NotNil(t, first.Payment.ProviderPaymentIntentID)
	assert.Equal(t, "pi_001", *first.Payment.ProviderPaymentIntentID)

	second, err := svc.RecordPayment(ctx, db, req)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, int64(1), countPayments(t, db, "in_001"))
}

func TestRecordPaymentNeverOverwritesStoredOutcome(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)

	_, err := svc.RecordPayment(ctx, db, paymentdomain.RecordPaymentRequest{
		ProviderInvoiceID: "in_002",
		Amount:            900,
		Currency:          "usd",
		Status:            paymentdomain.PaymentStatusFailed,
	})
	require.NoError(t, err)

	result, err := svc.RecordPayment(ctx, db, paymentdomain.RecordPaymentRequest{
		ProviderInvoiceID: "in_002",
		Amount:            900,
		Currency:          "usd",
		Status:            paymentdomain.PaymentStatusSucceeded,
	})
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, result.Payment.Status)
}

func TestRecordPaymentConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)

	const workers = 8
	created := make([]bool, workers)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			result, err := svc.RecordPayment(ctx, db, paymentdomain.RecordPaymentRequest{
				ProviderInvoiceID: "in_001",
				Amount:            5000,
				Currency:          "usd",
				Status:            paymentdomain.PaymentStatusSucceeded,
			})
			created[i] = result.Created
			return err
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, c := range created {
		if c {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(1), countPayments(t, db, "in_001"))
}

func TestRecordPaymentValidation(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)

	valid := paymentdomain.RecordPaymentRequest{
		ProviderInvoiceID: "in_1",
		Amount:            100,
		Currency:          "usd",
		Status:            paymentdomain.PaymentStatusSucceeded,
	}

	tests := []struct {
		name   string
		mutate func(*paymentdomain.RecordPaymentRequest)
		want   error
	}{
		{"missing invoice", func(r *paymentdomain.RecordPaymentRequest) { r.ProviderInvoiceID = "  " }, paymentdomain.ErrInvalidInvoice},
		{"unknown status", func(r *paymentdomain.RecordPaymentRequest) { r.Status = "refunded" }, paymentdomain.ErrInvalidStatus},
		{"negative amount", func(r *paymentdomain.RecordPaymentRequest) { r.Amount = -1 }, paymentdomain.ErrInvalidAmount},
		{"missing currency", func(r *paymentdomain.RecordPaymentRequest) { r.Currency = "" }, paymentdomain.ErrInvalidCurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := svc.RecordPayment(ctx, db, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// missThenFindRepo reports no row on the first lookup, as a writer that read
// before a concurrent insert committed would see.
type missThenFindRepo struct {
	paymentdomain.Repository
	missed bool
}

func (r *missThenFindRepo) FindByInvoiceID(ctx context.Context, db *gorm.DB, providerInvoiceID string) (*paymentdomain.Payment, error) {
	if !r.missed {
		r.missed = true
		return nil, nil
	}
	return r.Repository.FindByInvoiceID(ctx, db, providerInvoiceID)
}

func TestRecordPaymentLosesInsertRace(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := repository.Provide()

	winner := &paymentdomain.Payment{
		ID:                snowflake.ID(1),
		ProviderInvoiceID: "in_race",
		Amount:            5000,
		Currency:          "USD",
		Status:            paymentdomain.PaymentStatusFailed,
		CreatedAt:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	inserted, err := repo.Insert(ctx, db, winner)
	require.NoError(t, err)
	require.True(t, inserted)

	racing := &missThenFindRepo{Repository: repo}
	svc := service.NewService(service.Params{
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Clock: clock.NewFakeClock(testutil.Date(2024, 1, 1)),
		Repo:  racing,
	})

	result, err := svc.RecordPayment(ctx, db, paymentdomain.RecordPaymentRequest{
		ProviderInvoiceID: "in_race",
		Amount:            5000,
		Currency:          "usd",
		Status:            paymentdomain.PaymentStatusSucceeded,
	})
	require.NoError(t, err)
	require.True(t, racing.missed)
	assert.False(t, result.Created)
	require.NotNil(t, result.Payment)
	assert.Equal(t, snowflake.ID(1), result.Payment.ID)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, result.Payment.Status)
	assert.Equal(t, int64(1), countPayments(t, db, "in_race"))
}
