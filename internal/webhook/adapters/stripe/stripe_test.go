package stripe

import (
	"errors"
	"testing"
	"time"

	webhookdomain "github.com/smallbiznis/billsync/internal/webhook/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test"

func signedHeader(t *testing.T, secret string, payload []byte, at time.Time) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{}}}`)
	adapter := New(testSecret, 5*time.Minute)

	tests := []struct {
		name    string
		header  string
		payload []byte
		wantErr bool
	}{
		{name: "valid", header: signedHeader(t, testSecret, payload, time.Now()), payload: payload},
		{name: "wrong secret", header: signedHeader(t, "whsec_other", payload, time.Now()), payload: payload, wantErr: true},
		{name: "tampered body", header: signedHeader(t, testSecret, payload, time.Now()), payload: []byte(`{"id":"evt_2"}`), wantErr: true},
		{name: "expired timestamp", header: signedHeader(t, testSecret, payload, time.Now().Add(-time.Hour)), payload: payload, wantErr: true},
		{name: "missing header", header: "", payload: payload, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := adapter.Verify(tt.payload, tt.header)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, webhookdomain.ErrInvalidSignature))
		})
	}
}

func TestVerifyWithoutSecretAlwaysFails(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	adapter := New("", 0)
	err := adapter.Verify(payload, signedHeader(t, testSecret, payload, time.Now()))
	assert.ErrorIs(t, err, webhookdomain.ErrInvalidSignature)
}

func TestParseEnvelope(t *testing.T) {
	adapter := New(testSecret, 0)

	event, err := adapter.ParseEnvelope([]byte(`{"id":"evt_1","type":"customer.subscription.updated","created":1704067200,"livemode":false,"api_version":"2025-03-31.basil","data":{"object":{"id":"sub_1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, webhookdomain.EventTypeSubscriptionUpdated, event.Type)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), event.Created)
	assert.JSONEq(t, `{"id":"sub_1"}`, string(event.Object))

	_, err = adapter.ParseEnvelope([]byte(`{"type":"invoice.paid"}`))
	assert.ErrorIs(t, err, webhookdomain.ErrInvalidPayload)

	_, err = adapter.ParseEnvelope([]byte(`not json`))
	assert.ErrorIs(t, err, webhookdomain.ErrInvalidPayload)
}

func TestParseSubscription(t *testing.T) {
	adapter := New(testSecret, 0)

	t.Run("legacy top-level period", func(t *testing.T) {
		event := &webhookdomain.Event{ID: "evt_1", Object: []byte(`{
			"id": "sub_1",
			"customer": "cus_1",
			"status": "trialing",
			"currency": "usd",
			"current_period_start": 1704067200,
			"current_period_end": 1706745600,
			"cancel_at_period_end": true,
			"metadata": {"user_id": "42"},
			"items": {"data": [
				{"quantity": 2, "price": {"unit_amount": 500, "currency": "usd"}},
				{"quantity": 1, "price": {"unit_amount": 250, "currency": "usd"}}
			]}
		}`)}

		snapshot, err := adapter.ParseSubscription(event)
		require.NoError(t, err)
		assert.Equal(t, "sub_1", snapshot.ProviderSubscriptionID)
		assert.Equal(t, "cus_1", snapshot.ProviderCustomerID)
		assert.Equal(t, "trialing", snapshot.Status)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), snapshot.CurrentPeriodStart)
		assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), snapshot.CurrentPeriodEnd)
		assert.Equal(t, int64(1250), snapshot.Amount)
		assert.Equal(t, "USD", snapshot.Currency)
		assert.True(t, snapshot.CancelAtPeriodEnd)
		assert.Equal(t, "42", snapshot.UserHint)
		assert.Equal(t, "evt_1", snapshot.EventID)
		assert.Nil(t, snapshot.CanceledAt)
	})

	t.Run("item level period and expanded customer", func(t *testing.T) {
		event := &webhookdomain.Event{ID: "evt_2", Object: []byte(`{
			"id": "sub_2",
			"customer": {"id": "cus_2", "object": "customer"},
			"status": "canceled",
			"canceled_at": 1705000000,
			"items": {"data": [
				{"quantity": 1, "current_period_start": 1704067200, "current_period_end": 1706745600, "price": {"unit_amount": 900, "currency": "eur"}}
			]}
		}`)}

		snapshot, err := adapter.ParseSubscription(event)
		require.NoError(t, err)
		assert.Equal(t, "cus_2", snapshot.ProviderCustomerID)
		assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), snapshot.CurrentPeriodEnd)
		assert.Equal(t, "EUR", snapshot.Currency)
		require.NotNil(t, snapshot.CanceledAt)
		assert.Equal(t, time.Unix(1705000000, 0).UTC(), *snapshot.CanceledAt)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := adapter.ParseSubscription(&webhookdomain.Event{ID: "evt_3", Object: []byte(`{"status":"active"}`)})
		assert.ErrorIs(t, err, webhookdomain.ErrInvalidPayload)
	})

	t.Run("wrong shape", func(t *testing.T) {
		_, err := adapter.ParseSubscription(&webhookdomain.Event{ID: "evt_4", Object: []byte(`{"id": 12}`)})
		assert.ErrorIs(t, err, webhookdomain.ErrInvalidPayload)
	})
}

func TestParseInvoice(t *testing.T) {
	adapter := New(testSecret, 0)

	t.Run("legacy fields", func(t *testing.T) {
		invoice, err := adapter.ParseInvoice(&webhookdomain.Event{Object: []byte(`{
			"id": "in_001",
			"customer": "cus_1",
			"subscription": "sub_1",
			"payment_intent": "pi_1",
			"currency": "usd",
			"status": "paid",
			"billing_reason": "subscription_cycle",
			"amount_paid": 2000,
			"amount_due": 2000,
			"status_transitions": {"paid_at": 1704067200}
		}`)})
		require.NoError(t, err)
		assert.Equal(t, "in_001", invoice.ID)
		assert.Equal(t, "sub_1", invoice.SubscriptionID)
		assert.Equal(t, "pi_1", invoice.PaymentIntentID)
		assert.Equal(t, "USD", invoice.Currency)
		assert.Equal(t, int64(2000), invoice.AmountPaid)
		require.NotNil(t, invoice.PaidAt)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *invoice.PaidAt)
	})

	t.Run("parent subscription details", func(t *testing.T) {
		invoice, err := adapter.ParseInvoice(&webhookdomain.Event{Object: []byte(`{
			"id": "in_002",
			"customer": "cus_1",
			"currency": "usd",
			"amount_paid": 0,
			"amount_due": 1500,
			"parent": {"subscription_details": {"subscription": "sub_9"}},
			"payments": {"data": [{"payment": {"payment_intent": {"id": "pi_9"}}}]}
		}`)})
		require.NoError(t, err)
		assert.Equal(t, "sub_9", invoice.SubscriptionID)
		assert.Equal(t, "pi_9", invoice.PaymentIntentID)
		assert.Equal(t, int64(1500), invoice.AmountDue)
		assert.Nil(t, invoice.PaidAt)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := adapter.ParseInvoice(&webhookdomain.Event{Object: []byte(`{"amount_paid": 10}`)})
		assert.ErrorIs(t, err, webhookdomain.ErrInvalidPayload)
	})
}
