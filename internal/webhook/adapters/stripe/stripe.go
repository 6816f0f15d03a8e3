package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/billsync/internal/config"
	subscriptiondomain "github.com/smallbiznis/billsync/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/billsync/internal/webhook/domain"
	"github.com/stripe/stripe-go/v82/webhook"
)

const defaultTolerance = 5 * time.Minute

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
}

func NewAdapter(cfg config.Config) webhookdomain.Adapter {
	return New(cfg.Stripe.WebhookSecret, cfg.Stripe.SignatureTolerance)
}

func New(secret string, tolerance time.Duration) *Adapter {
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	return &Adapter{
		webhookSecret: strings.TrimSpace(secret),
		tolerance:     tolerance,
	}
}

// Verify checks the Stripe-Signature header against the raw body.
func (a *Adapter) Verify(payload []byte, signatureHeader string) error {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if a.webhookSecret == "" || signatureHeader == "" {
		return webhookdomain.ErrInvalidSignature
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, signatureHeader, a.webhookSecret, a.tolerance); err != nil {
		return fmt.Errorf("%w: %w", webhookdomain.ErrInvalidSignature, err)
	}
	return nil
}

func (a *Adapter) ParseEnvelope(payload []byte) (*webhookdomain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", webhookdomain.ErrInvalidPayload, err)
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", webhookdomain.ErrInvalidPayload)
	}

	return &webhookdomain.Event{
		ID:         event.ID,
		Type:       event.Type,
		Created:    unixTime(event.Created),
		Livemode:   event.Livemode,
		APIVersion: event.APIVersion,
		Object:     event.Data.Object,
	}, nil
}

func (a *Adapter) ParseSubscription(event *webhookdomain.Event) (subscriptiondomain.Snapshot, error) {
	if event == nil {
		return subscriptiondomain.Snapshot{}, webhookdomain.ErrInvalidPayload
	}
	snapshot, err := ParseSubscriptionObject(event.Object)
	if err != nil {
		return subscriptiondomain.Snapshot{}, err
	}
	snapshot.EventID = event.ID
	return snapshot, nil
}

// ParseSubscriptionObject decodes a Stripe subscription object.
func ParseSubscriptionObject(raw json.RawMessage) (subscriptiondomain.Snapshot, error) {
	if len(raw) == 0 {
		return subscriptiondomain.Snapshot{}, fmt.Errorf("%w: empty subscription object", webhookdomain.ErrInvalidPayload)
	}
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return subscriptiondomain.Snapshot{}, fmt.Errorf("%w: %w", webhookdomain.ErrInvalidPayload, err)
	}
	sub.ID = strings.TrimSpace(sub.ID)
	if sub.ID == "" {
		return subscriptiondomain.Snapshot{}, fmt.Errorf("%w: subscription id is required", webhookdomain.ErrInvalidPayload)
	}

	start, end := sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	var amount int64
	currency := sub.Currency
	for i, item := range sub.Items.Data {
		if i == 0 && start == 0 && end == 0 {
			start, end = item.CurrentPeriodStart, item.CurrentPeriodEnd
		}
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		amount += item.Price.UnitAmount * quantity
		if currency == "" {
			currency = item.Price.Currency
		}
	}

	snapshot := subscriptiondomain.Snapshot{
		ProviderSubscriptionID: sub.ID,
		ProviderCustomerID:     string(sub.Customer),
		Status:                 sub.Status,
		CurrentPeriodStart:     unixTime(start),
		CurrentPeriodEnd:       unixTime(end),
		Amount:                 amount,
		Currency:               strings.ToUpper(strings.TrimSpace(currency)),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		UserHint:               metadataString(sub.Metadata, "user_id"),
	}
	if sub.CanceledAt > 0 {
		canceledAt := unixTime(sub.CanceledAt)
		snapshot.CanceledAt = &canceledAt
	}
	return snapshot, nil
}

func (a *Adapter) ParseInvoice(event *webhookdomain.Event) (webhookdomain.Invoice, error) {
	if event == nil || len(event.Object) == 0 {
		return webhookdomain.Invoice{}, webhookdomain.ErrInvalidPayload
	}
	var inv stripeInvoice
	if err := json.Unmarshal(event.Object, &inv); err != nil {
		return webhookdomain.Invoice{}, fmt.Errorf("%w: %w", webhookdomain.ErrInvalidPayload, err)
	}
	inv.ID = strings.TrimSpace(inv.ID)
	if inv.ID == "" {
		return webhookdomain.Invoice{}, fmt.Errorf("%w: invoice id is required", webhookdomain.ErrInvalidPayload)
	}

	subscriptionID := string(inv.Subscription)
	if subscriptionID == "" && inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		subscriptionID = string(inv.Parent.SubscriptionDetails.Subscription)
	}
	paymentIntentID := string(inv.PaymentIntent)
	if paymentIntentID == "" {
		for _, item := range inv.Payments.Data {
			if id := string(item.Payment.PaymentIntent); id != "" {
				paymentIntentID = id
				break
			}
		}
	}

	invoice := webhookdomain.Invoice{
		ID:              inv.ID,
		SubscriptionID:  strings.TrimSpace(subscriptionID),
		CustomerID:      strings.TrimSpace(string(inv.Customer)),
		PaymentIntentID: strings.TrimSpace(paymentIntentID),
		Currency:        strings.ToUpper(strings.TrimSpace(inv.Currency)),
		BillingReason:   strings.TrimSpace(inv.BillingReason),
		Status:          strings.TrimSpace(inv.Status),
		AmountPaid:      inv.AmountPaid,
		AmountDue:       inv.AmountDue,
	}
	if inv.StatusTransitions.PaidAt > 0 {
		paidAt := unixTime(inv.StatusTransitions.PaidAt)
		invoice.PaidAt = &paidAt
	}
	return invoice, nil
}

type stripeEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Created    int64           `json:"created"`
	Livemode   bool            `json:"livemode"`
	APIVersion string          `json:"api_version"`
	Data       stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeSubscription struct {
	ID                 string         `json:"id"`
	Customer           expandableID   `json:"customer"`
	Status             string         `json:"status"`
	Currency           string         `json:"currency"`
	CurrentPeriodStart int64          `json:"current_period_start"`
	CurrentPeriodEnd   int64          `json:"current_period_end"`
	CancelAtPeriodEnd  bool           `json:"cancel_at_period_end"`
	CanceledAt         int64          `json:"canceled_at"`
	Metadata           map[string]any `json:"metadata"`
	Items              struct {
		Data []stripeSubscriptionItem `json:"data"`
	} `json:"items"`
}

type stripeSubscriptionItem struct {
	Quantity           int64 `json:"quantity"`
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
	Price              struct {
		UnitAmount int64  `json:"unit_amount"`
		Currency   string `json:"currency"`
	} `json:"price"`
}

type stripeInvoice struct {
	ID                string       `json:"id"`
	Customer          expandableID `json:"customer"`
	Subscription      expandableID `json:"subscription"`
	PaymentIntent     expandableID `json:"payment_intent"`
	Currency          string       `json:"currency"`
	Status            string       `json:"status"`
	BillingReason     string       `json:"billing_reason"`
	AmountPaid        int64        `json:"amount_paid"`
	AmountDue         int64        `json:"amount_due"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
	Parent *struct {
		SubscriptionDetails *struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Payments struct {
		Data []struct {
			Payment struct {
				PaymentIntent expandableID `json:"payment_intent"`
			} `json:"payment"`
		} `json:"data"`
	} `json:"payments"`
}

// expandableID accepts either a bare id or an expanded object carrying one.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*e = expandableID(strings.TrimSpace(id))
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.New("expected id string or object")
	}
	*e = expandableID(strings.TrimSpace(obj.ID))
	return nil
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, _ := metadata[key].(string)
	return strings.TrimSpace(value)
}

func unixTime(value int64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}
