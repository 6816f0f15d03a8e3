package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billsync/internal/clock"
	paymentdomain "github.com/smallbiznis/billsync/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  paymentdomain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  paymentdomain.Repository
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// RecordPayment inserts the ledger row for an invoice unless one already exists.
// An existing row is never modified, whatever status the new request carries.
func (s *Service) RecordPayment(ctx context.Context, db *gorm.DB, req paymentdomain.RecordPaymentRequest) (paymentdomain.RecordPaymentResult, error) {
	if err := validateRequest(&req); err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}

	existing, err := s.repo.FindByInvoiceID(ctx, db, req.ProviderInvoiceID)
	if err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}
	if existing != nil {
		s.logSkip(existing, req)
		return paymentdomain.RecordPaymentResult{Payment: existing}, nil
	}

	payment := &paymentdomain.Payment{
		ID:                s.genID.Generate(),
		SubscriptionID:    req.SubscriptionID,
		UserID:            req.UserID,
		ProviderInvoiceID: req.ProviderInvoiceID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Status:            req.Status,
		BillingReason:     req.BillingReason,
		PaidAt:            req.PaidAt,
		CreatedAt:         s.clock.Now().UTC(),
	}
	if req.ProviderPaymentIntentID != "" {
		intentID := req.ProviderPaymentIntentID
		payment.ProviderPaymentIntentID = &intentID
	}

	inserted, err := s.repo.Insert(ctx, db, payment)
	if err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}
	if !inserted {
		// A concurrent writer got past the lookup first.
		existing, err = s.repo.FindByInvoiceID(ctx, db, req.ProviderInvoiceID)
		if err != nil {
			return paymentdomain.RecordPaymentResult{}, err
		}
		if existing != nil {
			s.logSkip(existing, req)
		}
		return paymentdomain.RecordPaymentResult{Payment: existing}, nil
	}

	s.log.Info("payment recorded",
		zap.String("provider_invoice_id", payment.ProviderInvoiceID),
		zap.String("status", string(payment.Status)),
		zap.Int64("amount", payment.Amount),
		zap.String("currency", payment.Currency),
	)
	return paymentdomain.RecordPaymentResult{Payment: payment, Created: true}, nil
}

func (s *Service) logSkip(existing *paymentdomain.Payment, req paymentdomain.RecordPaymentRequest) {
	fields := []zap.Field{
		zap.String("provider_invoice_id", req.ProviderInvoiceID),
		zap.String("stored_status", string(existing.Status)),
		zap.String("incoming_status", string(req.Status)),
	}
	if existing.Status != req.Status {
		s.log.Warn("payment already recorded with different status", fields...)
		return
	}
	s.log.Debug("payment already recorded", fields...)
}

func validateRequest(req *paymentdomain.RecordPaymentRequest) error {
	req.ProviderInvoiceID = strings.TrimSpace(req.ProviderInvoiceID)
	if req.ProviderInvoiceID == "" {
		return paymentdomain.ErrInvalidInvoice
	}
	req.ProviderPaymentIntentID = strings.TrimSpace(req.ProviderPaymentIntentID)
	req.BillingReason = strings.TrimSpace(req.BillingReason)

	switch req.Status {
	case paymentdomain.PaymentStatusSucceeded, paymentdomain.PaymentStatusFailed:
	default:
		return paymentdomain.ErrInvalidStatus
	}
	if req.Amount < 0 {
		return paymentdomain.ErrInvalidAmount
	}

	currency := strings.TrimSpace(req.Currency)
	if len(currency) != 3 {
		return paymentdomain.ErrInvalidCurrency
	}
	req.Currency = strings.ToUpper(currency)
	return nil
}
