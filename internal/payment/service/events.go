package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ProcessEvent records a verified gateway event once and routes the payment
// it refers to through confirmation. The gateway is queried again, so the
// event body only has to identify the charge.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.GatewayEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:               s.genID.Generate(),
		Provider:         event.Provider,
		ProviderEventID:  event.ProviderEventID,
		EventType:        event.Type,
		GatewayReference: event.GatewayReference,
		Payload:          datatypes.JSON(event.RawPayload),
		ReceivedAt:       now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if err := s.processEvent(ctx, event); err != nil {
		return err
	}

	if err := s.repo.MarkEventProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return err
	}

	if inserted {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
	return nil
}

func (s *Service) processEvent(ctx context.Context, event *paymentdomain.GatewayEvent) error {
	payment, err := s.repo.FindByGatewayIntent(ctx, s.db, event.GatewayReference)
	if err != nil {
		return err
	}
	if payment == nil {
		s.log.Warn("payment event for unknown charge",
			zap.String("provider", event.Provider),
			zap.String("event_id", event.ProviderEventID),
			zap.String("gateway_reference", event.GatewayReference),
		)
		return nil
	}

	_, err = s.confirm(ctx, payment, event.Provider, event.GatewayReference)
	if errors.Is(err, paymentdomain.ErrInvalidState) {
		s.log.Info("payment event ignored for closed payment",
			zap.String("transaction_id", payment.TransactionID),
			zap.String("status", string(payment.Status)),
			zap.String("event_type", event.Type),
		)
		return nil
	}
	return err
}

func validateEvent(event *paymentdomain.GatewayEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	event.GatewayReference = strings.TrimSpace(event.GatewayReference)
	if event.Provider == "" || event.ProviderEventID == "" || event.GatewayReference == "" {
		return paymentdomain.ErrInvalidEvent
	}
	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded,
		paymentdomain.EventTypePaymentFailed,
		paymentdomain.EventTypePaymentProcessing:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	if len(event.RawPayload) == 0 || !json.Valid(event.RawPayload) {
		return paymentdomain.ErrInvalidPayload
	}
	return nil
}
