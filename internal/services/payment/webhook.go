package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paylink/internal/apperr"
	"paylink/internal/domain/event"
	"paylink/internal/domain/integration"
	"paylink/internal/domain/order"
	"paylink/internal/provider"
	"paylink/internal/store/repositories"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const msgBadSignature = "Invalid webhook signature"

// Ack is returned for every authenticated delivery, whatever its outcome.
type Ack struct {
	Success  bool `json:"success"`
	Received bool `json:"received"`
}

func received() *Ack { return &Ack{Success: true, Received: true} }

// HandleInboundWebhook authenticates a provider callback and applies its
// outcome to the referenced order. The owning business is resolved from the
// order so the secret of that business's active provider of this kind is
// the one checked. A completed payment is applied at most once.
func (s *Service) HandleInboundWebhook(ctx context.Context, rawKind string, body []byte, signature string) (*Ack, error) {
	kind, ok := integration.ParseKind(rawKind)
	if !ok {
		log.Warn().Str("provider", rawKind).Msg("webhook for unknown provider")
		return nil, apperr.InvalidErr("Unknown payment provider")
	}
	adapter, err := s.d.Adapters.Get(kind)
	if err != nil {
		log.Warn().Err(err).Str("provider", rawKind).Msg("webhook for unregistered provider")
		return nil, apperr.InvalidErr("Unknown payment provider")
	}

	ev, err := adapter.ParseWebhook(body)
	if err != nil {
		log.Warn().Err(err).Str("provider", string(kind)).Int("bytes", len(body)).Msg("webhook rejected before verification")
		if errors.Is(err, event.ErrMissingField) {
			return nil, apperr.InvalidErr("Webhook is missing orderId or transactionId")
		}
		return nil, apperr.InvalidErr("Invalid webhook payload")
	}

	l := log.With().
		Str("provider", string(kind)).
		Str("order_id", ev.OrderID).
		Str("transaction_id", ev.TransactionID).
		Str("outcome", string(ev.Outcome)).
		Logger()

	o, p, err := s.resolveSigner(ctx, kind, ev.OrderID, l)
	if err != nil {
		return nil, err
	}
	if !provider.VerifySignature(body, signature, p.WebhookSecret) {
		l.Warn().Str("business_id", o.BusinessID).Str("provider_id", p.ID).Msg("webhook signature mismatch")
		return nil, apperr.UnauthorizedErr(msgBadSignature)
	}

	if ev.IsTerminal() && s.seen(ctx, kind, ev, l) {
		l.Debug().Msg("webhook delivery already handled")
		return received(), nil
	}

	switch ev.Outcome {
	case event.OutcomeCompleted:
		applied, err := s.d.Orders.MarkPaid(ctx, o.ID, kind, ev.TransactionID)
		if err != nil {
			l.Error().Err(err).Msg("mark order paid failed")
			return nil, apperr.Wrap(fmt.Errorf("mark paid: %w", err))
		}
		if !applied {
			l.Info().Msg("order already paid, delivery ignored")
			break
		}
		l.Info().Str("business_id", o.BusinessID).Msg("order paid")
		o.MarkPaid(kind, ev.TransactionID, time.Now().UTC())
		s.confirm(ctx, o, l)

	case event.OutcomeFailed:
		applied, err := s.d.Orders.MarkFailed(ctx, o.ID, ev.TransactionID)
		if err != nil {
			l.Error().Err(err).Msg("mark order failed failed")
			return nil, apperr.Wrap(fmt.Errorf("mark failed: %w", err))
		}
		l.Info().Bool("applied", applied).Str("previous_status", string(o.PaymentStatus)).Msg("payment declined")

	default:
		// the order stays payment_pending until a terminal event arrives
		l.Info().Msg("payment pending at provider")
		return received(), nil
	}

	if s.d.Deliveries != nil {
		if err := s.d.Deliveries.Mark(ctx, string(kind), ev.TransactionID, string(ev.Outcome)); err != nil {
			l.Warn().Err(err).Msg("could not record webhook delivery")
		}
	}
	return received(), nil
}

// resolveSigner finds the order and the provider whose secret must have
// signed the delivery. Any miss is reported as a signature failure.
func (s *Service) resolveSigner(ctx context.Context, kind integration.Kind, orderID string, l zerolog.Logger) (*order.Order, *integration.PaymentProvider, error) {
	o, err := s.d.Orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			l.Warn().Msg("webhook references unknown order")
			return nil, nil, apperr.UnauthorizedErr(msgBadSignature)
		}
		return nil, nil, apperr.Wrap(fmt.Errorf("find order: %w", err))
	}
	p, err := s.d.Providers.FindActiveByKind(ctx, o.BusinessID, kind)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			l.Warn().Str("business_id", o.BusinessID).Msg("business has no active provider of this kind")
			return nil, nil, apperr.UnauthorizedErr(msgBadSignature)
		}
		return nil, nil, apperr.Wrap(fmt.Errorf("find provider: %w", err))
	}
	return o, p, nil
}

func (s *Service) seen(ctx context.Context, kind integration.Kind, ev event.Payment, l zerolog.Logger) bool {
	if s.d.Deliveries == nil {
		return false
	}
	ok, err := s.d.Deliveries.Seen(ctx, string(kind), ev.TransactionID, string(ev.Outcome))
	if err != nil {
		l.Warn().Err(err).Msg("delivery log unavailable")
		return false
	}
	return ok
}

func (s *Service) confirm(ctx context.Context, o *order.Order, l zerolog.Logger) {
	if s.d.Notifier == nil {
		return
	}
	if err := s.d.Notifier.PaymentConfirmed(ctx, o); err != nil {
		l.Warn().Err(err).Msg("payment confirmation not sent")
	}
}
