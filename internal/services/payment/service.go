package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paylink/internal/apperr"
	"paylink/internal/crypto"
	"paylink/internal/domain/business"
	"paylink/internal/domain/integration"
	"paylink/internal/domain/order"
	"paylink/internal/provider"
	"paylink/internal/provider/base"
	"paylink/internal/store/repositories"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Adapters resolves the adapter for a provider kind.
type Adapters interface {
	Get(kind integration.Kind) (provider.Adapter, error)
}

// Notifier is told once per order when it becomes paid.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, o *order.Order) error
}

// DeliveryLog remembers handled webhook deliveries.
type DeliveryLog interface {
	Seen(ctx context.Context, kind, txID, outcome string) (bool, error)
	Mark(ctx context.Context, kind, txID, outcome string) error
}

type AdminChecker interface {
	IsAdmin(email string) bool
}

// Deps wires the orchestrator. Notifier, Deliveries and Admins are optional.
type Deps struct {
	Businesses repositories.BusinessRepository
	Providers  repositories.ProviderRepository
	Orders     repositories.OrderRepository
	Adapters   Adapters
	Vault      *crypto.Vault
	Notifier   Notifier
	Deliveries DeliveryLog
	Admins     AdminChecker

	ProviderTimeout time.Duration
	// BaseURL is the public root of this service, used for notify URLs.
	BaseURL string
}

// Service is the payment orchestrator: it opens payment links through a
// business's provider and applies authenticated webhook outcomes to orders.
type Service struct {
	d Deps
}

func NewService(d Deps) *Service {
	if d.ProviderTimeout <= 0 {
		d.ProviderTimeout = 15 * time.Second
	}
	d.BaseURL = strings.TrimRight(d.BaseURL, "/")
	return &Service{d: d}
}

// CreateLinkRequest represents the create-link body
type CreateLinkRequest struct {
	BusinessID    string          `json:"businessId"`
	OrderID       string          `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CustomerPhone string          `json:"customerPhone"`
	CustomerEmail string          `json:"customerEmail"`
	Description   string          `json:"description"`
	// ProviderID selects a provider; empty means the business default.
	ProviderID string `json:"providerId"`
}

type LinkResult struct {
	PaymentURL string           `json:"paymentUrl"`
	Provider   integration.Kind `json:"provider"`
	ProviderID string           `json:"providerId"`
}

// CreatePaymentLink validates the request, checks the caller manages the
// business and asks the selected provider for a checkout URL. The order is
// recorded as payment_pending only once the provider returned a link.
func (s *Service) CreatePaymentLink(ctx context.Context, caller business.Caller, req CreateLinkRequest) (*LinkResult, error) {
	if strings.TrimSpace(req.BusinessID) == "" {
		return nil, apperr.InvalidField("businessId", "businessId is required")
	}
	lr := provider.LinkRequest{
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Description:   req.Description,
	}
	if err := base.ValidateLinkRequest(&lr); err != nil {
		var fe *base.FieldError
		if errors.As(err, &fe) {
			return nil, apperr.InvalidField(fe.Field, fe.Message)
		}
		return nil, apperr.InvalidErr(err.Error())
	}

	b, err := s.d.Businesses.FindByID(ctx, req.BusinessID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFoundErr("Business not found")
		}
		return nil, apperr.Wrap(fmt.Errorf("find business: %w", err))
	}
	if !b.CanManage(caller, s.isAdmin) {
		log.Warn().Str("business_id", b.ID).Str("user_id", caller.ID).Msg("create-link denied: caller does not manage business")
		return nil, apperr.ForbiddenErr("You do not have access to this business")
	}

	existing, err := s.d.Orders.FindByID(ctx, lr.OrderID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, apperr.Wrap(fmt.Errorf("find order: %w", err))
	case existing.BusinessID != b.ID:
		return nil, apperr.NotFoundErr("Order not found")
	case existing.IsPaid():
		return nil, apperr.ConflictErr("Order is already paid")
	}

	p, err := s.selectProvider(ctx, b.ID, strings.TrimSpace(req.ProviderID))
	if err != nil {
		return nil, err
	}
	adapter, err := s.d.Adapters.Get(p.Kind)
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	var creds provider.Credentials
	if err := s.d.Vault.DecryptJSON(p.Credentials, &creds); err != nil {
		// key rotation or a corrupted row; not a payment decline
		log.Error().Err(err).
			Str("business_id", b.ID).
			Str("provider_id", p.ID).
			Str("provider", string(p.Kind)).
			Msg("provider credentials cannot be decrypted")
		return nil, apperr.Wrap(fmt.Errorf("decrypt credentials for provider %s: %w", p.ID, err))
	}

	lr.TestMode = p.TestMode
	lr.ReturnURL = creds.String("returnUrl")
	if s.d.BaseURL != "" {
		lr.NotifyURL = s.d.BaseURL + "/payments/webhook/" + string(p.Kind)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.d.ProviderTimeout)
	defer cancel()
	started := time.Now()
	resp, err := adapter.CreatePaymentLink(callCtx, creds, lr)
	if err != nil {
		return nil, s.linkError(callCtx, p, lr.OrderID, err)
	}

	o := existing
	if o == nil {
		o, err = order.New(lr.OrderID, b.ID, lr.CustomerPhone, lr.Amount, lr.Currency)
		if err != nil {
			return nil, apperr.InvalidErr(err.Error())
		}
	} else {
		o.Amount = lr.Amount
		o.Currency = lr.Currency
		o.CustomerPhone = lr.CustomerPhone
	}
	o.ProviderKind = p.Kind
	applied, err := s.d.Orders.SavePending(ctx, o)
	if err != nil {
		return nil, apperr.Wrap(fmt.Errorf("save pending order: %w", err))
	}
	if !applied {
		return nil, apperr.ConflictErr("Order is already paid")
	}

	log.Info().
		Str("business_id", b.ID).
		Str("order_id", lr.OrderID).
		Str("provider", string(p.Kind)).
		Str("provider_id", p.ID).
		Str("amount", lr.Amount.StringFixed(2)).
		Str("currency", lr.Currency).
		Dur("took", time.Since(started)).
		Msg("payment link created")

	return &LinkResult{PaymentURL: resp.PaymentURL, Provider: p.Kind, ProviderID: p.ID}, nil
}

// selectProvider honours an explicit provider id, else the active primary,
// else the earliest active provider.
func (s *Service) selectProvider(ctx context.Context, businessID, providerID string) (*integration.PaymentProvider, error) {
	if providerID != "" {
		p, err := s.d.Providers.FindByID(ctx, businessID, providerID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, apperr.NotFoundErr("Payment provider not found")
			}
			return nil, apperr.Wrap(fmt.Errorf("find provider: %w", err))
		}
		if !p.IsActive {
			return nil, apperr.InvalidField("providerId", "Payment provider is not active")
		}
		return p, nil
	}

	ps, err := s.d.Providers.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, apperr.Wrap(fmt.Errorf("list providers: %w", err))
	}
	p := integration.Default(ps)
	if p == nil {
		return nil, apperr.InvalidErr("No active payment provider is configured for this business")
	}
	return p, nil
}

func (s *Service) linkError(callCtx context.Context, p *integration.PaymentProvider, orderID string, err error) error {
	l := log.Warn().Err(err).
		Str("business_id", p.BusinessID).
		Str("provider", string(p.Kind)).
		Str("order_id", orderID)

	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		l.Msg("payment provider timed out")
		return apperr.TimeoutErr(fmt.Sprintf("%s did not respond in time", p.Kind.DisplayName()), err)
	}
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		l.Str("code", pe.Code).Msg("payment provider rejected link request")
		msg := pe.Message
		if msg == "" {
			msg = fmt.Sprintf("%s rejected the payment request", p.Kind.DisplayName())
		}
		return apperr.UpstreamErr(msg, err)
	}
	l.Msg("payment link creation failed")
	return apperr.Wrap(err)
}

func (s *Service) isAdmin(email string) bool {
	return s.d.Admins != nil && s.d.Admins.IsAdmin(email)
}
