package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"paylink/internal/apperr"
	"paylink/internal/crypto"
	"paylink/internal/domain/business"
	"paylink/internal/domain/integration"
	"paylink/internal/store/repositories"

	"github.com/rs/zerolog/log"
)

// AdminChecker reports whether an email is on the admin allow-list.
type AdminChecker interface {
	IsAdmin(email string) bool
}

// AddRequest represents the add-provider body
type AddRequest struct {
	BusinessID   string          `json:"businessId"`
	Provider     string          `json:"provider"`
	ProviderName string          `json:"providerName"`
	Credentials  json.RawMessage `json:"credentials"`
	TestMode     bool            `json:"testMode"`
	IsPrimary    bool            `json:"isPrimary"`
}

// UpdateRequest is a partial update; absent fields are left alone.
type UpdateRequest struct {
	ProviderName *string         `json:"providerName"`
	Credentials  json.RawMessage `json:"credentials"`
	TestMode     *bool           `json:"testMode"`
	IsActive     *bool           `json:"isActive"`
	IsPrimary    *bool           `json:"isPrimary"`
}

// Service is the only writer of payment provider records
type Service struct {
	businesses repositories.BusinessRepository
	providers  repositories.ProviderRepository
	vault      *crypto.Vault
	admins     AdminChecker
	now        func() time.Time
}

// NewService creates a new provider registry service
func NewService(businesses repositories.BusinessRepository, providers repositories.ProviderRepository, vault *crypto.Vault, admins AdminChecker) *Service {
	return &Service{
		businesses: businesses,
		providers:  providers,
		vault:      vault,
		admins:     admins,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// List returns the business's providers, primary first.
func (s *Service) List(ctx context.Context, caller business.Caller, businessID string) ([]integration.Summary, error) {
	if _, err := s.authorize(ctx, caller, businessID); err != nil {
		return nil, err
	}
	ps, err := s.providers.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, apperr.Wrap(&ServiceError{Op: "list_providers", Err: err})
	}
	out := make([]integration.Summary, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Summary())
	}
	return out, nil
}

// Add encrypts the credentials, mints a webhook secret and stores the
// provider; a primary provider demotes the current one.
func (s *Service) Add(ctx context.Context, caller business.Caller, req AddRequest) (*integration.Summary, error) {
	kind, ok := integration.ParseKind(strings.TrimSpace(req.Provider))
	if !ok {
		return nil, apperr.InvalidField("provider", "Invalid payment provider")
	}
	if err := validateCredentials(req.Credentials); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, caller, req.BusinessID); err != nil {
		return nil, err
	}

	blob, err := s.vault.EncryptJSON(req.Credentials)
	if err != nil {
		return nil, apperr.Wrap(&ServiceError{Op: "encrypt_credentials", Err: err})
	}
	secret, err := crypto.NewWebhookSecret()
	if err != nil {
		return nil, apperr.Wrap(&ServiceError{Op: "webhook_secret", Err: err})
	}

	p, err := integration.New(req.BusinessID, kind, req.ProviderName, blob, secret, req.TestMode, req.IsPrimary)
	if err != nil {
		return nil, apperr.InvalidErr(err.Error())
	}
	if err := s.providers.Insert(ctx, p); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFoundErr("Business not found")
		}
		return nil, apperr.Wrap(&ServiceError{Op: "insert_provider", Err: err})
	}

	log.Info().
		Str("business_id", p.BusinessID).
		Str("provider_id", p.ID).
		Str("provider", string(p.Kind)).
		Bool("primary", p.IsPrimary).
		Msg("payment provider added")

	sum := p.Summary()
	return &sum, nil
}

// Update applies a partial update. A provider of another business is
// reported as not found.
func (s *Service) Update(ctx context.Context, caller business.Caller, businessID, providerID string, req UpdateRequest) (*integration.Summary, error) {
	if _, err := s.authorizeProvider(ctx, caller, businessID); err != nil {
		return nil, err
	}
	p, err := s.find(ctx, businessID, providerID)
	if err != nil {
		return nil, err
	}

	patch := integration.Patch{
		Name:      req.ProviderName,
		TestMode:  req.TestMode,
		IsActive:  req.IsActive,
		IsPrimary: req.IsPrimary,
	}
	if raw := bytes.TrimSpace(req.Credentials); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := validateCredentials(req.Credentials); err != nil {
			return nil, err
		}
		blob, err := s.vault.EncryptJSON(req.Credentials)
		if err != nil {
			return nil, apperr.Wrap(&ServiceError{Op: "encrypt_credentials", Err: err})
		}
		patch.Credentials = &blob
	}

	p.Apply(patch, s.now())
	if err := s.providers.Update(ctx, p); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFoundErr("Payment provider not found")
		}
		return nil, apperr.Wrap(&ServiceError{Op: "update_provider", Err: err})
	}

	log.Info().
		Str("business_id", businessID).
		Str("provider_id", providerID).
		Bool("primary", p.IsPrimary).
		Bool("active", p.IsActive).
		Msg("payment provider updated")

	sum := p.Summary()
	return &sum, nil
}

// Remove deletes the provider, scoped to the business.
func (s *Service) Remove(ctx context.Context, caller business.Caller, businessID, providerID string) error {
	if _, err := s.authorizeProvider(ctx, caller, businessID); err != nil {
		return err
	}
	if strings.TrimSpace(providerID) == "" {
		return apperr.InvalidField("id", "Provider id is required")
	}
	if err := s.providers.Delete(ctx, businessID, providerID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFoundErr("Payment provider not found")
		}
		return apperr.Wrap(&ServiceError{Op: "delete_provider", Err: err})
	}
	log.Info().Str("business_id", businessID).Str("provider_id", providerID).Msg("payment provider removed")
	return nil
}

// RotateWebhookSecret replaces the provider's webhook secret and returns
// the new value. This is the only call that reveals a secret.
func (s *Service) RotateWebhookSecret(ctx context.Context, caller business.Caller, businessID, providerID string) (string, error) {
	if _, err := s.authorizeProvider(ctx, caller, businessID); err != nil {
		return "", err
	}
	p, err := s.find(ctx, businessID, providerID)
	if err != nil {
		return "", err
	}
	secret, err := crypto.NewWebhookSecret()
	if err != nil {
		return "", apperr.Wrap(&ServiceError{Op: "webhook_secret", Err: err})
	}
	p.WebhookSecret = secret
	p.UpdatedAt = s.now()
	if err := s.providers.Update(ctx, p); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", apperr.NotFoundErr("Payment provider not found")
		}
		return "", apperr.Wrap(&ServiceError{Op: "update_provider", Err: err})
	}
	log.Info().Str("business_id", businessID).Str("provider_id", providerID).Msg("webhook secret rotated")
	return secret, nil
}

// authorize loads the business and checks the caller may manage it.
func (s *Service) authorize(ctx context.Context, caller business.Caller, businessID string) (*business.Business, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, apperr.InvalidField("businessId", "businessId is required")
	}
	b, err := s.businesses.FindByID(ctx, businessID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFoundErr("Business not found")
		}
		return nil, apperr.Wrap(&ServiceError{Op: "find_business", Err: err})
	}
	if !b.CanManage(caller, s.isAdmin) {
		log.Warn().Str("business_id", businessID).Str("user_id", caller.ID).Msg("caller does not manage business")
		return nil, apperr.ForbiddenErr("You do not have access to this business")
	}
	return b, nil
}

// authorizeProvider guards calls that name a single provider. A business the
// caller cannot manage looks exactly like a missing one.
func (s *Service) authorizeProvider(ctx context.Context, caller business.Caller, businessID string) (*business.Business, error) {
	b, err := s.authorize(ctx, caller, businessID)
	if err == nil {
		return b, nil
	}
	if ae, ok := apperr.As(err); ok && (ae.Kind == apperr.Forbidden || ae.Kind == apperr.NotFound) {
		return nil, apperr.NotFoundErr("Payment provider not found")
	}
	return nil, err
}

func (s *Service) isAdmin(email string) bool {
	return s.admins != nil && s.admins.IsAdmin(email)
}

func (s *Service) find(ctx context.Context, businessID, providerID string) (*integration.PaymentProvider, error) {
	p, err := s.providers.FindByID(ctx, businessID, providerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFoundErr("Payment provider not found")
		}
		return nil, apperr.Wrap(&ServiceError{Op: "find_provider", Err: err})
	}
	return p, nil
}

// validateCredentials accepts only a JSON object.
func validateCredentials(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return apperr.InvalidField("credentials", "credentials are required")
	}
	if trimmed[0] != '{' {
		return apperr.InvalidField("credentials", "credentials must be an object")
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return apperr.InvalidField("credentials", "credentials must be an object")
	}
	if len(obj) == 0 {
		return apperr.InvalidField("credentials", "credentials must not be empty")
	}
	return nil
}

// ServiceError represents a storage or crypto failure inside the registry
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
