// Package stripe creates Stripe Checkout Sessions with the business's own
// secret key and reads Stripe event webhooks.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"paylink/internal/domain/event"
	"paylink/internal/domain/integration"
	"paylink/internal/provider"
	"paylink/internal/provider/base"

	"github.com/rs/zerolog/log"
	gostripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const eventCheckoutCompleted = "checkout.session.completed"

type Adapter struct {
	backends *gostripe.Backends
}

// New returns the adapter. apiURL overrides api.stripe.com.
func New(apiURL string, timeout time.Duration) *Adapter {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	hc := &http.Client{Timeout: timeout}
	return &Adapter{
		backends: &gostripe.Backends{
			API:     backend(gostripe.APIBackend, apiURL, hc),
			Connect: backend(gostripe.ConnectBackend, apiURL, hc),
			Uploads: backend(gostripe.UploadsBackend, apiURL, hc),
		},
	}
}

// backend disables stripe-go's own retries; a failed link creation is
// reported to the dashboard user instead.
func backend(kind gostripe.SupportedBackend, apiURL string, hc *http.Client) gostripe.Backend {
	cfg := &gostripe.BackendConfig{
		HTTPClient:        hc,
		LeveledLogger:     zlogger{},
		MaxNetworkRetries: gostripe.Int64(0),
	}
	if apiURL != "" {
		cfg.URL = gostripe.String(apiURL)
	}
	return gostripe.GetBackendWithConfig(kind, cfg)
}

func (a *Adapter) Kind() integration.Kind  { return integration.KindStripe }
func (a *Adapter) SignatureHeader() string { return "stripe-signature" }

func (a *Adapter) CreatePaymentLink(ctx context.Context, creds provider.Credentials, req provider.LinkRequest) (*provider.LinkResponse, error) {
	if err := creds.Require("secretKey"); err != nil {
		return nil, err
	}

	sc := &client.API{}
	sc.Init(creds.String("secretKey"), a.backends)

	params := &gostripe.CheckoutSessionParams{
		Params: gostripe.Params{Context: ctx},
		Mode:   gostripe.String(string(gostripe.CheckoutSessionModePayment)),
		LineItems: []*gostripe.CheckoutSessionLineItemParams{
			{
				PriceData: &gostripe.CheckoutSessionLineItemPriceDataParams{
					Currency: gostripe.String(req.Currency),
					ProductData: &gostripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: gostripe.String(base.Description(req)),
					},
					UnitAmount: gostripe.Int64(base.MinorUnits(req.Amount, req.Currency)),
				},
				Quantity: gostripe.Int64(1),
			},
		},
		ClientReferenceID: gostripe.String(req.OrderID),
		Metadata: map[string]string{
			"order_id": req.OrderID,
		},
		PaymentIntentData: &gostripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": req.OrderID},
		},
	}
	if u := firstNonEmpty(creds.String("successUrl"), req.ReturnURL); u != "" {
		params.SuccessURL = gostripe.String(u)
	}
	if u := firstNonEmpty(creds.String("cancelUrl"), req.ReturnURL); u != "" {
		params.CancelURL = gostripe.String(u)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = gostripe.String(req.CustomerEmail)
	}

	sess, err := sc.CheckoutSessions.New(params)
	if err != nil {
		var se *gostripe.Error
		if errors.As(err, &se) {
			return nil, &provider.ProviderError{
				Code:        provider.ErrRejected,
				Message:     se.Msg,
				ProviderErr: string(se.Code),
			}
		}
		return nil, &provider.ProviderError{
			Code:        provider.ErrProviderDown,
			Message:     "Stripe is unavailable",
			ProviderErr: err.Error(),
		}
	}
	if sess.URL == "" {
		return nil, &provider.ProviderError{
			Code:    provider.ErrResponseParse,
			Message: "Stripe returned a session without a URL",
		}
	}

	return &provider.LinkResponse{PaymentURL: sess.URL, ProviderRef: sess.ID}, nil
}

type sessionObject struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

// ParseWebhook maps checkout.session.completed to completed and every
// other event to pending.
func (a *Adapter) ParseWebhook(body []byte) (event.Payment, error) {
	var ev gostripe.Event
	if err := base.DecodeWebhook(body, &ev); err != nil {
		return event.Payment{}, err
	}
	var obj sessionObject
	if ev.Data != nil && len(ev.Data.Raw) > 0 {
		if err := json.Unmarshal(ev.Data.Raw, &obj); err != nil {
			return event.Payment{}, fmt.Errorf("%w: data.object: %v", provider.ErrMalformedPayload, err)
		}
	}

	p := event.Payment{
		OrderID:       obj.Metadata["order_id"],
		TransactionID: obj.ID,
		Outcome:       event.OutcomePending,
	}
	if string(ev.Type) == eventCheckoutCompleted {
		p.Outcome = event.OutcomeCompleted
	}
	return p, p.Validate()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// zlogger routes stripe-go's internal logging to zerolog.
type zlogger struct{}

func (zlogger) Debugf(format string, v ...interface{}) {
	log.Debug().Str("provider", "stripe").Msgf(format, v...)
}
func (zlogger) Infof(format string, v ...interface{}) {
	log.Debug().Str("provider", "stripe").Msgf(format, v...)
}
func (zlogger) Warnf(format string, v ...interface{}) {
	log.Warn().Str("provider", "stripe").Msgf(format, v...)
}
func (zlogger) Errorf(format string, v ...interface{}) {
	log.Error().Str("provider", "stripe").Msgf(format, v...)
}
