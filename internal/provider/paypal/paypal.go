// Package paypal creates PayPal Orders v2 checkouts and reads PayPal
// webhook events.
package paypal

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"sync"
	"time"

	"paylink/internal/domain/event"
	"paylink/internal/domain/integration"
	"paylink/internal/provider"
	"paylink/internal/provider/base"

	"github.com/rs/zerolog/log"
)

const (
	liveURL    = "https://api-m.paypal.com"
	sandboxURL = "https://api-m.sandbox.paypal.com"

	eventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
)

type Adapter struct {
	live    *base.HTTPClient
	sandbox *base.HTTPClient

	mu     sync.Mutex
	tokens map[string]accessToken // keyed by environment + client id
	now    func() time.Time
}

type accessToken struct {
	Token     string
	ExpiresAt time.Time
}

// New returns the adapter. apiURL, when set, replaces both the live and
// sandbox hosts.
func New(apiURL string, timeout time.Duration) *Adapter {
	a := &Adapter{
		live:    base.NewHTTPClient("paypal", timeout),
		sandbox: base.NewHTTPClient("paypal", timeout),
		tokens:  make(map[string]accessToken),
		now:     time.Now,
	}
	a.live.SetBaseURL(firstNonEmpty(apiURL, liveURL))
	a.sandbox.SetBaseURL(firstNonEmpty(apiURL, sandboxURL))
	return a
}

func (a *Adapter) Kind() integration.Kind  { return integration.KindPayPal }
func (a *Adapter) SignatureHeader() string { return "x-paypal-transmission-sig" }

func (a *Adapter) client(testMode bool) *base.HTTPClient {
	if testMode {
		return a.sandbox
	}
	return a.live
}

type orderRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	CustomID    string `json:"custom_id"`
	Description string `json:"description,omitempty"`
	Amount      money  `json:"amount"`
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type applicationContext struct {
	ReturnURL  string `json:"return_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
	UserAction string `json:"user_action"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (a *Adapter) CreatePaymentLink(ctx context.Context, creds provider.Credentials, req provider.LinkRequest) (*provider.LinkResponse, error) {
	if err := creds.Require("clientId", "clientSecret"); err != nil {
		return nil, err
	}

	token, err := a.getAccessToken(ctx, creds, req.TestMode)
	if err != nil {
		return nil, err
	}

	payload := orderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.OrderID,
			CustomID:    req.OrderID,
			Description: base.Description(req),
			Amount: money{
				CurrencyCode: req.Currency,
				Value:        base.FormatAmount(req.Amount),
			},
		}},
		ApplicationContext: applicationContext{
			ReturnURL:  req.ReturnURL,
			CancelURL:  req.ReturnURL,
			UserAction: "PAY_NOW",
		},
	}

	resp, err := a.client(req.TestMode).PostJSON(ctx, "/v2/checkout/orders", payload, map[string]string{
		"Authorization":     "Bearer " + token,
		"PayPal-Request-Id": "paylink-" + req.OrderID + "-" + base.FormatAmount(req.Amount),
	})
	if err != nil {
		return nil, &provider.ProviderError{Code: provider.ErrProviderDown, Message: "PayPal is unavailable", ProviderErr: err.Error()}
	}
	if !resp.IsSuccess() {
		return nil, base.UpstreamError("PayPal", resp, errorMessage(resp))
	}

	var out orderResponse
	if err := resp.UnmarshalJSON(&out); err != nil {
		return nil, &provider.ProviderError{Code: provider.ErrResponseParse, Message: "failed to parse PayPal order response"}
	}
	for _, l := range out.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return &provider.LinkResponse{PaymentURL: l.Href, ProviderRef: out.ID}, nil
		}
	}
	return nil, &provider.ProviderError{Code: provider.ErrResponseParse, Message: "PayPal order has no approval link"}
}

// getAccessToken returns a cached client-credentials token or fetches one.
func (a *Adapter) getAccessToken(ctx context.Context, creds provider.Credentials, testMode bool) (string, error) {
	clientID := creds.String("clientId")
	key := fmt.Sprintf("%t:%s", testMode, clientID)

	a.mu.Lock()
	if t, ok := a.tokens[key]; ok && a.now().Before(t.ExpiresAt) {
		a.mu.Unlock()
		return t.Token, nil
	}
	a.mu.Unlock()

	basic := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + creds.String("clientSecret")))
	resp, err := a.client(testMode).PostForm(ctx, "/v1/oauth2/token", url.Values{"grant_type": {"client_credentials"}}, map[string]string{
		"Authorization": "Basic " + basic,
	})
	if err != nil {
		return "", &provider.ProviderError{Code: provider.ErrProviderDown, Message: "PayPal is unavailable", ProviderErr: err.Error()}
	}
	if !resp.IsSuccess() {
		var e struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		_ = resp.UnmarshalJSON(&e)
		return "", &provider.ProviderError{
			Code:        provider.ErrInvalidCredentials,
			Message:     firstNonEmpty(e.Description, "PayPal rejected the client credentials"),
			ProviderErr: e.Error,
		}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := resp.UnmarshalJSON(&tok); err != nil || tok.AccessToken == "" {
		return "", &provider.ProviderError{Code: provider.ErrResponseParse, Message: "failed to parse PayPal token response"}
	}

	// refresh a minute early
	ttl := time.Duration(tok.ExpiresIn)*time.Second - time.Minute
	if ttl > 0 {
		a.mu.Lock()
		a.tokens[key] = accessToken{Token: tok.AccessToken, ExpiresAt: a.now().Add(ttl)}
		a.mu.Unlock()
	}
	log.Debug().Str("provider", "paypal").Bool("sandbox", testMode).Msg("obtained access token")
	return tok.AccessToken, nil
}

func errorMessage(resp *base.HTTPResponse) string {
	var e apiError
	if err := resp.UnmarshalJSON(&e); err != nil {
		return ""
	}
	if len(e.Details) > 0 && e.Details[0].Description != "" {
		return e.Details[0].Description
	}
	return e.Message
}

type webhookEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID            string `json:"id"`
		CustomID      string `json:"custom_id"`
		PurchaseUnits []struct {
			CustomID string `json:"custom_id"`
		} `json:"purchase_units"`
	} `json:"resource"`
}

// ParseWebhook maps PAYMENT.CAPTURE.COMPLETED to completed and every other
// event to pending. Order events carry custom_id on the purchase unit;
// capture resources carry it at the top level.
func (a *Adapter) ParseWebhook(body []byte) (event.Payment, error) {
	var ev webhookEvent
	if err := base.DecodeWebhook(body, &ev); err != nil {
		return event.Payment{}, err
	}

	orderID := ""
	if len(ev.Resource.PurchaseUnits) > 0 {
		orderID = ev.Resource.PurchaseUnits[0].CustomID
	}
	if orderID == "" {
		orderID = ev.Resource.CustomID
	}

	p := event.Payment{
		OrderID:       orderID,
		TransactionID: ev.Resource.ID,
		Outcome:       event.OutcomePending,
	}
	if ev.EventType == eventCaptureCompleted {
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
