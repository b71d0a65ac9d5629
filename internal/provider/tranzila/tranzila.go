// Package tranzila builds Tranzila hosted payment page links and reads
// Tranzila's notify callbacks.
package tranzila

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"paylink/internal/domain/event"
	"paylink/internal/domain/integration"
	"paylink/internal/provider"
	"paylink/internal/provider/base"
)

const defaultPayURL = "https://direct.tranzila.com"

// Tranzila's numeric currency codes
var currencyCodes = map[string]string{
	"ILS": "1",
	"USD": "2",
	"EUR": "978",
	"GBP": "826",
}

type Adapter struct {
	payURL string
}

// New returns the adapter. payURL overrides the hosted page host.
func New(payURL string) *Adapter {
	if payURL == "" {
		payURL = defaultPayURL
	}
	return &Adapter{payURL: strings.TrimRight(payURL, "/")}
}

func (a *Adapter) Kind() integration.Kind  { return integration.KindTranzila }
func (a *Adapter) SignatureHeader() string { return "x-webhook-signature" }

// CreatePaymentLink composes the iframe page URL; Tranzila needs no
// server-side call to open a page.
func (a *Adapter) CreatePaymentLink(ctx context.Context, creds provider.Credentials, req provider.LinkRequest) (*provider.LinkResponse, error) {
	if err := creds.Require("terminal"); err != nil {
		return nil, err
	}
	code, ok := currencyCodes[req.Currency]
	if !ok {
		return nil, &provider.ProviderError{
			Code:    provider.ErrInvalidAmount,
			Message: fmt.Sprintf("Tranzila does not support currency %s", req.Currency),
		}
	}

	q := url.Values{}
	q.Set("sum", base.FormatAmount(req.Amount))
	q.Set("currency", code)
	q.Set("order_id", req.OrderID)
	q.Set("phone", req.CustomerPhone)
	q.Set("pdesc", base.Description(req))
	if req.CustomerEmail != "" {
		q.Set("email", req.CustomerEmail)
	}
	if req.ReturnURL != "" {
		q.Set("success_url_address", req.ReturnURL)
		q.Set("fail_url_address", req.ReturnURL)
	}
	if req.NotifyURL != "" {
		q.Set("notify_url_address", req.NotifyURL)
	}

	page := fmt.Sprintf("%s/%s/iframenew.php?%s", a.payURL, url.PathEscape(creds.String("terminal")), q.Encode())
	return &provider.LinkResponse{PaymentURL: page}, nil
}

type notification struct {
	OrderID       base.FlexString `json:"order_id"`
	TransactionID base.FlexString `json:"transaction_id"`
	Response      base.FlexString `json:"response"`
}

// ParseWebhook maps response "000" to completed and any other code to
// failed; Tranzila sends a single notification per attempt.
func (a *Adapter) ParseWebhook(body []byte) (event.Payment, error) {
	var n notification
	if err := base.DecodeWebhook(body, &n); err != nil {
		return event.Payment{}, err
	}
	p := event.Payment{
		OrderID:       n.OrderID.String(),
		TransactionID: n.TransactionID.String(),
		Outcome:       event.OutcomeFailed,
	}
	if n.Response == "000" {
		p.Outcome = event.OutcomeCompleted
	}
	return p, p.Validate()
}
