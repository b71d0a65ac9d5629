// Package meshulam opens Meshulam (Grow) light-server payment processes
// and reads Meshulam's server notifications.
package meshulam

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"paylink/internal/domain/event"
	"paylink/internal/domain/integration"
	"paylink/internal/provider"
	"paylink/internal/provider/base"
)

const (
	liveURL    = "https://secure.meshulam.co.il/api/light/server/1.0"
	sandboxURL = "https://sandbox.meshulam.co.il/api/light/server/1.0"
)

type Adapter struct {
	live    *base.HTTPClient
	sandbox *base.HTTPClient
}

// New returns the adapter. apiURL, when set, replaces both hosts.
func New(apiURL string, timeout time.Duration) *Adapter {
	a := &Adapter{
		live:    base.NewHTTPClient("meshulam", timeout),
		sandbox: base.NewHTTPClient("meshulam", timeout),
	}
	if apiURL != "" {
		a.live.SetBaseURL(apiURL)
		a.sandbox.SetBaseURL(apiURL)
	} else {
		a.live.SetBaseURL(liveURL)
		a.sandbox.SetBaseURL(sandboxURL)
	}
	return a
}

func (a *Adapter) Kind() integration.Kind  { return integration.KindMeshulam }
func (a *Adapter) SignatureHeader() string { return "x-webhook-signature" }

// processResponse leaves err and data raw: both are "" or an object
// depending on status.
type processResponse struct {
	Status int             `json:"status"`
	Err    json.RawMessage `json:"err"`
	Data   json.RawMessage `json:"data"`
}

type processData struct {
	URL       string `json:"url"`
	ProcessID int64  `json:"processId"`
}

func (a *Adapter) CreatePaymentLink(ctx context.Context, creds provider.Credentials, req provider.LinkRequest) (*provider.LinkResponse, error) {
	if err := creds.Require("pageCode", "userId"); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("pageCode", creds.String("pageCode"))
	form.Set("userId", creds.String("userId"))
	if key := creds.String("apiKey"); key != "" {
		form.Set("apiKey", key)
	}
	form.Set("sum", base.FormatAmount(req.Amount))
	form.Set("paymentNum", "1")
	form.Set("description", base.Description(req))
	form.Set("pageField[phone]", req.CustomerPhone)
	if req.CustomerEmail != "" {
		form.Set("pageField[email]", req.CustomerEmail)
	}
	form.Set("cField1", req.OrderID)
	if req.ReturnURL != "" {
		form.Set("successUrl", req.ReturnURL)
		form.Set("cancelUrl", req.ReturnURL)
	}
	if req.NotifyURL != "" {
		form.Set("notifyUrl", req.NotifyURL)
	}

	client := a.live
	if req.TestMode {
		client = a.sandbox
	}
	resp, err := client.PostForm(ctx, "/createPaymentProcess", form, nil)
	if err != nil {
		return nil, &provider.ProviderError{Code: provider.ErrProviderDown, Message: "Meshulam is unavailable", ProviderErr: err.Error()}
	}

	var out processResponse
	if err := resp.UnmarshalJSON(&out); err != nil {
		if !resp.IsSuccess() {
			return nil, base.UpstreamError("Meshulam", resp, "")
		}
		return nil, &provider.ProviderError{Code: provider.ErrResponseParse, Message: "failed to parse Meshulam response"}
	}
	if out.Status != 1 {
		return nil, base.UpstreamError("Meshulam", resp, errMessage(out.Err))
	}
	var data processData
	if err := json.Unmarshal(out.Data, &data); err != nil || data.URL == "" {
		return nil, &provider.ProviderError{Code: provider.ErrResponseParse, Message: "Meshulam returned no payment page URL"}
	}
	return &provider.LinkResponse{PaymentURL: data.URL, ProviderRef: strconv.FormatInt(data.ProcessID, 10)}, nil
}

// errMessage reads err, which Meshulam sends as "" on success and as an
// object or plain string on failure.
func errMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

type notification struct {
	Status        base.FlexString `json:"status"`
	TransactionID base.FlexString `json:"transactionId"`
	CustomFields  struct {
		OrderID base.FlexString `json:"orderId"`
	} `json:"customFields"`
}

// ParseWebhook maps status "success" to completed and anything else to
// failed.
func (a *Adapter) ParseWebhook(body []byte) (event.Payment, error) {
	var n notification
	if err := base.DecodeWebhook(body, &n); err != nil {
		return event.Payment{}, err
	}
	p := event.Payment{
		OrderID:       n.CustomFields.OrderID.String(),
		TransactionID: n.TransactionID.String(),
		Outcome:       event.OutcomeFailed,
	}
	if n.Status == "success" {
		p.Outcome = event.OutcomeCompleted
	}
	return p, p.Validate()
}
