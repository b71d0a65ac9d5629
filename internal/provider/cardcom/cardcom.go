// Package cardcom creates Cardcom Low Profile payment pages (API v11) and
// reads Cardcom's deal webhooks.
package cardcom

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"paylink/internal/domain/event"
	"paylink/internal/domain/integration"
	"paylink/internal/provider"
	"paylink/internal/provider/base"
)

const defaultURL = "https://secure.cardcom.solutions"

// ISO 4217 numeric codes Cardcom accepts as ISOCoinId
var coinIDs = map[string]int{
	"ILS": 1,
	"USD": 2,
	"EUR": 978,
	"GBP": 826,
}

type Adapter struct {
	http *base.HTTPClient
}

// New returns the adapter. Cardcom has no separate sandbox host; test mode
// is a property of the terminal.
func New(apiURL string, timeout time.Duration) *Adapter {
	c := base.NewHTTPClient("cardcom", timeout)
	if apiURL == "" {
		apiURL = defaultURL
	}
	c.SetBaseURL(apiURL)
	return &Adapter{http: c}
}

func (a *Adapter) Kind() integration.Kind  { return integration.KindCardcom }
func (a *Adapter) SignatureHeader() string { return "x-webhook-signature" }

type createRequest struct {
	TerminalNumber     int         `json:"TerminalNumber"`
	ApiName            string      `json:"ApiName"`
	Amount             json.Number `json:"Amount"`
	ISOCoinId          int         `json:"ISOCoinId,omitempty"`
	ReturnValue        string      `json:"ReturnValue"`
	ProductName        string      `json:"ProductName"`
	SuccessRedirectUrl string      `json:"SuccessRedirectUrl,omitempty"`
	FailedRedirectUrl  string      `json:"FailedRedirectUrl,omitempty"`
	WebHookUrl         string      `json:"WebHookUrl,omitempty"`
	UIDefinition       *uiDef      `json:"UIDefinition,omitempty"`
}

type uiDef struct {
	CardOwnerPhoneValue string `json:"CardOwnerPhoneValue,omitempty"`
	CardOwnerEmailValue string `json:"CardOwnerEmailValue,omitempty"`
}

type createResponse struct {
	ResponseCode int    `json:"ResponseCode"`
	Description  string `json:"Description"`
	LowProfileId string `json:"LowProfileId"`
	Url          string `json:"Url"`
}

func (a *Adapter) CreatePaymentLink(ctx context.Context, creds provider.Credentials, req provider.LinkRequest) (*provider.LinkResponse, error) {
	if err := creds.Require("terminalNumber", "apiName"); err != nil {
		return nil, err
	}
	terminal, err := strconv.Atoi(creds.String("terminalNumber"))
	if err != nil {
		return nil, &provider.ProviderError{Code: provider.ErrInvalidCredentials, Message: "terminalNumber must be numeric"}
	}
	coin, ok := coinIDs[req.Currency]
	if !ok {
		return nil, &provider.ProviderError{Code: provider.ErrInvalidAmount, Message: "Cardcom does not support currency " + req.Currency}
	}

	payload := createRequest{
		TerminalNumber:     terminal,
		ApiName:            creds.String("apiName"),
		Amount:             json.Number(base.FormatAmount(req.Amount)),
		ISOCoinId:          coin,
		ReturnValue:        req.OrderID,
		ProductName:        base.Description(req),
		SuccessRedirectUrl: req.ReturnURL,
		FailedRedirectUrl:  req.ReturnURL,
		WebHookUrl:         req.NotifyURL,
		UIDefinition: &uiDef{
			CardOwnerPhoneValue: req.CustomerPhone,
			CardOwnerEmailValue: req.CustomerEmail,
		},
	}

	resp, err := a.http.PostJSON(ctx, "/api/v11/LowProfile/Create", payload, nil)
	if err != nil {
		return nil, &provider.ProviderError{Code: provider.ErrProviderDown, Message: "Cardcom is unavailable", ProviderErr: err.Error()}
	}

	var out createResponse
	if err := resp.UnmarshalJSON(&out); err != nil {
		if !resp.IsSuccess() {
			return nil, base.UpstreamError("Cardcom", resp, "")
		}
		return nil, &provider.ProviderError{Code: provider.ErrResponseParse, Message: "failed to parse Cardcom response"}
	}
	if out.ResponseCode != 0 {
		return nil, &provider.ProviderError{
			Code:        provider.ErrRejected,
			Message:     out.Description,
			ProviderErr: "ResponseCode " + strconv.Itoa(out.ResponseCode),
		}
	}
	if out.Url == "" {
		return nil, &provider.ProviderError{Code: provider.ErrResponseParse, Message: "Cardcom returned no payment page URL"}
	}
	return &provider.LinkResponse{PaymentURL: out.Url, ProviderRef: out.LowProfileId}, nil
}

type notification struct {
	ResponseCode       base.FlexString `json:"ResponseCode"`
	InternalDealNumber base.FlexString `json:"InternalDealNumber"`
	CustomFields       struct {
		OrderID base.FlexString `json:"OrderId"`
	} `json:"CustomFields"`
}

// ParseWebhook maps ResponseCode 0 to completed and any other code to
// failed.
func (a *Adapter) ParseWebhook(body []byte) (event.Payment, error) {
	var n notification
	if err := base.DecodeWebhook(body, &n); err != nil {
		return event.Payment{}, err
	}
	p := event.Payment{
		OrderID:       n.CustomFields.OrderID.String(),
		TransactionID: n.InternalDealNumber.String(),
		Outcome:       event.OutcomeFailed,
	}
	if n.ResponseCode == "0" {
		p.Outcome = event.OutcomeCompleted
	}
	return p, p.Validate()
}
