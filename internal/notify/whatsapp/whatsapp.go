// Package whatsapp sends outbound customer messages through the WhatsApp
// Cloud API.
package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"paylink/internal/domain/order"
	"paylink/internal/provider/base"

	"github.com/rs/zerolog/log"
)

type Config struct {
	APIURL        string
	Token         string
	PhoneNumberID string
	Timeout       time.Duration
}

type Client struct {
	http          *base.HTTPClient
	token         string
	phoneNumberID string
}

// New returns a client; without a token or phone number id every send is
// skipped.
func New(cfg Config) *Client {
	c := base.NewHTTPClient("whatsapp", cfg.Timeout)
	c.SetBaseURL(cfg.APIURL)
	return &Client{http: c, token: cfg.Token, phoneNumberID: cfg.PhoneNumberID}
}

func (c *Client) Enabled() bool { return c.token != "" && c.phoneNumberID != "" }

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendText delivers a plain text message to phone.
func (c *Client) SendText(ctx context.Context, phone, body string) error {
	if !c.Enabled() {
		log.Debug().Msg("whatsapp not configured, message skipped")
		return nil
	}
	msg := textMessage{MessagingProduct: "whatsapp", To: strings.TrimPrefix(phone, "+"), Type: "text"}
	msg.Text.Body = body

	resp, err := c.http.PostJSON(ctx, "/"+c.phoneNumberID+"/messages", msg, map[string]string{
		"Authorization": "Bearer " + c.token,
	})
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	if !resp.IsSuccess() {
		var e struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = resp.UnmarshalJSON(&e)
		return fmt.Errorf("whatsapp send: status %d: %s", resp.StatusCode, e.Error.Message)
	}
	return nil
}

// PaymentConfirmed tells the customer their order was paid.
func (c *Client) PaymentConfirmed(ctx context.Context, o *order.Order) error {
	if o.CustomerPhone == "" {
		return nil
	}
	body := fmt.Sprintf("התשלום עבור הזמנה %s התקבל (%s %s). תודה!", o.ID, o.Amount.StringFixed(2), o.Currency)
	return c.SendText(ctx, o.CustomerPhone, body)
}
