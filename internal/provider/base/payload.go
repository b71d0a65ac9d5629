package base

import (
	"bytes"
	"encoding/json"
	"fmt"

	"paylink/internal/provider"
)

// FlexString decodes a JSON string or number into its text form. Israeli
// gateways send codes and deal numbers either way.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// DecodeWebhook unmarshals body into v, wrapping failures as
// provider.ErrMalformedPayload.
func DecodeWebhook(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", provider.ErrMalformedPayload)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", provider.ErrMalformedPayload, err)
	}
	return nil
}

// UpstreamError builds the error returned when a provider answers with a
// failure. msg is the provider-supplied reason when there is one.
func UpstreamError(name string, resp *HTTPResponse, msg string) *provider.ProviderError {
	if msg == "" {
		msg = fmt.Sprintf("%s returned status %d", name, resp.StatusCode)
	}
	return &provider.ProviderError{
		Code:    provider.ErrRejected,
		Message: msg,
	}
}
