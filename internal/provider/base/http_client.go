package base

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const maxUpstreamBody = 1 << 20

// HTTPClient talks to one provider's REST API. Requests carry the caller's
// context, so the link timeout of the orchestrator bounds them.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	name    string
}

func NewHTTPClient(providerName string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{client: &http.Client{Timeout: timeout}, name: providerName}
}

func (c *HTTPClient) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// PostJSON sends payload as a JSON document.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, payload any, headers map[string]string) (*HTTPResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", c.name, err)
	}
	return c.send(ctx, path, bytes.NewReader(body), "application/json", headers)
}

// PostForm sends form url-encoded, as the Israeli gateways expect.
func (c *HTTPClient) PostForm(ctx context.Context, path string, form url.Values, headers map[string]string) (*HTTPResponse, error) {
	return c.send(ctx, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", headers)
}

func (c *HTTPClient) send(ctx context.Context, path string, body io.Reader, contentType string, headers map[string]string) (*HTTPResponse, error) {
	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Paylink/"+c.name)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("provider", c.name).Str("url", target).Msg("provider unreachable")
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", c.name, err)
	}
	log.Debug().
		Str("provider", c.name).
		Str("url", target).
		Int("status", resp.StatusCode).
		Int("bytes", len(raw)).
		Dur("took", time.Since(started)).
		Msg("provider responded")

	return &HTTPResponse{StatusCode: resp.StatusCode, Body: raw}, nil
}

// HTTPResponse is a fully read provider reply.
type HTTPResponse struct {
	StatusCode int
	Body       []byte
}

func (r *HTTPResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *HTTPResponse) UnmarshalJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

func (r *HTTPResponse) String() string {
	return string(r.Body)
}
