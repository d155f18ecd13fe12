// Package gateway talks to the Campay mobile-money / card collection API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"github.com/MikeMC777/afrimarket/internal/config"
)

var (
	ErrNotConfigured   = errors.New("payment service configuration error")
	ErrTokenExchange   = errors.New("failed to authenticate with payment service")
	ErrPaymentCreation = errors.New("failed to create payment")
)

// CollectRequest is the body of POST /collect/.
type CollectRequest struct {
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	ExternalReference string `json:"external_reference"`
	PhoneNumber       string `json:"phone_number"`
	Description       string `json:"description"`
	RedirectURL       string `json:"redirect_url"`
	WebhookURL        string `json:"webhook_url,omitempty"`
}

type CollectResponse struct {
	Reference string `json:"reference"`
	Link      string `json:"link"`
	USSDCode  string `json:"ussd_code"`
	Operator  string `json:"operator"`
}

type reply struct {
	status int
	body   []byte
}

// errUpstream marks failures that count against the breaker and may be retried.
type errUpstream struct{ msg string }

func (e errUpstream) Error() string { return e.msg }

type Client struct {
	HTTP         *http.Client
	BaseURL      string
	Username     string
	Password     string
	AppID        string
	TokenRetries int
	RetryBackoff time.Duration

	breaker *gobreaker.CircuitBreaker[reply]
}

func NewClient(cfg config.Gateway) *Client {
	return &Client{
		HTTP:         &http.Client{Timeout: cfg.Timeout},
		BaseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		Username:     cfg.Username,
		Password:     cfg.Password,
		AppID:        cfg.AppID,
		TokenRetries: cfg.TokenRetries,
		RetryBackoff: 250 * time.Millisecond,
		breaker: gobreaker.NewCircuitBreaker[reply](gobreaker.Settings{
			Name:        "campay",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("[gateway] breaker state")
			},
		}),
	}
}

func (c *Client) Configured() bool {
	return c.Username != "" && c.Password != "" && c.AppID != ""
}

func (c *Client) post(ctx context.Context, path, authz string, body any) (reply, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return reply{}, err
	}
	call := func() (reply, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return reply{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		res, err := c.HTTP.Do(req)
		if err != nil {
			return reply{}, errUpstream{msg: err.Error()}
		}
		defer res.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if res.StatusCode >= http.StatusInternalServerError {
			return reply{}, errUpstream{msg: fmt.Sprintf("%s: %s", res.Status, b)}
		}
		return reply{status: res.StatusCode, body: b}, nil
	}
	if c.breaker == nil {
		return call()
	}
	return c.breaker.Execute(call)
}

// Token exchanges the service credentials for a short-lived access token.
// Transport and 5xx failures are retried TokenRetries times.
func (c *Client) Token(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	creds := map[string]string{"username": c.Username, "password": c.Password}

	var lastErr error
	for attempt := 0; attempt <= c.TokenRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrTokenExchange, ctx.Err())
			case <-time.After(time.Duration(attempt) * c.RetryBackoff):
			}
		}
		r, err := c.post(ctx, "/token/", "", creds)
		if err != nil {
			lastErr = err
			var up errUpstream
			if errors.As(err, &up) {
				log.Warn().Err(err).Int("attempt", attempt+1).Msg("[gateway] token exchange failed")
				continue
			}
			break
		}
		if r.status != http.StatusOK {
			lastErr = fmt.Errorf("status %d: %s", r.status, r.body)
			break
		}
		var out struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(r.body, &out); err != nil || out.Token == "" {
			lastErr = fmt.Errorf("no token in response")
			break
		}
		return out.Token, nil
	}
	return "", fmt.Errorf("%w: %v", ErrTokenExchange, lastErr)
}

// Collect submits a payment request. It is never retried: a second attempt
// could charge the buyer twice.
func (c *Client) Collect(ctx context.Context, token string, in CollectRequest) (*CollectResponse, error) {
	r, err := c.post(ctx, "/collect/", "Token "+token, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentCreation, err)
	}
	if r.status < 200 || r.status > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrPaymentCreation, r.status, r.body)
	}
	var out CollectResponse
	if err := json.Unmarshal(r.body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrPaymentCreation, err)
	}
	if out.Link == "" {
		return nil, fmt.Errorf("%w: response has no checkout link", ErrPaymentCreation)
	}
	return &out, nil
}
