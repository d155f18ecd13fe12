// Package client calls the payment service on behalf of a signed-in buyer.
package client

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

	"github.com/MikeMC777/afrimarket/internal/httpx"
	"github.com/MikeMC777/afrimarket/internal/order"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment service: %d %s", e.Status, e.Message)
}

type Client struct {
	HTTP    *http.Client
	BaseURL string
	Token   string
	// Origin is sent so the gateway redirects back to the right site.
	Origin string
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: timeout},
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, hdr http.Header, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.Origin != "" {
		req.Header.Set("Origin", c.Origin)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))

	if res.StatusCode/100 != 2 {
		var e httpx.HTTPError
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Status: res.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// CreatePayment submits a checkout. idemKey may be empty.
func (c *Client) CreatePayment(ctx context.Context, req order.CreatePaymentRequest, idemKey string) (*order.CreatePaymentResponse, error) {
	hdr := http.Header{}
	if idemKey != "" {
		hdr.Set("Idempotency-Key", idemKey)
	}
	var out order.CreatePaymentResponse
	if err := c.do(ctx, http.MethodPost, "/payments", req, hdr, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	var out order.Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByReference pages through the caller's orders looking for reference.
// Used when the checkout response came back without an order id.
func (c *Client) FindByReference(ctx context.Context, reference string) (*order.Order, error) {
	const page = 100
	for offset := 0; ; offset += page {
		var out order.ListResponse
		path := fmt.Sprintf("/orders?limit=%d&offset=%d", page, offset)
		if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
			return nil, err
		}
		for i := range out.Items {
			if out.Items[i].PaymentReference == reference {
				return &out.Items[i], nil
			}
		}
		if len(out.Items) < page {
			return nil, &APIError{Status: http.StatusNotFound, Message: order.ErrNotFound.Error()}
		}
	}
}
