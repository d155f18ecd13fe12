// Package payment turns a cart snapshot and a payment method into either a
// hosted Campay checkout or a pay-on-delivery order, and records the order.
package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/afrimarket/internal/auth"
	"github.com/MikeMC777/afrimarket/internal/cart"
	"github.com/MikeMC777/afrimarket/internal/catalog"
	"github.com/MikeMC777/afrimarket/internal/events"
	"github.com/MikeMC777/afrimarket/internal/gateway"
	"github.com/MikeMC777/afrimarket/internal/idempotency"
	"github.com/MikeMC777/afrimarket/internal/money"
	"github.com/MikeMC777/afrimarket/internal/order"
)

var (
	ErrInvalidInput   = errors.New("invalid payment request")
	ErrPriceMismatch  = errors.New("cart prices are out of date")
	ErrInProgress     = errors.New("checkout already in progress")
	ErrPersist        = errors.New("failed to record order")
	ErrIgnored        = errors.New("notification ignored")
	ErrAmountMismatch = errors.New("notified amount does not match the order")
)

// Gateway is the part of the Campay client the service drives.
type Gateway interface {
	Configured() bool
	Token(ctx context.Context) (string, error)
	Collect(ctx context.Context, token string, in gateway.CollectRequest) (*gateway.CollectResponse, error)
}

// Request is one checkout submission.
type Request struct {
	order.CreatePaymentRequest
	// Origin of the calling page; the gateway sends the buyer back there.
	Origin string
	// IdempotencyKey overrides the key derived from the cart.
	IdempotencyKey string
}

type Service struct {
	Orders  order.Repository
	Gateway Gateway
	Events  events.Publisher
	// optional
	Catalog catalog.Repository
	Idem    idempotency.Store

	Currency      string
	FallbackPhone string
	PublicBaseURL string
	WebhookURL    string
	WebhookKey    string

	Now   func() time.Time
	NewID func() string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) publisher() events.Publisher {
	if s.Events == nil {
		return events.Nop{}
	}
	return s.Events
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validate returns the amount to charge in whole currency units.
func (s *Service) validate(req *Request) (int64, error) {
	if len(req.Items) == 0 {
		return 0, invalid("items are required")
	}
	if req.Currency == "" {
		req.Currency = s.Currency
	}
	if !strings.EqualFold(req.Currency, s.Currency) {
		return 0, invalid("currency %s is not accepted, use %s", req.Currency, s.Currency)
	}
	req.Currency = s.Currency

	seen := make(map[int64]bool, len(req.Items))
	total := decimal.Zero
	for i := range req.Items {
		it := &req.Items[i]
		if seen[it.ProductID] {
			return 0, invalid("product %d appears twice", it.ProductID)
		}
		seen[it.ProductID] = true
		if it.Quantity < 1 {
			return 0, invalid("product %d has quantity %d", it.ProductID, it.Quantity)
		}
		if !it.UnitPrice.IsPositive() {
			return 0, invalid("product %d has no price", it.ProductID)
		}
		if it.Currency == "" {
			it.Currency = s.Currency
		} else if !strings.EqualFold(it.Currency, s.Currency) {
			return 0, invalid("product %d is priced in %s", it.ProductID, it.Currency)
		}
		total = total.Add(it.Subtotal())
	}

	amount := money.ToMinor(total)
	if amount <= 0 || req.TotalAmount < 0 {
		return 0, invalid("total amount must be positive")
	}
	if req.TotalAmount != 0 && req.TotalAmount != amount {
		return 0, invalid("totalAmount %d does not match items total %d", req.TotalAmount, amount)
	}

	switch req.PaymentMethod {
	case order.MethodPhone:
		if len(digits(req.PaymentDetails)) < 9 {
			return 0, invalid("a mobile money number is required")
		}
	case order.MethodCard:
		if len(digits(req.PaymentDetails)) < 16 {
			return 0, invalid("a 16-digit card number is required")
		}
	case order.MethodDelivery:
	default:
		return 0, invalid("unknown payment method %q", req.PaymentMethod)
	}
	return amount, nil
}

func (s *Service) checkPrices(ctx context.Context, items []cart.Item) error {
	if s.Catalog == nil {
		return nil
	}
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	prices, err := s.Catalog.Prices(ctx, ids)
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}
	for _, it := range items {
		p, ok := prices[it.ProductID]
		if !ok {
			return fmt.Errorf("%w: product %d is no longer sold", ErrPriceMismatch, it.ProductID)
		}
		if !p.Equal(it.UnitPrice) {
			return fmt.Errorf("%w: product %d now costs %s", ErrPriceMismatch, it.ProductID, money.Format(p, s.Currency))
		}
	}
	return nil
}

// idempotencyKey ties a submission to who sent it, how it pays and what it
// buys. A client key stands in for the cart but never for the method.
func idempotencyKey(userID string, req *Request) string {
	h := sha256.New()
	what := req.IdempotencyKey
	if what == "" {
		what = cart.Fingerprint(req.Items)
	}
	fmt.Fprintf(h, "%s|%s|%s|%s", userID, req.PaymentMethod, digitsIfPhone(req), what)
	return hex.EncodeToString(h.Sum(nil))
}

func digitsIfPhone(req *Request) string {
	if req.PaymentMethod == order.MethodPhone {
		return digits(req.PaymentDetails)
	}
	return ""
}

// phoneFor picks the number Campay bills. Local 9-digit numbers get the
// Cameroon prefix; card checkouts use the configured fallback.
func (s *Service) phoneFor(req *Request) string {
	if req.PaymentMethod != order.MethodPhone {
		return s.FallbackPhone
	}
	d := digits(req.PaymentDetails)
	if len(d) == 9 {
		return "237" + d
	}
	return d
}

func (s *Service) redirectURL(origin string) string {
	base := strings.TrimRight(origin, "/")
	if base == "" {
		base = s.PublicBaseURL
	}
	return base + "/payment-success"
}

// Initiate runs one checkout for caller. It never retries the collection
// request; every call that reaches the gateway mints a new reference.
func (s *Service) Initiate(ctx context.Context, caller *auth.User, req Request) (*order.CreatePaymentResponse, error) {
	if caller == nil || caller.ID == "" {
		return nil, auth.ErrUnauthenticated
	}
	amount, err := s.validate(&req)
	if err != nil {
		return nil, err
	}
	if err := s.checkPrices(ctx, req.Items); err != nil {
		return nil, err
	}

	key := idempotencyKey(caller.ID, &req)
	reserved := false
	if s.Idem != nil {
		prev, ok, err := s.reserve(ctx, caller.ID, key)
		if err != nil || prev != nil {
			return prev, err
		}
		reserved = ok
	}

	// the suffix keeps two attempts in the same millisecond apart
	reference := fmt.Sprintf("order_%s_%d_%s", caller.ID, s.now().UnixMilli(), uuid.NewString()[:8])
	o := &order.Order{
		ID:                s.newID(),
		UserID:            caller.ID,
		Amount:            amount,
		Currency:          req.Currency,
		Status:            order.StatusPending,
		FulfillmentMethod: req.PaymentMethod.Fulfillment(),
		PaymentMethod:     req.PaymentMethod,
		PaymentReference:  reference,
		IdempotencyKey:    key,
		Items:             append([]cart.Item(nil), req.Items...),
	}
	log.Info().Str("user", caller.ID).Int64("amount", amount).Str("currency", o.Currency).
		Str("method", string(req.PaymentMethod)).Msg("[payment] creating payment")

	var resp *order.CreatePaymentResponse
	if req.PaymentMethod == order.MethodDelivery {
		resp, err = s.placeDelivery(ctx, o)
	} else {
		resp, err = s.collect(ctx, o, &req)
	}

	if reserved {
		if err != nil {
			if rerr := s.Idem.Release(ctx, key); rerr != nil {
				log.Warn().Err(rerr).Msg("[payment] release idempotency key")
			}
		} else if b, merr := json.Marshal(resp); merr == nil {
			if cerr := s.Idem.Complete(ctx, key, b); cerr != nil {
				log.Warn().Err(cerr).Msg("[payment] store idempotent response")
			}
		}
	}
	return resp, err
}

// reserve claims key for a new attempt. An earlier response is replayed only
// while its order is still pending; a settled or vanished order frees the key.
func (s *Service) reserve(ctx context.Context, userID, key string) (*order.CreatePaymentResponse, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		prev, ok, err := s.Idem.Reserve(ctx, key)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("user", userID).Msg("[payment] idempotency store unavailable")
			return nil, false, nil
		case ok:
			return nil, true, nil
		case prev.State != idempotency.StateDone:
			return nil, false, ErrInProgress
		}

		var resp order.CreatePaymentResponse
		if err := json.Unmarshal(prev.Response, &resp); err == nil && s.stillPending(ctx, &resp) {
			resp.Replayed = true
			log.Info().Str("user", userID).Str("reference", resp.Reference).Msg("[payment] replaying earlier checkout")
			return &resp, false, nil
		}
		if err := s.Idem.Release(ctx, key); err != nil {
			log.Warn().Err(err).Msg("[payment] release stale idempotency key")
			return nil, false, ErrInProgress
		}
	}
	return nil, false, ErrInProgress
}

// stillPending reports whether a stored response may be replayed. Without an
// order id the charge could not be recorded, so the link is all there is.
func (s *Service) stillPending(ctx context.Context, resp *order.CreatePaymentResponse) bool {
	if resp.OrderID == "" {
		return true
	}
	o, err := s.Orders.GetByID(ctx, resp.OrderID)
	if errors.Is(err, order.ErrNotFound) {
		return false
	}
	if err != nil {
		log.Warn().Err(err).Str("order", resp.OrderID).Msg("[payment] cannot check replayed order")
		return true
	}
	return o.Status == order.StatusPending
}

// placeDelivery records a pay-on-delivery order. The row is the only
// commitment, so failing to write it fails the checkout.
func (s *Service) placeDelivery(ctx context.Context, o *order.Order) (*order.CreatePaymentResponse, error) {
	if err := s.Orders.Create(ctx, o); err != nil {
		log.Error().Err(err).Str("user", o.UserID).Msg("[payment] failed to store delivery order")
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	s.announce(ctx, o)
	return &order.CreatePaymentResponse{
		Reference:         o.PaymentReference,
		OrderID:           o.ID,
		Status:            o.Status,
		FulfillmentMethod: o.FulfillmentMethod,
		Amount:            o.Amount,
		Currency:          o.Currency,
	}, nil
}

func (s *Service) collect(ctx context.Context, o *order.Order, req *Request) (*order.CreatePaymentResponse, error) {
	if s.Gateway == nil || !s.Gateway.Configured() {
		log.Error().Msg("[payment] missing Campay credentials")
		return nil, gateway.ErrNotConfigured
	}
	token, err := s.Gateway.Token(ctx)
	if err != nil {
		log.Error().Err(err).Msg("[payment] failed to get Campay token")
		return nil, err
	}

	out, err := s.Gateway.Collect(ctx, token, gateway.CollectRequest{
		Amount:            decimal.NewFromInt(o.Amount).String(),
		Currency:          o.Currency,
		ExternalReference: o.PaymentReference,
		PhoneNumber:       s.phoneFor(req),
		Description:       fmt.Sprintf("AfriMarket Order - %d items", len(o.Items)),
		RedirectURL:       s.redirectURL(req.Origin),
		WebhookURL:        s.WebhookURL,
	})
	if err != nil {
		log.Error().Err(err).Str("reference", o.PaymentReference).Msg("[payment] Campay payment creation failed")
		return nil, err
	}
	o.PaymentURL = out.Link
	log.Info().Str("reference", o.PaymentReference).Str("campay_ref", out.Reference).Msg("[payment] Campay payment created")

	resp := &order.CreatePaymentResponse{URL: out.Link, Reference: o.PaymentReference}
	// The charge exists at the gateway now. A lost row is reconciled from
	// the gateway side, the buyer still gets the checkout link.
	if err := s.Orders.Create(ctx, o); err != nil {
		log.Error().Err(err).Str("reference", o.PaymentReference).Msg("[payment] failed to store order")
		return resp, nil
	}
	resp.OrderID = o.ID
	s.announce(ctx, o)
	return resp, nil
}

func (s *Service) announce(ctx context.Context, o *order.Order) {
	if err := s.publisher().OrderCreated(ctx, o); err != nil {
		log.Warn().Err(err).Str("order", o.ID).Msg("[payment] publish order.created")
	}
}

// ListOrders returns the caller's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, caller *auth.User, limit, offset int) ([]order.Order, error) {
	if caller == nil {
		return nil, auth.ErrUnauthenticated
	}
	return s.Orders.ListByUser(ctx, caller.ID, limit, offset)
}

// GetOrder returns one of the caller's orders. Other users' orders are reported as not found.
func (s *Service) GetOrder(ctx context.Context, caller *auth.User, id string) (*order.Order, error) {
	if caller == nil {
		return nil, auth.ErrUnauthenticated
	}
	o, err := s.Orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != caller.ID {
		return nil, order.ErrNotFound
	}
	return o, nil
}

// Settle applies a Campay webhook to the matching order.
func (s *Service) Settle(ctx context.Context, wh gateway.Webhook) (*order.Order, error) {
	if err := wh.Verify(s.WebhookKey); err != nil {
		return nil, err
	}
	var status order.Status
	switch strings.ToUpper(wh.Status) {
	case gateway.StatusSuccessful:
		status = order.StatusCompleted
	case gateway.StatusFailed:
		status = order.StatusCancelled
	case gateway.StatusPending:
		return nil, ErrIgnored
	default:
		log.Warn().Str("status", wh.Status).Msg("[webhook] unknown status")
		return nil, ErrIgnored
	}
	if wh.ExternalReference == "" {
		return nil, invalid("external_reference is required")
	}

	cur, err := s.Orders.GetByReference(ctx, wh.ExternalReference)
	if err != nil {
		return nil, err
	}
	if err := matchAmount(cur, wh); err != nil {
		log.Warn().Str("order", cur.ID).Str("amount", wh.Amount).Str("currency", wh.Currency).Msg("[webhook] amount mismatch")
		return nil, err
	}
	if cur.Status == status {
		return cur, nil
	}
	if !order.CanTransition(cur.Status, status) {
		return nil, order.ErrInvalidTransition
	}

	o, changed, err := s.Orders.SettleByReference(ctx, wh.ExternalReference, status)
	if err != nil {
		return nil, err
	}
	if changed {
		log.Info().Str("order", o.ID).Str("status", string(o.Status)).Msg("[payment] order settled")
		if err := s.publisher().OrderSettled(ctx, o); err != nil {
			log.Warn().Err(err).Str("order", o.ID).Msg("[payment] publish order.settled")
		}
	}
	return o, nil
}

// matchAmount rejects a notification whose amount or currency differs from
// the order. Campay may omit both.
func matchAmount(o *order.Order, wh gateway.Webhook) error {
	if wh.Currency != "" && !strings.EqualFold(wh.Currency, o.Currency) {
		return ErrAmountMismatch
	}
	if wh.Amount == "" {
		return nil
	}
	amt, err := money.ParsePrice(wh.Amount)
	if err != nil || money.ToMinor(amt) != o.Amount {
		return ErrAmountMismatch
	}
	return nil
}
