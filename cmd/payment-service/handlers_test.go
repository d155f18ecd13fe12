package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MikeMC777/afrimarket/internal/auth"
	"github.com/MikeMC777/afrimarket/internal/gateway"
	"github.com/MikeMC777/afrimarket/internal/httpx"
	"github.com/MikeMC777/afrimarket/internal/order"
	"github.com/MikeMC777/afrimarket/internal/payment"
)

//
// ---------- STUBS & FAKES ----------
//

// stubRepo implements order.Repository in memory.
type stubRepo struct {
	lastOrder *order.Order
	failWrite bool
}

func (s *stubRepo) Create(ctx context.Context, o *order.Order) error {
	if s.failWrite {
		return fmt.Errorf("connection refused")
	}
	cp := *o
	cp.CreatedAt, cp.UpdatedAt = time.Now(), time.Now()
	s.lastOrder = &cp
	return nil
}

func (s *stubRepo) GetByID(ctx context.Context, id string) (*order.Order, error) {
	if s.lastOrder == nil || s.lastOrder.ID != id {
		return nil, order.ErrNotFound
	}
	return s.lastOrder, nil
}

func (s *stubRepo) GetByReference(ctx context.Context, ref string) (*order.Order, error) {
	if s.lastOrder == nil || s.lastOrder.PaymentReference != ref {
		return nil, order.ErrNotFound
	}
	return s.lastOrder, nil
}

func (s *stubRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]order.Order, error) {
	if s.lastOrder != nil && s.lastOrder.UserID == userID {
		return []order.Order{*s.lastOrder}, nil
	}
	return []order.Order{}, nil
}

func (s *stubRepo) SettleByReference(ctx context.Context, ref string, status order.Status) (*order.Order, bool, error) {
	if s.lastOrder == nil || s.lastOrder.PaymentReference != ref {
		return nil, false, order.ErrNotFound
	}
	if s.lastOrder.Status == status {
		return s.lastOrder, false, nil
	}
	if !order.CanTransition(s.lastOrder.Status, status) {
		return nil, false, order.ErrInvalidTransition
	}
	s.lastOrder.Status = status
	return s.lastOrder, true, nil
}

// stubGateway implements payment.Gateway.
type stubGateway struct {
	configured  bool
	tokenErr    error
	collectErr  error
	tokenCalls  int
	lastCollect gateway.CollectRequest
}

func (g *stubGateway) Configured() bool { return g.configured }

func (g *stubGateway) Token(ctx context.Context) (string, error) {
	g.tokenCalls++
	if g.tokenErr != nil {
		return "", g.tokenErr
	}
	return "tok", nil
}

func (g *stubGateway) Collect(ctx context.Context, token string, in gateway.CollectRequest) (*gateway.CollectResponse, error) {
	g.lastCollect = in
	if g.collectErr != nil {
		return nil, g.collectErr
	}
	return &gateway.CollectResponse{Reference: "cp-1", Link: "https://campay.net/pay/cp-1"}, nil
}

// stubVerifier accepts the single token "good".
type stubVerifier struct {
	user *auth.User
	err  error
}

func (v *stubVerifier) Verify(ctx context.Context, token string) (*auth.User, error) {
	if v.err != nil {
		return nil, v.err
	}
	if token != "good" {
		return nil, auth.ErrUnauthenticated
	}
	return v.user, nil
}

type harness struct {
	repo *stubRepo
	gw   *stubGateway
	user *auth.User
	h    http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hs := &harness{
		repo: &stubRepo{},
		gw:   &stubGateway{configured: true},
		user: &auth.User{ID: uuid.NewString(), Email: "ama@example.cm"},
	}
	svc := &payment.Service{
		Orders:        hs.repo,
		Gateway:       hs.gw,
		Currency:      "XAF",
		FallbackPhone: "237000000000",
		PublicBaseURL: "http://localhost:5173",
		WebhookKey:    "whk",
	}
	hs.h = httpx.CORS().Handler(newRouter(svc, &stubVerifier{user: hs.user}, true))
	return hs
}

func (hs *harness) do(method, target, token, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	hs.h.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e httpx.HTTPError
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("error body is not json: %s", w.Body.String())
	}
	return e.Error
}

const phoneBody = `{"items":[{"id":1,"name":"Ndop cloth","price":"XAF 5,000","quantity":2}],"totalAmount":10000,"paymentMethod":"phone","paymentDetails":"670000000"}`

//
// ---------- TESTS ----------
//

func TestCreatePayment_Phone(t *testing.T) {
	hs := newHarness(t)

	w := hs.do(http.MethodPost, "/payments", "good", phoneBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp order.CreatePaymentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.URL == "" || resp.Reference == "" {
		t.Fatalf("missing url/reference: %s", w.Body.String())
	}
	if hs.gw.lastCollect.Amount != "10000" || hs.gw.lastCollect.Currency != "XAF" {
		t.Fatalf("collect sent amount=%s currency=%s", hs.gw.lastCollect.Amount, hs.gw.lastCollect.Currency)
	}
	if hs.repo.lastOrder == nil || hs.repo.lastOrder.UserID != hs.user.ID {
		t.Fatalf("order not stored for caller")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
}

func TestCreatePayment_EdgeFunctionPath(t *testing.T) {
	hs := newHarness(t)

	w := hs.do(http.MethodPost, "/functions/v1/create-payment", "good", phoneBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCreatePayment_Delivery(t *testing.T) {
	hs := newHarness(t)

	body := `{"items":[{"productId":1,"unitPrice":"5000","quantity":1}],"paymentMethod":"delivery"}`
	w := hs.do(http.MethodPost, "/payments", "good", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if _, ok := resp["url"]; ok {
		t.Fatalf("delivery must not return a url: %s", w.Body.String())
	}
	if resp["fulfillmentMethod"] != "delivery" || resp["status"] != "pending" {
		t.Fatalf("unexpected confirmation: %s", w.Body.String())
	}
	if hs.gw.tokenCalls != 0 {
		t.Fatalf("delivery called the gateway %d times", hs.gw.tokenCalls)
	}
}

func TestCreatePayment_Unauthenticated(t *testing.T) {
	hs := newHarness(t)

	for _, tok := range []string{"", "forged"} {
		w := hs.do(http.MethodPost, "/payments", tok, phoneBody)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("token=%q status=%d body=%s", tok, w.Code, w.Body.String())
		}
		if msg := errorBody(t, w); msg != "user not authenticated" {
			t.Fatalf("error=%q", msg)
		}
	}
	if hs.gw.tokenCalls != 0 || hs.repo.lastOrder != nil {
		t.Fatalf("unauthenticated request reached the gateway or the db")
	}
}

func TestCreatePayment_AuthServiceDown(t *testing.T) {
	hs := newHarness(t)
	svc := &payment.Service{Orders: hs.repo, Gateway: hs.gw, Currency: "XAF"}
	h := newRouter(svc, &stubVerifier{err: fmt.Errorf("dial tcp: refused")}, false)

	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(phoneBody))
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCreatePayment_BadRequests(t *testing.T) {
	hs := newHarness(t)

	cases := map[string]string{
		"malformed":  `{"items":`,
		"empty cart": `{"items":[],"paymentMethod":"delivery"}`,
		"mismatch":   `{"items":[{"productId":1,"unitPrice":"5000","quantity":2}],"totalAmount":1,"paymentMethod":"delivery"}`,
		"no phone":   `{"items":[{"productId":1,"unitPrice":"5000","quantity":2}],"paymentMethod":"phone"}`,
	}
	for name, body := range cases {
		w := hs.do(http.MethodPost, "/payments", "good", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d body=%s", name, w.Code, w.Body.String())
		}
	}
}

func TestCreatePayment_GatewayErrors(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*stubGateway)
		want  string
	}{
		{"not configured", func(g *stubGateway) { g.configured = false }, "payment service configuration error"},
		{"token", func(g *stubGateway) { g.tokenErr = gateway.ErrTokenExchange }, "failed to authenticate with payment service"},
		{"collect", func(g *stubGateway) { g.collectErr = gateway.ErrPaymentCreation }, "failed to create payment"},
	}
	for _, tc := range cases {
		hs := newHarness(t)
		tc.setup(hs.gw)

		w := hs.do(http.MethodPost, "/payments", "good", phoneBody)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%s: status=%d body=%s", tc.name, w.Code, w.Body.String())
		}
		if msg := errorBody(t, w); msg != tc.want {
			t.Fatalf("%s: error=%q want %q", tc.name, msg, tc.want)
		}
		if hs.repo.lastOrder != nil {
			t.Fatalf("%s: order stored after gateway failure", tc.name)
		}
	}
}

func TestCreatePayment_OnlineSurvivesLostWrite(t *testing.T) {
	hs := newHarness(t)
	hs.repo.failWrite = true

	w := hs.do(http.MethodPost, "/payments", "good", phoneBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCreatePayment_DeliveryLostWriteFails(t *testing.T) {
	hs := newHarness(t)
	hs.repo.failWrite = true

	body := `{"items":[{"productId":1,"unitPrice":"5000","quantity":1}],"paymentMethod":"delivery"}`
	w := hs.do(http.MethodPost, "/payments", "good", body)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestPreflight(t *testing.T) {
	hs := newHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/payments", nil)
	req.Header.Set("Origin", "https://afrimarket.cm")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization, x-client-info, apikey, content-type")
	w := httptest.NewRecorder()
	hs.h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("preflight body=%q", w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin=%q", got)
	}
}

func TestGetOrder(t *testing.T) {
	hs := newHarness(t)
	if w := hs.do(http.MethodPost, "/payments", "good", phoneBody); w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	id := hs.repo.lastOrder.ID

	w := hs.do(http.MethodGet, "/orders/"+id, "good", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	w = hs.do(http.MethodGet, "/orders/"+uuid.NewString(), "good", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s (want 404)", w.Code, w.Body.String())
	}

	// someone else's order is reported as missing
	hs.repo.lastOrder.UserID = uuid.NewString()
	w = hs.do(http.MethodGet, "/orders/"+id, "good", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s (want 404)", w.Code, w.Body.String())
	}
}

func TestListOrders(t *testing.T) {
	hs := newHarness(t)
	if w := hs.do(http.MethodPost, "/payments", "good", phoneBody); w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	w := hs.do(http.MethodGet, "/orders?limit=500&offset=-3", "good", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var list order.ListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if list.Limit != 20 || list.Offset != 0 || len(list.Items) != 1 {
		t.Fatalf("limit=%d offset=%d len=%d", list.Limit, list.Offset, len(list.Items))
	}
}

func signed(t *testing.T, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iat": time.Now().Unix()}).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestWebhook(t *testing.T) {
	hs := newHarness(t)
	if w := hs.do(http.MethodPost, "/payments", "good", phoneBody); w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	ref := hs.repo.lastOrder.PaymentReference

	q := url.Values{"status": {"SUCCESSFUL"}, "external_reference": {ref}, "signature": {signed(t, "other")}}
	w := hs.do(http.MethodGet, "/webhooks/campay?"+q.Encode(), "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: status=%d body=%s", w.Code, w.Body.String())
	}

	q.Set("signature", signed(t, "whk"))
	q.Set("amount", "1")
	w = hs.do(http.MethodGet, "/webhooks/campay?"+q.Encode(), "", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("wrong amount: status=%d body=%s", w.Code, w.Body.String())
	}

	q.Del("amount")
	w = hs.do(http.MethodGet, "/webhooks/campay?"+q.Encode(), "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if hs.repo.lastOrder.Status != order.StatusCompleted {
		t.Fatalf("status=%s, want completed", hs.repo.lastOrder.Status)
	}

	body := fmt.Sprintf(`{"status":"FAILED","external_reference":%q,"signature":%q}`, ref, signed(t, "whk"))
	w = hs.do(http.MethodPost, "/webhooks/campay", "", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("settled order changed: status=%d body=%s", w.Code, w.Body.String())
	}

	q.Set("external_reference", "order_unknown_1")
	w = hs.do(http.MethodGet, "/webhooks/campay?"+q.Encode(), "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown reference: status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	hs := newHarness(t)
	w := hs.do(http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func init() {
	gin.SetMode(gin.TestMode)
	gin.DefaultWriter = io.Discard
	zerolog.SetGlobalLevel(zerolog.Disabled)
}
