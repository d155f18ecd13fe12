package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/MikeMC777/afrimarket/docs"
	"github.com/MikeMC777/afrimarket/internal/auth"
	"github.com/MikeMC777/afrimarket/internal/gateway"
	"github.com/MikeMC777/afrimarket/internal/httpx"
	"github.com/MikeMC777/afrimarket/internal/order"
	"github.com/MikeMC777/afrimarket/internal/payment"
)

func newRouter(svc *payment.Service, v auth.Verifier, webhooks bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authed := r.Group("/", httpx.Authenticate(v))
	authed.POST("/payments", createPaymentHandler(svc))
	// path used by browsers built against the hosted edge function
	authed.POST("/functions/v1/create-payment", createPaymentHandler(svc))
	authed.GET("/orders", listOrdersHandler(svc))
	authed.GET("/orders/:id", getOrderHandler(svc))

	if webhooks {
		r.GET("/webhooks/campay", webhookHandler(svc))
		r.POST("/webhooks/campay", webhookHandler(svc))
	}
	return r
}

// fail maps service errors onto status codes.
func fail(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		status, msg = http.StatusUnauthorized, auth.ErrUnauthenticated.Error()
	case errors.Is(err, payment.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, payment.ErrPriceMismatch), errors.Is(err, payment.ErrInProgress),
		errors.Is(err, payment.ErrAmountMismatch):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, order.ErrInvalidTransition):
		status, msg = http.StatusConflict, order.ErrInvalidTransition.Error()
	case errors.Is(err, order.ErrNotFound):
		status, msg = http.StatusNotFound, order.ErrNotFound.Error()
	case errors.Is(err, gateway.ErrBadSignature):
		status, msg = http.StatusUnauthorized, gateway.ErrBadSignature.Error()
	case errors.Is(err, gateway.ErrNotConfigured):
		msg = gateway.ErrNotConfigured.Error()
	case errors.Is(err, gateway.ErrTokenExchange):
		msg = gateway.ErrTokenExchange.Error()
	case errors.Is(err, gateway.ErrPaymentCreation):
		msg = gateway.ErrPaymentCreation.Error()
	case errors.Is(err, payment.ErrPersist):
		msg = payment.ErrPersist.Error()
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("rid", httpx.RID(c)).Msg("[payment-service] request failed")
	}
	httpx.Fail(c, status, msg)
}

// createPaymentHandler godoc
// @Summary      Start a checkout
// @Description  Creates a Campay collection and returns its hosted URL, or records a pay-on-delivery order.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        Authorization    header  string                      true   "Bearer access token"
// @Param        Idempotency-Key  header  string                      false  "Client idempotency key"
// @Param        body             body    order.CreatePaymentRequest  true   "Cart snapshot and payment method"
// @Success      200  {object}  order.CreatePaymentResponse
// @Failure      400  {object}  httpx.HTTPError
// @Failure      401  {object}  httpx.HTTPError
// @Failure      409  {object}  httpx.HTTPError
// @Failure      500  {object}  httpx.HTTPError
// @Router       /payments [post]
func createPaymentHandler(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.Request
		if err := c.ShouldBindJSON(&req.CreatePaymentRequest); err != nil {
			httpx.Fail(c, http.StatusBadRequest, "invalid json")
			return
		}
		req.Origin = c.GetHeader("Origin")
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")

		resp, err := svc.Initiate(c.Request.Context(), httpx.User(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		if resp.Replayed {
			c.Header("Idempotent-Replayed", "true")
		}
		c.JSON(http.StatusOK, resp)
	}
}

// listOrdersHandler godoc
// @Summary      List my orders
// @Tags         orders
// @Produce      json
// @Param        Authorization  header  string  true   "Bearer access token"
// @Param        limit          query   int     false  "Page size (default 20, max 100)"
// @Param        offset         query   int     false  "Offset"
// @Success      200  {object}  order.ListResponse
// @Failure      401  {object}  httpx.HTTPError
// @Router       /orders [get]
func listOrdersHandler(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		if offset < 0 {
			offset = 0
		}
		items, err := svc.ListOrders(c.Request.Context(), httpx.User(c), limit, offset)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, order.ListResponse{Limit: limit, Offset: offset, Items: items})
	}
}

// getOrderHandler godoc
// @Summary      Get one of my orders
// @Tags         orders
// @Produce      json
// @Param        Authorization  header  string  true  "Bearer access token"
// @Param        id             path    string  true  "Order ID"
// @Success      200  {object}  order.Order
// @Failure      404  {object}  httpx.HTTPError
// @Router       /orders/{id} [get]
func getOrderHandler(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.GetOrder(c.Request.Context(), httpx.User(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// webhookHandler godoc
// @Summary      Campay payment notification
// @Tags         webhooks
// @Param        status              query  string  true  "SUCCESSFUL, FAILED or PENDING"
// @Param        external_reference  query  string  true  "Reference sent with the collection"
// @Param        amount              query  string  false "Collected amount in XAF"
// @Param        signature           query  string  true  "HS256 token signed with the webhook key"
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  httpx.HTTPError
// @Failure      404  {object}  httpx.HTTPError
// @Failure      409  {object}  httpx.HTTPError
// @Router       /webhooks/campay [get]
func webhookHandler(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var wh gateway.Webhook
		if err := c.ShouldBind(&wh); err != nil {
			httpx.Fail(c, http.StatusBadRequest, "invalid notification")
			return
		}
		o, err := svc.Settle(c.Request.Context(), wh)
		if errors.Is(err, payment.ErrIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("reference", wh.ExternalReference).Msg("[webhook] rejected")
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": string(o.Status), "orderId": o.ID})
	}
}
