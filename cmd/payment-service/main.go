// @title        AfriMarket Payment Service
// @version      1.0
// @description  Starts Campay checkouts and pay-on-delivery orders for AfriMarket carts.
// @BasePath     /
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MikeMC777/afrimarket/internal/auth"
	"github.com/MikeMC777/afrimarket/internal/catalog"
	"github.com/MikeMC777/afrimarket/internal/config"
	"github.com/MikeMC777/afrimarket/internal/db"
	"github.com/MikeMC777/afrimarket/internal/events"
	"github.com/MikeMC777/afrimarket/internal/gateway"
	"github.com/MikeMC777/afrimarket/internal/httpx"
	"github.com/MikeMC777/afrimarket/internal/idempotency"
	"github.com/MikeMC777/afrimarket/internal/order"
	"github.com/MikeMC777/afrimarket/internal/payment"
)

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	if os.Getenv("LOG_FORMAT") == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.OrderDSN); err != nil {
			log.Fatal().Err(err).Msg("[payment-service] migrations failed")
		}
	}
	pool, err := db.Connect(ctx, cfg.OrderDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("[payment-service] db connect failed")
	}
	defer pool.Close()

	if !cfg.Gateway.Configured() {
		log.Warn().Msg("[payment-service] Campay credentials missing, only pay on delivery will work")
	}
	svc := &payment.Service{
		Orders:        order.NewPGRepo(pool),
		Gateway:       gateway.NewClient(cfg.Gateway),
		Events:        events.Nop{},
		Currency:      cfg.Currency,
		FallbackPhone: cfg.Gateway.FallbackPhone,
		PublicBaseURL: cfg.PublicBaseURL,
		WebhookURL:    cfg.Gateway.WebhookURL,
		WebhookKey:    cfg.Gateway.WebhookKey,
	}
	if cfg.VerifyPrices {
		svc.Catalog = catalog.NewPGRepo(pool)
	}

	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("[payment-service] redis unreachable, idempotency degrades open")
		}
		svc.Idem = idempotency.NewRedisStore(rc, cfg.IdempotencyTTL)
	}

	if cfg.RabbitURL != "" {
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatal().Err(err).Msg("[payment-service] rabbitmq dial failed")
		}
		defer conn.Close()
		pub, err := events.NewRabbitPublisher(conn)
		if err != nil {
			log.Fatal().Err(err).Msg("[payment-service] rabbitmq setup failed")
		}
		defer pub.Close()
		svc.Events = pub
	}

	verifier := auth.NewBaaSVerifier(cfg.BaaSURL, cfg.BaaSAnonKey, cfg.AuthTimeout)
	r := newRouter(svc, verifier, cfg.Gateway.WebhookKey != "")

	srv := &http.Server{
		Addr:              cfg.PaymentSvcAddr,
		Handler:           httpx.CORS().Handler(r),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// covers token exchange plus collect at their configured timeout
		WriteTimeout: 2*cfg.Gateway.Timeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	gs, hs := newHealthServer()
	lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCHealthAddr).Msg("[payment-service] grpc listen failed")
	}
	go serveHealth(gs, lis)
	go watchDB(ctx, hs, pool, 15*time.Second)

	go func() {
		log.Info().Str("addr", cfg.PaymentSvcAddr).Msg("[payment-service] listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("[payment-service] server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("[payment-service] shutting down")
	hs.Shutdown()
	gs.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("[payment-service] shutdown")
	}
}
