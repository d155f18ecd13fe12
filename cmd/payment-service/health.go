package main

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "afrimarket.payment"

// newHealthServer exposes the standard gRPC health service for the
// orchestrator. Both the overall and the named service start NOT_SERVING.
func newHealthServer() (*grpc.Server, *health.Server) {
	s := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return s, hs
}

func serveHealth(s *grpc.Server, lis net.Listener) {
	log.Info().Str("addr", lis.Addr().String()).Msg("[payment-service] grpc health listening")
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		log.Error().Err(err).Msg("[payment-service] grpc health stopped")
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// watchDB flips the health status with database reachability until ctx ends.
func watchDB(ctx context.Context, hs *health.Server, db pinger, every time.Duration) {
	set := func(ok bool) {
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if !ok {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(serviceName, status)
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.Ping(pctx)
		cancel()
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("[payment-service] db ping failed")
		}
		set(err == nil)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
