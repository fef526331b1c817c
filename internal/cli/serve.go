package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/thorwhalen/pacing/internal/app"
	pacinghttp "github.com/thorwhalen/pacing/internal/http"
	"github.com/thorwhalen/pacing/internal/models"
	"github.com/thorwhalen/pacing/internal/observability"
	"github.com/thorwhalen/pacing/internal/service/session"
)

// SessionServiceName is the gRPC health service that reports SERVING while a
// session is active.
const SessionServiceName = "pacing.Session"

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, metrics and gRPC health",
		RunE:  runServe,
	}
	RootCmd.AddCommand(cmd)
}

// healthReporter mirrors the session state into the gRPC health server.
type healthReporter struct {
	hs *health.Server
}

func (h healthReporter) SessionStarted(models.SessionContext) {
	h.hs.SetServingStatus(SessionServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
}

func (h healthReporter) SessionEnded(models.SessionContext, session.Retention, int, time.Duration) {
	h.hs.SetServingStatus(SessionServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

func (healthReporter) EventDispatched(string, models.TranscriptionEvent, []session.Outcome) {}
func (healthReporter) Fault(error)                                                          {}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(os.Stdout)
	if err != nil {
		return err
	}

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(SessionServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	application, err := app.New(cfg, app.WithObserver(healthReporter{hs: healthServer}))
	if err != nil {
		return err
	}
	if err := application.Start(); err != nil {
		return err
	}

	// gRPC health + reflection
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(application.Metrics)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(application.Metrics)),
	)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(grpcServer)
	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC health server started")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC serve failed")
		}
	}()

	// Metrics
	obsServer := observability.NewServer(":"+cfg.Service.MetricsPort, application.Registry, application.Ready)
	obsServer.Start()

	// API
	apiServer := &http.Server{
		Addr:         ":" + cfg.Service.HTTPPort,
		Handler:      pacinghttp.NewRouter(application),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", apiServer.Addr).Msg("HTTP API started")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP API server error")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("Shutting down")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	grpcServer.GracefulStop()
	return errors.Join(errs...)
}
