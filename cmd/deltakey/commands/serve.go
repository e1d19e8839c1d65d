package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/nainya/deltakey/internal/metrics"
	"github.com/nainya/deltakey/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC, HTTP and metrics servers",
		Long: `Serve the identification engine over gRPC and a JSON HTTP API, with
Prometheus metrics, health checks and pprof on a separate port. SIGINT or
SIGTERM stops all three gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	f := cmd.Flags()
	f.Int("grpc-port", 50051, "gRPC port")
	f.Int("http-port", 5001, "HTTP API port")
	f.Int("metrics-port", 9090, "Metrics, health and pprof port")
	_ = a.v.BindPFlag("server.grpc_port", f.Lookup("grpc-port"))
	_ = a.v.BindPFlag("server.http_port", f.Lookup("http-port"))
	_ = a.v.BindPFlag("server.metrics_port", f.Lookup("metrics-port"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg.Server
	m := metrics.NewMetrics()

	svc, store, err := a.openService(ctx, m)
	if err != nil {
		return err
	}
	defer store.Close()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GrpcPort))
	if err != nil {
		return fmt.Errorf("failed to listen on :%d: %w", cfg.GrpcPort, err)
	}

	grpcServer := server.NewGRPCServer(svc, a.log, m)
	httpServer := server.NewHTTPServer(svc, cfg.HTTPPort, cfg.RateLimit, cfg.RateBurst, a.log, m)
	obsServer := server.NewObservabilityServer(cfg.MetricsPort, m, svc.Ready, a.log)

	a.log.LogServerStart("grpc", cfg.GrpcPort, store.Path())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.LogServerReady("grpc", cfg.GrpcPort)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.log.LogServerReady("http", cfg.HTTPPort)
		return httpServer.Start()
	})
	g.Go(obsServer.Start)

	g.Go(func() error {
		<-gctx.Done()
		a.log.LogServerShutdown("all")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}

		return errors.Join(httpServer.Shutdown(shutdownCtx), obsServer.Shutdown(shutdownCtx))
	})

	return g.Wait()
}
