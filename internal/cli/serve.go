package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"jobmate/swipe-service/internal/events"
	"jobmate/swipe-service/internal/grpcserver"
	"jobmate/swipe-service/internal/httpapi"
	"jobmate/swipe-service/internal/scheduler"
)

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC servers and the expiry scheduler",
		Long: `Start the swipe service.

HTTP serves the seeker, employer and admin routes plus /health and /metrics.
gRPC exposes GetFeed, Decide and ToggleSave with a JSON codec.
When Redis is configured, events are published on their typed channels.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
	cmd.Flags().StringP("http-port", "p", "", "HTTP port (overrides config)")
	cmd.Flags().String("grpc-port", "", "gRPC port, empty disables gRPC (overrides config)")
	cmd.Flags().String("store", "", "store driver: postgres, sqlite or memory (overrides config)")
	cmd.Flags().Bool("migrate", false, "apply the embedded PostgreSQL schema before serving")
	a.bindFlag(cmd, "server.httpPort", "http-port")
	a.bindFlag(cmd, "server.grpcPort", "grpc-port")
	a.bindFlag(cmd, "store.driver", "store")
	a.bindFlag(cmd, "store.migrate", "migrate")
	return cmd
}

func (a *app) runServe(parent context.Context) error {
	cfg, log := a.cfg, a.log
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storage ─────────────────────────────────────────────────────────────
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	// ── Events ──────────────────────────────────────────────────────────────
	pub, rdb, err := openEvents(ctx, cfg, log)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	svc := newService(st, pub, cfg, log)

	// ── Metrics ─────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "swipe",
			Name:      "store_healthy",
			Help:      "1 while the storage circuit breaker is closed.",
		}, func() float64 {
			if st.Healthy() {
				return 1
			}
			return 0
		}),
	)

	metrics := httpapi.NewMetrics(reg)
	if rdb != nil {
		go func() {
			err := events.Subscribe(ctx, rdb, log, metrics.EventReceived,
				events.JobDecided, events.FeedStale, events.JobModerated,
				events.ApplicationCreated, events.ApplicationMoved, events.JobsExpired)
			if err != nil {
				log.Warn("event subscription ended", zap.Error(err))
			}
		}()
	}

	// ── HTTP server ─────────────────────────────────────────────────────────
	opts := httpapi.Options{
		Metrics: metrics,
		Healthy: st.Healthy,
		Version: Version,
	}
	if cfg.RateLimit.Enabled {
		opts.Limiter = httpapi.NewLimiterManager(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, 10*time.Minute, log)
		defer opts.Limiter.Close()
	}
	mux := http.NewServeMux()
	httpapi.NewHandler(svc, log, opts).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.HTTPPort,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errc := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	// ── gRPC server ─────────────────────────────────────────────────────────
	var gs *grpc.Server
	if cfg.Server.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		gs = grpc.NewServer(grpc.UnaryInterceptor(grpcserver.LoggingInterceptor(log)))
		grpcserver.Register(gs, grpcserver.NewServer(svc, log))
		go func() {
			log.Info("grpc listening", zap.String("addr", lis.Addr().String()))
			if err := gs.Serve(lis); err != nil {
				errc <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	// ── Scheduler ───────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(svc, cfg.Scheduler.ExpiryInterval, log)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	// ── Graceful shutdown ───────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		log.Error("server failed", zap.Error(err))
		stop()
		shutdown(srv, gs, cfg.Server.ShutdownTimeout, log)
		return err
	}
	shutdown(srv, gs, cfg.Server.ShutdownTimeout, log)
	log.Info("stopped")
	return nil
}

func shutdown(srv *http.Server, gs *grpc.Server, timeout time.Duration, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if gs != nil {
		gs.GracefulStop()
	}
}
