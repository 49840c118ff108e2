package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"verigate/internal/authorizing"
	authMetrics "verigate/internal/authorizing/metrics"
	"verigate/internal/keri"
	"verigate/internal/platform/config"
	"verigate/internal/platform/httpserver"
	"verigate/internal/platform/logger"
	"verigate/internal/platform/storage"
	"verigate/internal/reporting"
	reportMetrics "verigate/internal/reporting/metrics"
	httptransport "verigate/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Info("initializing verigate",
		"addr", cfg.Addr,
		"db_path", cfg.DBPath,
		"leis", len(cfg.LEIs),
		"auth_timeout", cfg.AuthTimeout,
		"sweep_interval", cfg.SweepInterval,
	)

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Error("opening store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// The in-memory keeper stands in for the external key-state and
	// credential infrastructure in local deployments.
	keeper := keri.NewKeeper()

	authorizer, err := authorizing.New(store, keeper, keeper, cfg.LEIs,
		authorizing.WithTimeout(cfg.AuthTimeout),
		authorizing.WithInterval(cfg.SweepInterval),
		authorizing.WithLogger(log),
		authorizing.WithMetrics(authMetrics.New(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		log.Error("initializing authorizer", "error", err)
		os.Exit(1)
	}

	rm := reportMetrics.New(prometheus.DefaultRegisterer)
	filer := reporting.NewFiler(store,
		reporting.WithFilerLogger(log),
		reporting.WithFilerMetrics(rm),
	)
	verifier, err := reporting.NewVerifier(filer, keeper,
		reporting.WithVerifierInterval(cfg.SweepInterval),
		reporting.WithVerifierLogger(log),
		reporting.WithVerifierMetrics(rm),
	)
	if err != nil {
		log.Error("initializing verifier", "error", err)
		os.Exit(1)
	}

	handler := httptransport.NewHandler(keeper, keeper, authorizer, filer, prometheus.DefaultGatherer, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return authorizer.Start(ctx) })
	g.Go(func() error { return verifier.Start(ctx) })
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("service terminated", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
