package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/onboard/internal/api"
	"github.com/sells-group/onboard/internal/callback"
	"github.com/sells-group/onboard/internal/enrich"
	"github.com/sells-group/onboard/internal/jobstore"
	"github.com/sells-group/onboard/internal/metrics"
	"github.com/sells-group/onboard/internal/onboarding"
	"github.com/sells-group/onboard/internal/resilience"
)

const shutdownTimeout = 10 * time.Second

var (
	servePort    int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the onboarding API server and enrichment dispatcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "serve: open store")
		}
		defer st.Close() //nolint:errcheck

		if serveMigrate {
			if err := st.Migrate(ctx); err != nil {
				return err
			}
		}

		metrics.MustRegister()

		jobs := jobstore.New(
			jobstore.WithTTL(cfg.Jobs.TTL()),
			jobstore.WithSweepInterval(cfg.Jobs.SweepInterval()),
		)
		policy := resilience.DefaultPolicy().WithMaxAttempts(cfg.Worker.MaxAttempts)
		policy.OnRetry = resilience.RetryLogger("worker", "dispatch")
		dispatcher := enrich.NewDispatcher(cfg.Worker.WebhookURL,
			enrich.WithSecret(cfg.Worker.Secret),
			enrich.WithQueueSize(cfg.Worker.QueueSize),
			enrich.WithWorkers(cfg.Worker.Workers),
			enrich.WithRate(cfg.Worker.RatePerSec),
			enrich.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Worker.TimeoutSecs) * time.Second}),
			enrich.WithPolicy(policy),
		)
		gateway := enrich.NewGateway(st, jobs, dispatcher, cfg.Server.BaseURL)
		svc := onboarding.NewService(st, jobs, gateway)

		server := api.NewServer(svc, callback.NewReceiver(st, jobs),
			api.WithCallbackSecret(cfg.Worker.CallbackSecret),
			api.WithCORSOrigins(cfg.Server.CORSOrigins...),
		)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			jobs.Run(gctx)
			return nil
		})
		g.Go(func() error {
			return dispatcher.Run(gctx)
		})
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "run schema migration before serving")
	rootCmd.AddCommand(serveCmd)
}
