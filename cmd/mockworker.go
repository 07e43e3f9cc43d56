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

	"github.com/sells-group/onboard/internal/mockworker"
)

var mockWorkerCmd = &cobra.Command{
	Use:   "mock-worker",
	Short: "Run a development enrichment worker that answers with canned data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("mock-worker"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w := mockworker.New(
			mockworker.WithDelay(time.Duration(cfg.MockWorker.DelayMS)*time.Millisecond),
			mockworker.WithFailMessage(cfg.MockWorker.FailMessage),
			mockworker.WithToken(cfg.Worker.Secret),
			mockworker.WithCallbackSecret(cfg.Worker.CallbackSecret),
		)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.MockWorker.Port),
			Handler:           w.Handler(ctx),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting mock worker",
			zap.Int("port", cfg.MockWorker.Port),
			zap.String("path", mockworker.EnrichPath),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "mock worker listen")
		}
		w.Wait()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mockWorkerCmd)
}
