package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/chronoslack/chronoslack/pkg/cli/config"
	httpctrl "github.com/chronoslack/chronoslack/pkg/controller/http"
	"github.com/chronoslack/chronoslack/pkg/service/token"
	"github.com/chronoslack/chronoslack/pkg/service/worker"
	"github.com/chronoslack/chronoslack/pkg/usecase"
	"github.com/chronoslack/chronoslack/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var baseURL string
	var tickInterval time.Duration
	var repoCfg config.Repository
	var slackCfg config.Slack

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("CHRONOSLACK_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "Base URL for the application (e.g., https://your-domain.com)",
			Sources:     cli.EnvVars("CHRONOSLACK_BASE_URL"),
			Destination: &baseURL,
		},
		&cli.DurationFlag{
			Name:        "tick-interval",
			Usage:       "Interval between delivery ticks",
			Value:       worker.DefaultInterval,
			Sources:     cli.EnvVars("CHRONOSLACK_TICK_INTERVAL"),
			Destination: &tickInterval,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server and delivery worker",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if baseURL == "" {
				return goerr.New("base-url is required for the OAuth callback")
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			slackSvc, err := slackCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure Slack service")
			}

			tokens := token.New(repo, slackSvc)

			uc := usecase.New(repo, slackSvc, tokens, usecase.AuthConfig{
				ClientID:    slackCfg.ClientID(),
				CallbackURL: baseURL + "/api/auth/callback",
			})

			deliveryWorker := worker.New(repo, tokens, slackSvc,
				worker.WithInterval(tickInterval))
			if err := deliveryWorker.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start delivery worker")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				deliveryWorker.Stop()
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				// Stop the worker first so no new deliveries begin
				deliveryWorker.Stop()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
