// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package app wires the proxy binary together: the client-facing request
// pipeline, the loopback ingestion API, and health/metrics endpoints. The
// cmd/<binary>/app layout keeps the command wiring separate from main.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/qwqVictor/oss-fe-proxy/pkg/apikey"
	"github.com/qwqVictor/oss-fe-proxy/pkg/cache"
	"github.com/qwqVictor/oss-fe-proxy/pkg/ingestion"
	"github.com/qwqVictor/oss-fe-proxy/pkg/logger"
	"github.com/qwqVictor/oss-fe-proxy/pkg/metrics"
	"github.com/qwqVictor/oss-fe-proxy/pkg/proxy"
	"github.com/qwqVictor/oss-fe-proxy/pkg/signer"
)

// Options holds the proxy binary's configuration, bound from flags and the
// environment variables the deployment manifests set.
type Options struct {
	ListenAddress    string
	IngestionAddress string
	APIKeyFile       string

	LogLevel      string
	LogFormat     string
	AccessLogFile string

	ShutdownGracePeriod time.Duration
}

func bindOptions(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.String("listen-address", ":8080", "client-facing HTTP listen address")
	flags.String("ingestion-address", "127.0.0.1:8081", "loopback ingestion API listen address")
	flags.String("api-key-file", "/var/run/ossfe/api-key", "path the ingestion API key is written to and read from")
	flags.String("log-level", "info", "log level: debug, info, error")
	flags.String("log-format", "text", "log format: text, json")
	flags.String("access-log-file", "", "optional file to append structured access log lines to")
	flags.Duration("shutdown-grace-period", 15*time.Second, "time allowed for in-flight requests to drain on shutdown")

	_ = v.BindPFlag("listen-address", flags.Lookup("listen-address"))
	_ = v.BindPFlag("ingestion-address", flags.Lookup("ingestion-address"))
	_ = v.BindPFlag("api-key-file", flags.Lookup("api-key-file"))
	_ = v.BindPFlag("log-level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log-format", flags.Lookup("log-format"))
	_ = v.BindPFlag("access-log-file", flags.Lookup("access-log-file"))
	_ = v.BindPFlag("shutdown-grace-period", flags.Lookup("shutdown-grace-period"))

	_ = v.BindEnv("log-level", "LOG_LEVEL")
	_ = v.BindEnv("access-log-file", "ACCESS_LOG_FILE")
}

func (o *Options) load(v *viper.Viper) {
	o.ListenAddress = v.GetString("listen-address")
	o.IngestionAddress = v.GetString("ingestion-address")
	o.APIKeyFile = v.GetString("api-key-file")
	o.LogLevel = v.GetString("log-level")
	o.LogFormat = v.GetString("log-format")
	o.AccessLogFile = v.GetString("access-log-file")
	o.ShutdownGracePeriod = v.GetDuration("shutdown-grace-period")
}

// NewCommand builds the `proxy` cobra command.
func NewCommand() *cobra.Command {
	v := viper.New()
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serves frontend assets out of S3-compatible object stores, routed by Route/Upstream custom resources.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.load(v)
			return run(cmd.Context(), opts)
		},
	}

	bindOptions(cmd, v)
	return cmd
}

func run(ctx context.Context, opts *Options) error {
	log, err := logger.NewZapLogger(logger.Level(opts.LogLevel), logger.Format(opts.LogFormat))
	if err != nil {
		return fmt.Errorf("constructing logger: %w", err)
	}

	accessLog, err := logger.NewAccessLogger(opts.AccessLogFile, log)
	if err != nil {
		return fmt.Errorf("constructing access logger: %w", err)
	}

	key, err := apikey.Generate()
	if err != nil {
		return fmt.Errorf("generating ingestion api key: %w", err)
	}
	if err := apikey.WriteFile(opts.APIKeyFile, key); err != nil {
		return fmt.Errorf("persisting ingestion api key: %w", err)
	}

	routingCache := cache.New()
	metricsRegistry := metrics.NewRegistry()
	requestHandler := proxy.New(routingCache, signer.New(), metricsRegistry, accessLog)
	ingestionServer := ingestion.New(routingCache, key, log)

	publicRouter := chi.NewRouter()
	publicRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	}))
	publicRouter.Get("/health", routingCache.ReadinessHandler())
	publicRouter.Handle("/metrics", metricsRegistry.Handler(metrics.NewStateCollector(func() metrics.State {
		status := routingCache.Status()
		return metrics.State{
			Ready:     status.Ready,
			Routes:    status.RouteCount,
			Upstreams: status.UpstreamCount,
			Secrets:   status.SecretCount,
		}
	})))
	publicRouter.Handle("/*", requestHandler)

	publicServer := &http.Server{Addr: opts.ListenAddress, Handler: publicRouter}
	ingestionServerHTTP := &http.Server{Addr: opts.IngestionAddress, Handler: ingestionServer.Router()}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		log.Info("serving client-facing HTTP", "address", opts.ListenAddress)
		if err := publicServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("public server: %w", err)
		}
	}()
	go func() {
		log.Info("serving loopback ingestion API", "address", opts.IngestionAddress)
		if err := ingestionServerHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("ingestion server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info("shutting down", "grace_period", opts.ShutdownGracePeriod)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownGracePeriod)
	defer cancel()

	_ = publicServer.Shutdown(shutdownCtx)
	_ = ingestionServerHTTP.Shutdown(shutdownCtx)
	return nil
}
