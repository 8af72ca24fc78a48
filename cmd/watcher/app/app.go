// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package app wires the watcher binary together: the Route/Upstream/Secret
// reflector, its push client to the proxy's loopback ingestion API, and the
// optional admission webhook server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	"k8s.io/utils/clock"
	crwebhook "sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	ossadmission "github.com/qwqVictor/oss-fe-proxy/pkg/admissioncontroller/webhook/admission"
	ossfev1 "github.com/qwqVictor/oss-fe-proxy/pkg/apis/ossfe/v1"
	"github.com/qwqVictor/oss-fe-proxy/pkg/apikey"
	"github.com/qwqVictor/oss-fe-proxy/pkg/healthz"
	"github.com/qwqVictor/oss-fe-proxy/pkg/ingestion"
	"github.com/qwqVictor/oss-fe-proxy/pkg/logger"
	"github.com/qwqVictor/oss-fe-proxy/pkg/watcher"
)

// Options holds the watcher binary's configuration.
type Options struct {
	Kubeconfig           string
	PodNamespace         string
	WatchNamespace       string
	SecretResyncInterval time.Duration

	IngestionURL string
	APIKeyFile   string

	LogLevel  string
	LogFormat string

	WebhookEnabled  bool
	WebhookPort     int
	WebhookCertPath string
	WebhookKeyPath  string

	HealthAddress string
}

func defaultKubeconfig() string {
	if home := homedir.HomeDir(); home != "" {
		return home + "/.kube/config"
	}
	return ""
}

func bindOptions(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.String("kubeconfig", defaultKubeconfig(), "path to kubeconfig; empty uses in-cluster config")
	flags.String("pod-namespace", "", "namespace this pod runs in")
	flags.String("watch-namespace", "", "restrict watched Routes/Upstreams to one namespace; empty watches all")
	flags.Duration("secret-resync-interval", 10*time.Minute, "interval to re-push every referenced secret; 0 disables")
	flags.String("ingestion-url", "http://127.0.0.1:8081", "proxy loopback ingestion API base URL")
	flags.String("api-key-file", "/var/run/ossfe/api-key", "path the shared ingestion API key is read from")
	flags.String("log-level", "info", "log level: debug, info, error")
	flags.String("log-format", "text", "log format: text, json")
	flags.Bool("webhook-enabled", true, "serve the admission validating webhook")
	flags.Int("webhook-port", 8443, "admission webhook TLS port")
	flags.String("webhook-cert-path", "/tmp/webhook-certs/tls.crt", "admission webhook TLS certificate path")
	flags.String("webhook-key-path", "/tmp/webhook-certs/tls.key", "admission webhook TLS key path")
	flags.String("health-address", ":8082", "liveness probe listen address")

	for _, name := range []string{
		"kubeconfig", "pod-namespace", "watch-namespace", "secret-resync-interval",
		"ingestion-url", "api-key-file", "log-level", "log-format",
		"webhook-enabled", "webhook-port", "webhook-cert-path", "webhook-key-path", "health-address",
	} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	_ = v.BindEnv("pod-namespace", "POD_NAMESPACE")
	_ = v.BindEnv("log-level", "LOG_LEVEL")
	_ = v.BindEnv("webhook-enabled", "WEBHOOK_ENABLED")
	_ = v.BindEnv("webhook-port", "WEBHOOK_PORT")
	_ = v.BindEnv("webhook-cert-path", "WEBHOOK_CERT_PATH")
	_ = v.BindEnv("webhook-key-path", "WEBHOOK_KEY_PATH")
}

func loadOptions(v *viper.Viper) *Options {
	return &Options{
		Kubeconfig:           v.GetString("kubeconfig"),
		PodNamespace:         v.GetString("pod-namespace"),
		WatchNamespace:       v.GetString("watch-namespace"),
		SecretResyncInterval: v.GetDuration("secret-resync-interval"),
		IngestionURL:         v.GetString("ingestion-url"),
		APIKeyFile:           v.GetString("api-key-file"),
		LogLevel:             v.GetString("log-level"),
		LogFormat:            v.GetString("log-format"),
		WebhookEnabled:       v.GetBool("webhook-enabled"),
		WebhookPort:          v.GetInt("webhook-port"),
		WebhookCertPath:      v.GetString("webhook-cert-path"),
		WebhookKeyPath:       v.GetString("webhook-key-path"),
		HealthAddress:        v.GetString("health-address"),
	}
}

// NewCommand builds the `watcher` cobra command.
func NewCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "watcher",
		Short: "Reflects Route/Upstream/Secret state from the Kubernetes API into a running proxy, and validates Route host uniqueness.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), loadOptions(v))
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
	if opts.PodNamespace != "" {
		log = log.WithValues("pod_namespace", opts.PodNamespace)
	}

	restConfig, err := clientcmd.BuildConfigFromFlags("", opts.Kubeconfig)
	if err != nil {
		return fmt.Errorf("building kube client config: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("building dynamic client: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("building typed client: %w", err)
	}

	key, err := apikey.ReadFile(opts.APIKeyFile)
	if err != nil {
		return fmt.Errorf("reading ingestion api key: %w", err)
	}
	sink := ingestion.NewClient(opts.IngestionURL, key, log)

	w := watcher.New(dynamicClient, clientset, sink, log, watcher.Options{
		Namespace:            opts.WatchNamespace,
		SecretResyncInterval: opts.SecretResyncInterval,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	errCh := make(chan error, 2)

	go serveHealth(ctx, opts.HealthAddress, log, w, errCh)

	if opts.WebhookEnabled {
		go serveWebhook(ctx, opts, dynamicClient, errCh)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func serveHealth(ctx context.Context, addr string, log logr.Logger, w *watcher.Watcher, errCh chan<- error) {
	checker := healthz.NewCacheSyncHealthzWithDeadline(log, clock.RealClock{}, w, 30*time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, req *http.Request) {
		if err := checker(req); err != nil {
			rw.WriteHeader(http.StatusInternalServerError)
			_, _ = rw.Write([]byte(err.Error()))
			return
		}
		rw.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errCh <- fmt.Errorf("health server: %w", err)
	}
}

func serveWebhook(ctx context.Context, opts *Options, dynamicClient dynamic.Interface, errCh chan<- error) {
	scheme := runtime.NewScheme()
	if err := ossfev1.AddToScheme(scheme); err != nil {
		errCh <- fmt.Errorf("registering scheme: %w", err)
		return
	}
	decoder := crwebhook.NewDecoder(scheme)
	validator := ossadmission.NewRouteValidator(dynamicClient, *decoder)
	mux := ossadmission.NewMux(validator)

	server := &http.Server{Addr: fmt.Sprintf(":%d", opts.WebhookPort), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServeTLS(opts.WebhookCertPath, opts.WebhookKeyPath); err != nil && err != http.ErrServerClosed {
		errCh <- fmt.Errorf("webhook server: %w", err)
	}
}
