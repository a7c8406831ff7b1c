package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	httpmw "github.com/mihaimyh/goentitle/middleware/http"
	"github.com/mihaimyh/goentitle/pkg/api"
	"github.com/mihaimyh/goentitle/pkg/billing"
	"github.com/mihaimyh/goentitle/pkg/billing/appstore"
	prommetrics "github.com/mihaimyh/goentitle/pkg/billing/metrics/prometheus"
	"github.com/mihaimyh/goentitle/pkg/billing/stripe"
	"github.com/mihaimyh/goentitle/pkg/premium"
)

const metricsNamespace = "entitle"

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the payments API",
		Long: `serve exposes the payments API under /api/payments together with
/healthz, /metrics and a premium-only /api/premium/ping route.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Addr = addr
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDR/PORT)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	store, closeStore, err := openStorage(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler, _, err := newServer(a, store, reg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.Addr).Str("storage", a.cfg.Storage).Msg("payments API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// newServer wires the ledger, the billing providers and the payments API
// into one router.
func newServer(a *app, store premium.Storage, reg *prometheus.Registry) (http.Handler, *premium.Manager, error) {
	metrics := prommetrics.NewMetrics(reg, metricsNamespace)

	managerConfig := premium.Config{
		CacheTTL: a.cfg.CacheTTL,
		OnChange: func(ctx context.Context, previous, current *premium.Status) {
			a.log.Info().
				Str("user_id", current.UserID).
				Bool("premium", current.IsPremium).
				Str("product_id", current.ProductID).
				Str("source", string(current.Source)).
				Msg("premium status changed")
		},
		Logger:  a.logger,
		Metrics: metrics,
	}
	if ts, ok := store.(premium.TimeSource); ok {
		managerConfig.TimeSource = ts
	}
	manager, err := premium.NewManager(store, managerConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create premium manager: %w", err)
	}

	apiConfig := api.Config{
		Manager:   manager,
		GetUserID: api.FromHeader(api.SessionHeader),
		Origin:    a.cfg.Origin,
		Logger:    a.logger,
	}

	if a.cfg.StripeEnabled() {
		provider, err := stripe.NewProvider(stripe.Config{
			Config: billing.Config{
				Ledger:        manager,
				WebhookSecret: a.cfg.StripeWebhookSecret,
				APIKey:        a.cfg.StripeAPIKey,
				WebhookCallback: func(ctx context.Context, event billing.WebhookEvent) error {
					a.log.Info().
						Str("user_id", event.UserID).
						Str("event_type", event.EventType).
						Bool("granted", event.Granted).
						Msg("webhook applied")
					return nil
				},
				Logger:  a.logger,
				Metrics: metrics,
			},
			ProductFilter:  a.cfg.StripeProductFilter,
			ProductMapping: a.cfg.StripeProductMap,
			DefaultOrigin:  a.cfg.Origin,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stripe provider: %w", err)
		}
		apiConfig.Catalog = provider
		apiConfig.IntentCreator = provider
		apiConfig.Provider = provider
	} else {
		a.log.Warn().Msg("STRIPE_API_KEY not set; serving the fallback catalog and no card payments")
	}

	if a.cfg.AppStoreEnabled() {
		verifier, err := appstore.New(appstore.Config{
			SharedSecret: a.cfg.AppleSharedSecret,
			Logger:       a.logger,
			Metrics:      metrics,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create app store verifier: %w", err)
		}
		apiConfig.ReceiptVerifier = verifier
	}

	payments, err := api.NewHandler(apiConfig)
	if err != nil {
		return nil, nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Mount("/payments", payments.Routes())

		r.With(httpmw.Middleware(httpmw.Config{
			Source:    manager,
			GetUserID: httpmw.FromHeader(api.SessionHeader),
		})).Get("/premium/ping", func(w http.ResponseWriter, r *http.Request) {
			status, _ := httpmw.StatusFromContext(r.Context())
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(w, `{"success":true,"productId":%q}`, status.ProductID)
		})
	})

	return r, manager, nil
}

// requestLogger logs one line per request with the chi request id
func requestLogger(a *app) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			a.log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
