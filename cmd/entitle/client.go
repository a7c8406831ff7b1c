package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mihaimyh/goentitle/pkg/adapter/server"
	"github.com/mihaimyh/goentitle/pkg/adapter/store"
	"github.com/mihaimyh/goentitle/pkg/entitle"
	"github.com/mihaimyh/goentitle/pkg/remote"
)

// clientFlags are shared by the commands that talk to a running payments API
type clientFlags struct {
	apiURL   string
	session  string
	platform string
	json     bool
	timeout  time.Duration

	simulateStore   bool
	simulateOutcome string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.apiURL, "api-url", "", "payments API root (overrides ENTITLE_API_URL)")
	cmd.Flags().StringVar(&f.session, "session", "", "session id sent as X-Session-ID (overrides ENTITLE_SESSION_ID)")
	cmd.Flags().StringVar(&f.platform, "platform", "", "client platform: ios, android or web (overrides ENTITLE_PLATFORM)")
	cmd.Flags().BoolVar(&f.json, "json", false, "print JSON instead of text")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 30*time.Second, "overall command timeout")
}

// resolve applies flag overrides on top of the loaded configuration
func (f *clientFlags) resolve(a *app) (apiURL, session string, platform entitle.Platform, err error) {
	apiURL, session, platform = a.cfg.APIURL, a.cfg.SessionID, entitle.Platform(a.cfg.Platform)
	if f.apiURL != "" {
		apiURL = f.apiURL
	}
	if f.session != "" {
		session = f.session
	}
	if f.platform != "" {
		platform = entitle.Platform(strings.ToLower(f.platform))
	}
	if f.simulateStore {
		platform = entitle.PlatformIOS
	}

	switch platform {
	case entitle.PlatformIOS, entitle.PlatformAndroid, entitle.PlatformWeb:
	default:
		return "", "", "", fmt.Errorf("invalid platform %q: want ios, android or web", platform)
	}
	return apiURL, session, platform, nil
}

func parseOutcome(s string) (store.Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ok":
		return store.Outcome{Code: store.ResponseOK}, nil
	case "cancel":
		return store.Outcome{Code: store.ResponseUserCanceled}, nil
	case "error":
		return store.Outcome{Code: store.ResponseError}, nil
	case "deferred":
		return store.Outcome{Code: store.ResponseDeferred}, nil
	default:
		return store.Outcome{}, fmt.Errorf("invalid outcome %q: want ok, cancel, error or deferred", s)
	}
}

// newEngine builds a client engine for one command run. Native billing is
// always the in-process simulated store: a terminal has no StoreKit.
func newEngine(a *app, f *clientFlags, productID string) (*entitle.Engine, error) {
	apiURL, session, platform, err := f.resolve(a)
	if err != nil {
		return nil, err
	}

	client, err := remote.New(remote.Config{
		BaseURL:   apiURL,
		SessionID: session,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, err
	}

	sim := store.NewSimulated()
	if productID != "" {
		outcome, err := parseOutcome(f.simulateOutcome)
		if err != nil {
			return nil, err
		}
		sim.SetOutcome(productID, outcome)
	}
	native, err := store.New(store.Config{Billing: sim, Platform: platform, Logger: a.logger})
	if err != nil {
		return nil, err
	}

	checkoutBase := a.cfg.Origin
	if checkoutBase == "" {
		checkoutBase = strings.TrimSuffix(strings.TrimRight(apiURL, "/"), "/api")
	}
	card, err := server.New(server.Config{
		Backend: client,
		Checkout: &server.RedirectCheckout{
			BaseURL: checkoutBase,
			Open: func(ctx context.Context, checkoutURL string) error {
				_, err := fmt.Fprintf(a.out, "Complete the payment at %s\n", checkoutURL)
				return err
			},
		},
		Platform: platform,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, err
	}

	adapter, err := entitle.Select(platform, native, card)
	if err != nil {
		return nil, err
	}
	orch, err := entitle.NewOrchestrator(entitle.Config{
		Adapter:  adapter,
		Verifier: client,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, err
	}
	state, err := entitle.NewState(entitle.StateConfig{Checker: client, Logger: a.logger})
	if err != nil {
		return nil, err
	}
	return entitle.NewEngine(entitle.EngineConfig{
		Orchestrator: orch,
		State:        state,
		Logger:       a.logger,
	})
}

// withEngine runs fn against a started engine and always closes it
func withEngine(cmd *cobra.Command, a *app, f *clientFlags, productID string, fn func(ctx context.Context, e *entitle.Engine) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
	defer cancel()

	engine, err := newEngine(a, f, productID)
	if err != nil {
		return err
	}
	if !engine.Start(ctx) {
		a.log.Warn().Msg("payments unavailable; continuing with status only")
	}
	defer engine.Close(context.WithoutCancel(ctx))
	return fn(ctx, engine)
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type statusOutput struct {
	Tier      entitle.Tier `json:"tier"`
	IsPremium bool         `json:"isPremium"`
	CheckedAt time.Time    `json:"checkedAt"`
}

func newStatusCommand(a *app) *cobra.Command {
	f := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the premium tier of the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, a, f, "", func(ctx context.Context, e *entitle.Engine) error {
				snap := e.Snapshot()
				if f.json {
					return a.printJSON(statusOutput{Tier: snap.Tier, IsPremium: snap.IsPremium, CheckedAt: snap.CheckedAt})
				}
				_, err := fmt.Fprintf(a.out, "tier: %s\npremium: %t\nchecked_at: %s\n",
					snap.Tier, snap.IsPremium, snap.CheckedAt.Format(time.RFC3339))
				return err
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newProductsCommand(a *app) *cobra.Command {
	f := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List purchasable products for the platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, a, f, "", func(ctx context.Context, e *entitle.Engine) error {
				products := e.Products(ctx)
				if f.json {
					return a.printJSON(products)
				}
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PRODUCT\tTITLE\tPRICE\tTYPE")
				for _, p := range products {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ProductID, p.Title, p.Price, p.Kind)
				}
				return tw.Flush()
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newPurchaseCommand(a *app) *cobra.Command {
	f := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "purchase <productId>",
		Short: "Buy a product",
		Long: `purchase buys a product through the adapter for the platform. On ios the
purchase goes through a simulated store and is verified by the payments API;
on android and web a card payment intent is created and the checkout URL printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID := args[0]
			return withEngine(cmd, a, f, productID, func(ctx context.Context, e *entitle.Engine) error {
				result := e.Purchase(ctx, productID)
				if f.json {
					if err := a.printJSON(result); err != nil {
						return err
					}
				} else {
					printResult(a, result)
					snap := e.Snapshot()
					fmt.Fprintf(a.out, "tier: %s\n", snap.Tier)
				}
				// pending covers checkout redirects and deferred approvals
				if !result.Success && result.Failure != entitle.FailurePending {
					return fmt.Errorf("purchase of %s did not succeed: %s", productID, result.Error)
				}
				return nil
			})
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.simulateStore, "simulate-store", false, "buy through the simulated native store (forces platform ios)")
	cmd.Flags().StringVar(&f.simulateOutcome, "simulate-outcome", "ok", "simulated store answer: ok, cancel, error or deferred")
	return cmd
}

func newRestoreCommand(a *app) *cobra.Command {
	f := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore previous purchases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, a, f, "", func(ctx context.Context, e *entitle.Engine) error {
				results := e.Restore(ctx)
				if f.json {
					return a.printJSON(results)
				}
				if len(results) == 0 {
					_, err := fmt.Fprintln(a.out, "nothing to restore")
					return err
				}
				for _, r := range results {
					printResult(a, r)
				}
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func printResult(a *app, r entitle.PurchaseResult) {
	if r.Success {
		fmt.Fprintf(a.out, "ok %s", r.ProductID)
		if r.TransactionID != "" {
			fmt.Fprintf(a.out, " (transaction %s)", r.TransactionID)
		}
		fmt.Fprintln(a.out)
		return
	}
	fmt.Fprintf(a.out, "failed %s: %s [%s]\n", r.ProductID, r.Error, r.Failure)
}
