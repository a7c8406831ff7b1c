package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/goentitle/internal/config"
	"github.com/mihaimyh/goentitle/pkg/entitle"
	"github.com/mihaimyh/goentitle/pkg/premium"
	"github.com/mihaimyh/goentitle/storage/memory"
)

const testSession = "user-42"

// setTestEnv pins the variables the commands read so the host environment cannot leak in
func setTestEnv(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"LOG_LEVEL":           "error",
		"LOG_FORMAT":          "json",
		"STORAGE":             "memory",
		"ENTITLE_PLATFORM":    "web",
		"ENTITLE_SESSION_ID":  "",
		"APP_ORIGIN":          "",
		"STRIPE_API_KEY":      "",
		"STRIPE_PRODUCT_MAP":  "",
		"APPLE_SHARED_SECRET": "",
	} {
		t.Setenv(k, v)
	}
}

// startServer runs the payments API over memory storage
func startServer(t *testing.T) (*httptest.Server, *premium.Manager, *prometheus.Registry) {
	t.Helper()

	a := &app{
		cfg:    &config.Config{CacheTTL: -1},
		log:    zerolog.Nop(),
		logger: &entitle.NoopLogger{},
		out:    io.Discard,
	}
	reg := prometheus.NewRegistry()
	handler, manager, err := newServer(a, memory.New(), reg)
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, manager, reg
}

// run executes the root command and returns what it printed
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand("test", "none", "unknown")
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func clientArgs(srv *httptest.Server, args ...string) []string {
	return append(args, "--api-url", srv.URL+"/api", "--session", testSession)
}

func grant(t *testing.T, manager *premium.Manager, productID string) {
	t.Helper()
	_, err := manager.Grant(context.Background(), premium.GrantRequest{
		UserID:    testSession,
		ProductID: productID,
		Source:    premium.SourceAdmin,
		EventTime: time.Now(),
	})
	require.NoError(t, err)
}

func TestStatusCommand(t *testing.T) {
	setTestEnv(t)
	srv, manager, _ := startServer(t)

	out, err := run(t, clientArgs(srv, "status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "tier: free")
	assert.Contains(t, out, "premium: false")

	grant(t, manager, entitle.ProductPremiumLifetime)

	out, err = run(t, clientArgs(srv, "status", "--json")...)
	require.NoError(t, err)
	var got statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.IsPremium)
	assert.Equal(t, entitle.TierPremium, got.Tier)
	assert.False(t, got.CheckedAt.IsZero())
}

func TestStatusCommand_UnreachableServerIsFree(t *testing.T) {
	setTestEnv(t)
	srv, _, _ := startServer(t)
	url := srv.URL
	srv.Close()

	out, err := run(t, "status", "--api-url", url+"/api", "--session", testSession, "--timeout", "5s")
	require.NoError(t, err)
	assert.Contains(t, out, "tier: free")
}

func TestProductsCommand(t *testing.T) {
	setTestEnv(t)
	srv, _, _ := startServer(t)

	out, err := run(t, clientArgs(srv, "products")...)
	require.NoError(t, err)
	assert.Contains(t, out, "PRODUCT")
	for _, id := range entitle.DefaultProductIDs() {
		assert.Contains(t, out, id)
	}

	out, err = run(t, clientArgs(srv, "products", "--json", "--platform", "ios")...)
	require.NoError(t, err)
	var products []entitle.Product
	require.NoError(t, json.Unmarshal([]byte(out), &products))
	assert.Len(t, products, 3)
}

func TestPurchaseCommand(t *testing.T) {
	setTestEnv(t)
	srv, _, _ := startServer(t)

	tests := []struct {
		name    string
		args    []string
		wantOut string
	}{
		{
			// no App Store verifier is configured, so the receipt cannot be proven
			name:    "simulated store unverified",
			args:    []string{"purchase", entitle.ProductPremiumMonthly, "--simulate-store"},
			wantOut: entitle.MsgVerificationFailed,
		},
		{
			name:    "simulated store cancelled",
			args:    []string{"purchase", entitle.ProductPremiumMonthly, "--simulate-store", "--simulate-outcome", "cancel"},
			wantOut: entitle.MsgPurchaseCancelled,
		},
		{
			// no card provider is configured
			name:    "card payment unavailable",
			args:    []string{"purchase", entitle.ProductPremiumMonthly},
			wantOut: "failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, clientArgs(srv, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, out, tt.wantOut)
			assert.Contains(t, out, "tier: free")
		})
	}
}

func TestPurchaseCommand_Deferred(t *testing.T) {
	setTestEnv(t)
	srv, _, _ := startServer(t)

	out, err := run(t, clientArgs(srv, "purchase", entitle.ProductPremiumYearly,
		"--simulate-store", "--simulate-outcome", "deferred", "--json")...)
	require.NoError(t, err)

	var result entitle.PurchaseResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Success)
	assert.Equal(t, entitle.FailurePending, result.Failure)
}

func TestPurchaseCommand_InvalidOutcome(t *testing.T) {
	setTestEnv(t)
	srv, _, _ := startServer(t)

	_, err := run(t, clientArgs(srv, "purchase", entitle.ProductPremiumMonthly, "--simulate-store", "--simulate-outcome", "maybe")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid outcome")
}

func TestRestoreCommand(t *testing.T) {
	setTestEnv(t)
	srv, manager, _ := startServer(t)

	out, err := run(t, clientArgs(srv, "restore")...)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to restore")

	grant(t, manager, entitle.ProductPremiumLifetime)

	out, err = run(t, clientArgs(srv, "restore")...)
	require.NoError(t, err)
	assert.Contains(t, out, "ok "+entitle.ProductPremiumLifetime)
}

func TestClientCommands_InvalidPlatform(t *testing.T) {
	setTestEnv(t)
	srv, _, _ := startServer(t)

	_, err := run(t, clientArgs(srv, "status", "--platform", "desktop")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid platform")
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	setTestEnv(t)
	t.Setenv("STORAGE", "mongo")

	_, err := run(t, "status")
	require.Error(t, err)
}

func TestServer_Routes(t *testing.T) {
	srv, manager, _ := startServer(t)

	get := func(path, session string) (int, string) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		if session != "" {
			req.Header.Set("X-Session-ID", session)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, _ = get("/api/premium/ping", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = get("/api/premium/ping", testSession)
	assert.Equal(t, http.StatusPaymentRequired, code)

	grant(t, manager, entitle.ProductPremiumYearly)

	code, body = get("/api/premium/ping", testSession)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, entitle.ProductPremiumYearly)

	code, body = get("/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "entitle_premium_grants_total")
	assert.Contains(t, body, "entitle_premium_status_lookups_total")

	code, _ = get("/api/payments/webhook", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "WARN", "json")
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Str("k", "v").Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"k":"v"`)

	buf.Reset()
	log, err = newLogger(&buf, "", "console")
	require.NoError(t, err)
	log.Info().Msg("readable")
	assert.Contains(t, buf.String(), "readable")
	assert.False(t, strings.HasPrefix(buf.String(), "{"))

	_, err = newLogger(&buf, "loud", "json")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestOpenBackend(t *testing.T) {
	cfg := &config.Config{}

	store, closeStore, err := openBackend(context.Background(), cfg, config.StorageMemory)
	require.NoError(t, err)
	require.NotNil(t, store)
	closeStore()

	_, _, err = openBackend(context.Background(), cfg, "mongo")
	assert.Error(t, err)

	_, _, err = openBackend(context.Background(), &config.Config{RedisURL: "not a url"}, config.StorageRedis)
	assert.Error(t, err)
}

func TestOpenStorage_TieredNeedsReachableTiers(t *testing.T) {
	cfg := &config.Config{
		Storage:    config.StorageTiered,
		TieredHot:  config.StorageMemory,
		TieredCold: "mongo",
	}
	_, _, err := openStorage(context.Background(), cfg, &entitle.NoopLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cold tier")
}
