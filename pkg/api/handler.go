package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mihaimyh/goentitle/pkg/billing"
	"github.com/mihaimyh/goentitle/pkg/entitle"
	"github.com/mihaimyh/goentitle/pkg/premium"
)

const maxUserIDLen = 255

var (
	errUnauthorized       = errors.New("user not authenticated")
	errInvalidUserID      = errors.New("invalid user ID format")
	errProductRequired    = errors.New("product ID is required")
	errMissingFields      = errors.New("missing required fields")
	errUnsupportedStore   = errors.New("unsupported platform")
	errIntentsDisabled    = errors.New("card payments are not configured")
	errVerifyDisabled     = errors.New("receipt verification is not configured")
	errInvalidRequestBody = errors.New("invalid request body")
)

type userKey struct{}

// Handler serves the /payments endpoints
type Handler struct {
	config  Config
	catalog billing.Catalog
	router  chi.Router
}

// Routes returns the payments router. Mount it under /payments.
// /products and /webhook are public; everything else needs a user.
func (h *Handler) Routes() chi.Router {
	return h.router
}

// ServeHTTP lets the handler be used without mounting
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/products", h.GetProducts)
	if h.config.Provider != nil {
		r.Handle("/webhook", h.config.Provider.WebhookHandler())
	}

	r.Group(func(r chi.Router) {
		r.Use(h.requireUser)
		r.Post("/create-intent", h.CreateIntent)
		r.Post("/verify-purchase", h.VerifyPurchase)
		r.Post("/verify-iap", h.VerifyPurchase)
		r.Get("/subscription-status", h.SubscriptionStatus)
		r.Get("/premium-status", h.PremiumStatus)
	})
	return r
}

func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(h.config.GetUserID(r))
		if userID == "" {
			h.handleError(w, r, errUnauthorized, http.StatusUnauthorized)
			return
		}
		if len(userID) > maxUserIDLen {
			h.handleError(w, r, errInvalidUserID, http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}

func userFrom(ctx context.Context) string {
	userID, _ := ctx.Value(userKey{}).(string) //nolint:errcheck // set by requireUser
	return userID
}

// GetProducts returns the catalog, falling back to the fixed products
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Products(r.Context())
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to fetch products: %w", err), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, ProductsResponse{Success: true, Products: products})
}

// CreateIntent starts a card payment for the caller
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	if h.config.IntentCreator == nil {
		h.handleError(w, r, errIntentsDisabled, http.StatusServiceUnavailable)
		return
	}

	var req CreateIntentRequest
	if err := h.decode(w, r, &req); err != nil {
		h.handleError(w, r, err, http.StatusBadRequest)
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		h.handleError(w, r, errProductRequired, http.StatusBadRequest)
		return
	}

	intentReq := billing.IntentRequest{
		UserID:    userFrom(r.Context()),
		ProductID: productID,
		Origin:    r.Header.Get("Origin"),
	}
	if intentReq.Origin == "" {
		intentReq.Origin = h.config.Origin
	}
	if h.config.GetEmail != nil {
		intentReq.Email = h.config.GetEmail(r)
	}

	intent, err := h.config.IntentCreator.CreateIntent(r.Context(), intentReq)
	switch {
	case errors.Is(err, billing.ErrProductNotFound):
		h.handleError(w, r, err, http.StatusNotFound)
		return
	case err != nil:
		h.config.Logger.Error("failed to create payment intent",
			entitle.F("user_id", intentReq.UserID), entitle.F("product_id", productID),
			entitle.F("error", err.Error()))
		h.handleError(w, r, errors.New("failed to create payment intent"), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, CreateIntentResponse{
		Success:      true,
		ClientSecret: intent.ClientSecret,
		IntentID:     intent.IntentID,
		CheckoutURL:  intent.CheckoutURL,
	})
}

// VerifyPurchase checks a store receipt and, when it proves the purchase,
// records it and grants premium. An unproven receipt answers verified=false.
func (h *Handler) VerifyPurchase(w http.ResponseWriter, r *http.Request) {
	if h.config.ReceiptVerifier == nil {
		h.handleError(w, r, errVerifyDisabled, http.StatusServiceUnavailable)
		return
	}

	var req entitle.VerifyRequest
	if err := h.decode(w, r, &req); err != nil {
		h.handleError(w, r, err, http.StatusBadRequest)
		return
	}
	if req.ProductID == "" || req.TransactionID == "" || req.Receipt == "" {
		h.handleError(w, r, errMissingFields, http.StatusBadRequest)
		return
	}
	if req.Platform == "" {
		req.Platform = entitle.PlatformIOS
	}
	if !req.Platform.HasNativeBilling() {
		h.handleError(w, r, fmt.Errorf("%w: %s", errUnsupportedStore, req.Platform), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	userID := userFrom(ctx)
	found, err := h.config.ReceiptVerifier.VerifyReceipt(ctx, billing.ReceiptRequest{
		Receipt:       req.Receipt,
		ProductID:     req.ProductID,
		TransactionID: req.TransactionID,
	})
	switch {
	case errors.Is(err, billing.ErrInvalidReceipt):
		h.handleError(w, r, err, http.StatusBadRequest)
		return
	case err != nil:
		h.config.Logger.Error("receipt verification failed",
			entitle.F("user_id", userID), entitle.F("transaction_id", req.TransactionID),
			entitle.F("error", err.Error()))
		h.handleError(w, r, errors.New("failed to verify purchase"), http.StatusBadGateway)
		return
	}
	if found == nil {
		h.config.Logger.Warn("receipt did not prove purchase",
			entitle.F("user_id", userID), entitle.F("product_id", req.ProductID),
			entitle.F("transaction_id", req.TransactionID))
		h.writeJSON(w, http.StatusOK, VerifyResponse{Success: true, Verified: false})
		return
	}

	// the store's ids key the ledger, never the caller's
	applied, err := h.config.Manager.RecordVerifiedPurchase(ctx, premium.Purchase{
		TransactionID: found.LedgerID(),
		UserID:        userID,
		ProductID:     found.ProductID,
		Platform:      string(req.Platform),
		Receipt:       req.Receipt,
		CreatedAt:     found.PurchasedAt,
	}, premium.SourceAppStore)
	if err == nil && !applied && found.TransactionID != found.LedgerID() && !found.PurchasedAt.IsZero() {
		// a renewal of a purchase this user already owns
		_, err = h.config.Manager.Grant(ctx, premium.GrantRequest{
			UserID:    userID,
			ProductID: found.ProductID,
			Source:    premium.SourceAppStore,
			EventTime: found.PurchasedAt,
		})
	}
	switch {
	case errors.Is(err, premium.ErrPurchaseOwnership):
		h.handleError(w, r, err, http.StatusConflict)
		return
	case errors.Is(err, premium.ErrUnknownProduct):
		h.handleError(w, r, err, http.StatusBadRequest)
		return
	case err != nil:
		h.config.Logger.Error("failed to record purchase",
			entitle.F("user_id", userID), entitle.F("transaction_id", found.LedgerID()),
			entitle.F("error", err.Error()))
		h.handleError(w, r, errors.New("failed to record purchase"), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, VerifyResponse{Success: true, Verified: true})
}

// SubscriptionStatus reports whether the caller has an active entitlement
func (h *Handler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := h.status(w, r)
	if !ok {
		return
	}
	data := SubscriptionData{Active: status.IsPremium}
	if status.IsPremium {
		data.ProductID = status.ProductID
	}
	h.writeJSON(w, http.StatusOK, SubscriptionResponse{Success: true, Data: data})
}

// PremiumStatus is the authoritative premium answer for the caller
func (h *Handler) PremiumStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := h.status(w, r)
	if !ok {
		return
	}
	data := PremiumData{IsPremium: status.IsPremium}
	if status.IsPremium {
		data.ProductID = status.ProductID
		data.ExpiresAt = status.ExpiresAt
		data.Source = string(status.Source)
	}
	h.writeJSON(w, http.StatusOK, PremiumResponse{Success: true, Data: data})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) (*premium.Status, bool) {
	userID := userFrom(r.Context())
	status, err := h.config.Manager.Status(r.Context(), userID)
	if err != nil {
		h.config.Logger.Error("failed to check premium status",
			entitle.F("user_id", userID), entitle.F("error", err.Error()))
		h.handleError(w, r, errors.New("failed to check premium status"), http.StatusInternalServerError)
		return nil, false
	}
	return status, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequestBody, err)
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.config.Logger.Debug("failed to encode response", entitle.F("error", err.Error()))
	}
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err, statusCode)
		return
	}
	h.writeJSON(w, statusCode, ErrorResponse{Success: false, Error: err.Error()})
}
