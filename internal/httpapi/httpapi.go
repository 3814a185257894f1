package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"puntoventa/terminal/internal/domain"
	"puntoventa/terminal/internal/service"
	"puntoventa/terminal/internal/store"
	"puntoventa/terminal/internal/totals"
)

// API is the JSON surface the register front-end talks to. It runs on the
// terminal itself, so there is no login flow; destructive operations are
// gated behind the manager PIN instead.
type API struct {
	service       *service.Service
	allowedOrigin string
	managerPIN    string
	pinLimiter    *attemptLimiter
	retentionDays int
}

func New(svc *service.Service, allowedOrigin string, managerPIN string, retentionDays int) *API {
	managerPIN = strings.TrimSpace(managerPIN)
	if managerPIN != "" {
		if hashed, err := bcrypt.GenerateFromPassword([]byte(managerPIN), bcrypt.DefaultCost); err == nil {
			managerPIN = string(hashed)
		}
	}
	if retentionDays < 1 {
		retentionDays = 30
	}
	return &API{
		service:       svc,
		allowedOrigin: allowedOrigin,
		managerPIN:    managerPIN,
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		retentionDays: retentionDays,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/status", a.handleStatus)
	mux.HandleFunc("/api/v1/checkout", a.handleCheckout)
	mux.HandleFunc("/api/v1/carts/hold", a.handleHeldCarts)
	mux.HandleFunc("/api/v1/carts/hold/", a.handleHeldCartActions)
	mux.HandleFunc("/api/v1/products/cache", a.handleProductCache)
	mux.HandleFunc("/api/v1/orders/pending", a.handlePendingOrders)
	mux.HandleFunc("/api/v1/orders/prune", a.handlePrune)
	mux.HandleFunc("/api/v1/sync", a.handleSync)
	mux.HandleFunc("/api/v1/totals", a.handleTotals)

	return a.withMiddleware(mux)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Manager-PIN")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	online, pending, lastSyncAt := a.service.Status()
	resp := map[string]any{
		"online":         online,
		"pending_orders": pending,
	}
	if !lastSyncAt.IsZero() {
		resp["last_sync_at"] = lastSyncAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

type checkoutRequest struct {
	Cart    []domain.CartLineItem   `json:"cart"`
	Cliente *domain.ClienteSnapshot `json:"cliente,omitempty"`
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.Checkout(r.Context(), req.Cart, req.Cliente)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleHeldCarts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if err := a.service.LoadHeldCarts(r.Context()); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": a.service.HeldCarts()})
	case http.MethodPost:
		var req checkoutRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		holdID, err := a.service.HoldCart(r.Context(), req.Cart, req.Cliente)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"hold_id": holdID})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleHeldCartActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/carts/hold/")
	holdID, action, _ := strings.Cut(rest, "/")
	if holdID == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing hold id"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		held, err := a.service.ResumeHeldCart(r.Context(), holdID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if held == nil {
			writeError(w, http.StatusNotFound, errors.New("held cart not found"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"held_cart": held})
	case action == "" && r.Method == http.MethodDelete:
		if !a.requireManagerPIN(w, r) {
			return
		}
		if err := a.service.DiscardHeldCart(r.Context(), holdID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"discarded": holdID})
	case action == "checkout" && r.Method == http.MethodPost:
		result, err := a.service.CheckoutHeld(r.Context(), holdID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	default:
		writeMethodNotAllowed(w)
	}
}

type cacheProductsRequest struct {
	Products []domain.ProductoSnapshot `json:"products"`
}

func (a *API) handleProductCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snapshot, err := a.service.LoadProductCache(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if snapshot == nil {
			writeJSON(w, http.StatusOK, map[string]any{"products": []domain.ProductoSnapshot{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"products":    snapshot.Products,
			"captured_at": snapshot.CapturedAt.Format(time.RFC3339),
		})
	case http.MethodPut:
		var req cacheProductsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := a.service.CacheProducts(r.Context(), req.Products); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cached": len(req.Products)})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePendingOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.service.LoadPendingOrders(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": a.service.PendingOrders()})
}

func (a *API) handlePrune(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.requireManagerPIN(w, r) {
		return
	}

	olderThan := time.Now().UTC().AddDate(0, 0, -a.retentionDays)
	pruned, err := a.service.PruneSyncedOrders(r.Context(), olderThan)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pruned": pruned})
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	report, err := a.service.SyncPendingOrders(r.Context(), nil)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type totalsRequest struct {
	Lines            []domain.OrderLine `json:"lines"`
	ExcludeLineCalcs bool               `json:"exclude_line_calcs,omitempty"`
}

func (a *API) handleTotals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req totalsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, totals.Compute(req.Lines, !req.ExcludeLineCalcs))
}

func (a *API) requireManagerPIN(w http.ResponseWriter, r *http.Request) bool {
	if a.managerPIN == "" {
		writeError(w, http.StatusForbidden, errors.New("manager PIN not configured"))
		return false
	}
	if !a.pinLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many PIN attempts"))
		return false
	}
	pin := strings.TrimSpace(r.Header.Get("X-Manager-PIN"))
	if pin == "" || bcrypt.CompareHashAndPassword([]byte(a.managerPIN), []byte(pin)) != nil {
		writeError(w, http.StatusForbidden, errors.New("invalid manager PIN"))
		return false
	}
	return true
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrInvalidRecord):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[httpapi] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func decodeJSON(r *http.Request, out any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
