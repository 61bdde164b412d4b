package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
	"github.com/JavierCodely/onticket-app-sub000/internal/engine"
	"github.com/JavierCodely/onticket-app-sub000/internal/service"
	"github.com/JavierCodely/onticket-app-sub000/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
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

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/catalog/products", a.requireAuth(a.handleProducts, "cashier", "admin"))
	mux.HandleFunc("/api/v1/catalog/promotions", a.requireAuth(a.handlePromotions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/catalog/combos", a.requireAuth(a.handleCombos, "cashier", "admin"))

	mux.HandleFunc("/api/v1/cart", a.requireAuth(a.handleCart, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/lines", a.requireAuth(a.handleCartLines, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/lines/", a.requireAuth(a.handleCartLineActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/currency", a.requireAuth(a.handleCartCurrency, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/payment-method", a.requireAuth(a.handleCartPaymentMethod, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/employee", a.requireAuth(a.handleCartEmployee, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/discount", a.requireAuth(a.handleCartDiscount, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/checkout", a.requireAuth(a.handleCheckout, "cashier", "admin"))

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, "admin"))
	mux.HandleFunc("/api/v1/reports/low-stock", a.requireAuth(a.handleLowStock, "cashier", "admin"))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, "admin"))
	mux.HandleFunc("/api/v1/users/operators", a.requireAuth(a.handleOperators, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
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

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handlePromotions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	promos, err := a.service.ListPromotions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"promotions": promos})
}

func (a *API) handleCombos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	combos, err := a.service.ListCombos(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"combos": combos})
}

// terminalID identifies the cart session. Every cart route requires it;
// each terminal owns exactly one cart.
func terminalID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get("X-Terminal-ID"))
	if id == "" {
		return "", errors.New("missing X-Terminal-ID header")
	}
	return id, nil
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	terminal, err := terminalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		view, err := a.service.CartState(r.Context(), terminal)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cart": view})
	case http.MethodDelete:
		view, err := a.service.CancelCart(r.Context(), terminal)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cart": view})
	default:
		writeMethodNotAllowed(w)
	}
}

type addLineRequest struct {
	Kind        domain.LineKind `json:"kind"`
	ProductID   string          `json:"producto_id"`
	PromotionID string          `json:"promocion_id"`
	ComboID     string          `json:"combo_id"`
	Quantity    int             `json:"cantidad"`
}

func (a *API) handleCartLines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	terminal, err := terminalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req addLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var view domain.CartView
	switch req.Kind {
	case domain.LineProduct:
		view, err = a.service.AddProduct(r.Context(), terminal, req.ProductID, req.Quantity)
	case domain.LinePromotion:
		view, err = a.service.AddPromotion(r.Context(), terminal, req.PromotionID)
	case domain.LineCombo:
		view, err = a.service.AddCombo(r.Context(), terminal, req.ComboID)
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown line kind"))
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cart": view})
}

type updateLineRequest struct {
	Quantity int `json:"cantidad"`
}

func (a *API) handleCartLineActions(w http.ResponseWriter, r *http.Request) {
	terminal, err := terminalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	lineID := strings.TrimPrefix(r.URL.Path, "/api/v1/cart/lines/")
	if lineID == "" || strings.Contains(lineID, "/") {
		writeError(w, http.StatusNotFound, errors.New("unknown cart line path"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req updateLineRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err := a.service.UpdateQuantity(r.Context(), terminal, lineID, req.Quantity)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cart": view})
	case http.MethodDelete:
		view, err := a.service.RemoveLine(r.Context(), terminal, lineID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cart": view})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCartCurrency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	terminal, err := terminalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req struct {
		Currency domain.Currency `json:"moneda"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.SetCurrency(r.Context(), terminal, req.Currency)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": view})
}

func (a *API) handleCartPaymentMethod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	terminal, err := terminalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req struct {
		Method string `json:"metodo_pago"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.SetPaymentMethod(r.Context(), terminal, req.Method)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": view})
}

func (a *API) handleCartEmployee(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	terminal, err := terminalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req struct {
		EmployeeID string `json:"empleado_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view, notice, err := a.service.SetEmployee(r.Context(), terminal, req.EmployeeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	payload := map[string]any{"cart": view}
	if notice != nil {
		payload["repricing"] = notice
	}
	writeJSON(w, http.StatusOK, payload)
}

type discountRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

func (a *API) handleCartDiscount(w http.ResponseWriter, r *http.Request) {
	terminal, err := terminalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req discountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		value, err := decimal.NewFromString(strings.TrimSpace(req.Value))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err := a.service.SetManualDiscount(r.Context(), terminal, engine.ManualDiscount{
			Kind:  engine.DiscountKind(req.Kind),
			Value: value,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cart": view})
	case http.MethodDelete:
		view, err := a.service.ClearManualDiscount(r.Context(), terminal)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cart": view})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	terminal, err := terminalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sale, err := a.service.Checkout(r.Context(), terminal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	from, to := parseTimeRange(r)
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	sales, err := a.service.ListSales(r.Context(), from, to, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	items, err := a.service.LowStockReport(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	from, to := parseTimeRange(r)
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), from, to, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) handleOperators(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"operators": a.auth.ListOperators()})
	case http.MethodPost:
		var req domain.OperatorCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		operator, err := a.auth.CreateOperator(req)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"operator": operator})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Terminal-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// writeDomainError maps engine and store errors onto HTTP statuses and,
// for the structured engine errors, attaches machine-readable detail the
// terminal UI renders directly.
func writeDomainError(w http.ResponseWriter, err error) {
	var stockErr *engine.InsufficientStockError
	if errors.As(err, &stockErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": stockErr.Error(),
			"code":  "insufficient_stock",
			"detail": map[string]any{
				"producto_id": stockErr.ProductID,
				"requested":   stockErr.Requested,
				"available":   stockErr.Available,
			},
		})
		return
	}

	var conflictErr *engine.StockConflictError
	if errors.As(err, &conflictErr) {
		conflicts := make([]map[string]any, 0, len(conflictErr.Conflicts))
		for _, c := range conflictErr.Conflicts {
			conflicts = append(conflicts, map[string]any{
				"producto_id": c.ProductID,
				"requested":   c.Requested,
				"available":   c.Available,
			})
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     conflictErr.Error(),
			"code":      "stock_conflict",
			"conflicts": conflicts,
		})
		return
	}

	var qtyErr *engine.PromotionQuantityError
	if errors.As(err, &qtyErr) {
		detail := map[string]any{
			"promocion_id": qtyErr.PromotionID,
			"requested":    qtyErr.Requested,
			"min":          qtyErr.Min,
		}
		if qtyErr.Max != nil {
			detail["max"] = *qtyErr.Max
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  qtyErr.Error(),
			"code":   "promotion_quantity",
			"detail": detail,
		})
		return
	}

	var limitErr *engine.LineLimitError
	if errors.As(err, &limitErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": limitErr.Error(),
			"code":  "line_limit",
			"detail": map[string]any{
				"entity_id": limitErr.EntityID,
				"limit":     limitErr.Limit,
			},
		})
		return
	}

	var usageErr *engine.GlobalUsageError
	if errors.As(err, &usageErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  usageErr.Error(),
			"code":   "usage_limit",
			"detail": map[string]any{"entity_id": usageErr.EntityID},
		})
		return
	}

	var discountErr *engine.DiscountExceedsTotalError
	if errors.As(err, &discountErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": discountErr.Error(),
			"code":  "discount_exceeds_total",
			"detail": map[string]any{
				"discount": discountErr.Discount.StringFixed(2),
				"total":    discountErr.Total.StringFixed(2),
			},
		})
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, engine.ErrLineNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, engine.ErrCurrencyLocked):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, engine.ErrUnknownCurrency),
		errors.Is(err, engine.ErrPriceUnavailable),
		errors.Is(err, engine.ErrInactiveEntity):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, store.ErrInvalidSale), errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrAdminRequired):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, service.ErrTerminalRequired),
		errors.Is(err, engine.ErrInvalidQuantity),
		errors.Is(err, engine.ErrInvalidPayment),
		errors.Is(err, engine.ErrInvalidDiscount):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func parseTimeRange(r *http.Request) (time.Time, time.Time) {
	from := time.Now().UTC().AddDate(0, 0, -1)
	to := time.Now().UTC().Add(time.Minute)
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			from = parsed
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			to = parsed
		}
	}
	return from, to
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic so internals never leak to terminals.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
