package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/exchange"
	"github.com/xtrntr/papertrade/internal/stream"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	exchange *exchange.Exchange
	auth     *auth.AuthService
	hub      *stream.Hub
	log      zerolog.Logger
}

// NewHandler creates a new handler. hub may be nil to disable the live feed.
func NewHandler(ex *exchange.Exchange, authService *auth.AuthService, hub *stream.Hub, log zerolog.Logger) *Handler {
	return &Handler{
		exchange: ex,
		auth:     authService,
		hub:      hub,
		log:      log.With().Str("component", "api").Logger(),
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.log, err)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "time": time.Now().UTC()})
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup stages an account and sends the verification code
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	pending, err := h.auth.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Signup successful! Please check your email for the OTP code.",
		"email":   pending.Email,
	})
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// VerifyOTP completes a signup
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if len(strings.TrimSpace(req.OTP)) != 6 {
		writeMessage(w, http.StatusBadRequest, "OTP must be 6 digits")
		return
	}

	sess, err := h.auth.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Email verified successfully! Welcome aboard.",
		"token":   sess.Token,
		"user":    sess.User,
	})
}

type emailRequest struct {
	Email string `json:"email"`
}

// ResendOTP issues a fresh verification code
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.auth.ResendOTP(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "New OTP sent! Check your email.")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	sess, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrVerificationRequired) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message":              err.Error(),
			"requiresVerification": true,
			"email":                strings.ToLower(strings.TrimSpace(req.Email)),
		})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Me returns the authenticated user
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	user, err := h.auth.Me(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ForgotPassword sends a password reset code
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Password reset code sent to your email",
		"email":   strings.ToLower(strings.TrimSpace(req.Email)),
	})
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	ResetToken  string `json:"resetToken"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword sets a new password using a reset code
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Email, req.ResetToken, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password reset successful! You can now login with your new password.")
}

// GetPortfolio returns the user's portfolio, creating it on first access
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	p, err := h.exchange.GetPortfolio(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type placeOrderRequest struct {
	Symbol    string           `json:"symbol"`
	StockName string           `json:"stockName"`
	OrderType string           `json:"orderType"`
	Side      string           `json:"side"`
	Quantity  *decimal.Decimal `json:"quantity"`
	Price     *decimal.Decimal `json:"price"`
	Market    string           `json:"market"`
}

// PlaceOrder executes an order at the submitted price
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req placeOrderRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Quantity == nil || req.Price == nil {
		writeMessage(w, http.StatusBadRequest, "All fields are required")
		return
	}

	res, err := h.exchange.PlaceOrder(r.Context(), userID, exchange.OrderRequest{
		Symbol:    req.Symbol,
		StockName: req.StockName,
		OrderType: req.OrderType,
		Side:      req.Side,
		Quantity:  *req.Quantity,
		Price:     *req.Price,
		Market:    req.Market,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Order " + strings.ToLower(string(res.Order.Side)) + " successfully!",
		"order":   res.Order,
		"portfolio": map[string]interface{}{
			"balance":   res.Portfolio.Balance,
			"positions": res.Portfolio.Positions,
		},
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetOrders returns a page of the user's order history
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	page, err := h.exchange.OrderHistory(r.Context(), userID,
		queryInt(r, "page", 1), queryInt(r, "limit", exchange.DefaultPageSize))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": page.Orders,
		"pagination": map[string]int{
			"total": page.Total,
			"page":  page.Page,
			"pages": page.Pages,
		},
	})
}

// GetPositions returns the user's open positions
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	positions, err := h.exchange.Positions(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

type balanceRequest struct {
	Amount json.RawMessage `json:"amount"`
}

// SetBalance overrides the cash balance. The amount must be a JSON number.
func (h *Handler) SetBalance(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req balanceRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	raw := bytes.TrimSpace(req.Amount)
	amount, err := decimal.NewFromString(string(raw))
	if len(raw) == 0 || raw[0] == '"' || err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	p, err := h.exchange.SetBalance(r.Context(), userID, amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Balance updated successfully",
		"balance": p.Balance,
	})
}

// Stream upgrades to a websocket carrying the user's executions. Browsers
// cannot set headers on websocket requests, so the token may come in the
// query string.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	userID, err := h.auth.GetUserFromToken(token)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Token is not valid")
		return
	}
	h.hub.ServeWS(w, r, userID)
}
