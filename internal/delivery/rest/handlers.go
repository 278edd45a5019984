package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/NasaVasa/pricealert/internal/usecase"
	"go.uber.org/zap"
)

type UserService interface {
	Authenticator
	Register(ctx context.Context, username, password, email string, telegramChatID *int64) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, error)
}

type AlertService interface {
	CreateAlert(ctx context.Context, userID uint, symbol, threshold string) (*domain.Alert, bool, error)
	SoftDelete(ctx context.Context, userID, alertID uint) error
	HardDelete(ctx context.Context, userID, alertID uint) error
	ListAlerts(ctx context.Context, userID uint, status string, page, perPage int) (usecase.AlertPage, error)
	ListByStatus(ctx context.Context, userID uint, status string) ([]domain.Alert, error)
}

type PriceReader interface {
	Latest(ctx context.Context, symbol string) (*domain.Tick, error)
}

type FeedStatus interface {
	State() usecase.FeedState
}

type Handlers struct {
	users   UserService
	alerts  AlertService
	prices  PriceReader
	feed    FeedStatus
	metrics http.Handler
	logger  *zap.Logger
}

// NewHandlers builds the API. prices, feed and metrics may be nil, which
// disables the routes that need them.
func NewHandlers(users UserService, alerts AlertService, prices PriceReader, feed FeedStatus, metrics http.Handler, logger *zap.Logger) *Handlers {
	return &Handlers{users: users, alerts: alerts, prices: prices, feed: feed, metrics: metrics, logger: logger}
}

func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /signup", h.signup)
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("POST /alerts/create", requireAuth(h.users, h.createAlert))
	mux.HandleFunc("GET /alerts", requireAuth(h.users, h.listAlerts))
	mux.HandleFunc("GET /alerts/{status}", requireAuth(h.users, h.listByStatus))
	mux.HandleFunc("DELETE /alerts/delete/{id}", requireAuth(h.users, h.softDelete))
	mux.HandleFunc("DELETE /alerts/delete/real/{id}", requireAuth(h.users, h.hardDelete))
	mux.HandleFunc("GET /healthz", h.healthz)
	if h.prices != nil {
		mux.HandleFunc("GET /prices/{symbol}", h.latestPrice)
	}
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
	return withRequestLog(h.logger, mux)
}

type signupRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Email          string `json:"email"`
	TelegramChatID *int64 `json:"telegram_chat_id,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createAlertRequest struct {
	Coin        string      `json:"coin"`
	TargetPrice json.Number `json:"target_price"`
}

type alertResponse struct {
	ID          uint       `json:"id"`
	Coin        string     `json:"coin"`
	TargetPrice string     `json:"target_price"`
	Status      string     `json:"status"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
}

type priceResponse struct {
	Symbol    string    `json:"symbol"`
	Price     string    `json:"price"`
	EventTime time.Time `json:"event_time"`
}

func (h *Handlers) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Missing required fields (username, password, and email)")
		return
	}
	user, err := h.users.Register(r.Context(), req.Username, req.Password, req.Email, req.TelegramChatID)
	if err != nil {
		h.writeError(w, r, "signup", err)
		return
	}
	h.logger.Info("user signed up", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	writeMessage(w, http.StatusCreated, "User signed up successfully")
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Missing required fields (username and password)")
		return
	}
	token, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Login successful", "access_token": token})
}

func (h *Handlers) createAlert(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	var req createAlertRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Coin == "" || req.TargetPrice == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required fields (coin and target_price)")
		return
	}

	alert, revived, err := h.alerts.CreateAlert(r.Context(), userID, req.Coin, req.TargetPrice.String())
	if err != nil {
		h.writeError(w, r, "create alert", err)
		return
	}
	if revived {
		h.logger.Info("alert revived", zap.Uint("user_id", userID), zap.Uint("alert_id", alert.ID))
		writeJSON(w, http.StatusOK, map[string]any{"message": "Alert updated successfully", "alert": toAlertResponse(*alert)})
		return
	}
	h.logger.Info("alert created", zap.Uint("user_id", userID), zap.Uint("alert_id", alert.ID), zap.String("symbol", alert.Symbol))
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Alert created successfully", "alert": toAlertResponse(*alert)})
}

func (h *Handlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	query := r.URL.Query()
	page := queryInt(query.Get("page"), 1)
	perPage := queryInt(query.Get("per_page"), usecase.DefaultPerPage)

	result, err := h.alerts.ListAlerts(r.Context(), userID, query.Get("status"), page, perPage)
	if err != nil {
		h.writeError(w, r, "list alerts", err)
		return
	}
	if len(result.Alerts) == 0 {
		writeMessage(w, http.StatusNotFound, "No alerts found for the current user")
		return
	}

	header := w.Header()
	header.Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	header.Set("X-Total-Pages", strconv.Itoa(result.Pages()))
	header.Set("X-Current-Page", strconv.Itoa(result.Page))
	header.Set("X-Per-Page", strconv.Itoa(result.PerPage))
	writeJSON(w, http.StatusOK, map[string]any{"alerts": toAlertResponses(result.Alerts)})
}

func (h *Handlers) listByStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	status := r.PathValue("status")
	alerts, err := h.alerts.ListByStatus(r.Context(), userID, status)
	if err != nil {
		h.writeError(w, r, "list alerts by status", err)
		return
	}
	if len(alerts) == 0 {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("No %s alerts found for the current user", status))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": toAlertResponses(alerts)})
}

func (h *Handlers) softDelete(w http.ResponseWriter, r *http.Request) {
	h.deleteAlert(w, r, "Alert marked as deleted", h.alerts.SoftDelete)
}

func (h *Handlers) hardDelete(w http.ResponseWriter, r *http.Request) {
	h.deleteAlert(w, r, "Alert deleted successfully", h.alerts.HardDelete)
}

func (h *Handlers) deleteAlert(w http.ResponseWriter, r *http.Request, done string, remove func(ctx context.Context, userID, alertID uint) error) {
	userID, _ := UserIDFrom(r.Context())
	alertID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusNotFound, "Alert not found or unauthorized")
		return
	}
	if err := remove(r.Context(), userID, uint(alertID)); err != nil {
		h.writeError(w, r, "delete alert", err)
		return
	}
	h.logger.Info("alert removed", zap.Uint("user_id", userID), zap.Uint64("alert_id", alertID), zap.String("result", done))
	writeMessage(w, http.StatusOK, done)
}

func (h *Handlers) latestPrice(w http.ResponseWriter, r *http.Request) {
	tick, err := h.prices.Latest(r.Context(), r.PathValue("symbol"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "No recent price for this coin")
			return
		}
		h.writeError(w, r, "latest price", err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{Symbol: tick.Symbol, Price: tick.Price.String(), EventTime: tick.EventTime})
}

func (h *Handlers) healthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if h.feed != nil {
		body["feed"] = h.feed.State().String()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, message := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
	} else {
		h.logger.Warn(op+" rejected", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
	}
	writeMessage(w, status, message)
}

func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, usecase.ErrMissingFields):
		return http.StatusBadRequest, "Missing required fields (username, password, and email)"
	case errors.Is(err, usecase.ErrPasswordTooLong):
		return http.StatusBadRequest, "Password must be at most 72 bytes"
	case errors.Is(err, usecase.ErrInvalidEmail):
		return http.StatusBadRequest, "Invalid email address"
	case errors.Is(err, usecase.ErrUsernameTaken):
		return http.StatusBadRequest, "Username already exists"
	case errors.Is(err, usecase.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, usecase.ErrUserNotRegistered):
		return http.StatusUnauthorized, "User not registered"
	case errors.Is(err, usecase.ErrInvalidSymbol):
		return http.StatusBadRequest, "Invalid coin symbol"
	case errors.Is(err, usecase.ErrInvalidThreshold):
		return http.StatusBadRequest, "Target price must be a positive number"
	case errors.Is(err, usecase.ErrInvalidStatus):
		return http.StatusBadRequest, "Invalid status provided"
	case errors.Is(err, usecase.ErrAlertExists):
		return http.StatusBadRequest, "You already have an alert for this coin"
	case errors.Is(err, usecase.ErrAlertNotFound):
		return http.StatusNotFound, "Alert not found or unauthorized"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func toAlertResponses(alerts []domain.Alert) []alertResponse {
	out := make([]alertResponse, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, toAlertResponse(alert))
	}
	return out
}

func toAlertResponse(alert domain.Alert) alertResponse {
	return alertResponse{
		ID:          alert.ID,
		Coin:        alert.Symbol,
		TargetPrice: alert.Threshold.String(),
		Status:      string(alert.Status),
		TriggeredAt: alert.TriggeredAt,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return decoder.Decode(v)
}

func queryInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
