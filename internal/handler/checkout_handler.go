package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"merocart/internal/model"
	"merocart/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CheckoutHandler handles checkout and order HTTP requests.
type CheckoutHandler struct {
	service service.CheckoutService
	logger  zerolog.Logger
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(service service.CheckoutService, logger zerolog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
		logger:  logger.With().Str("handler", "checkout").Logger(),
	}
}

// Checkout handles POST /api/checkout requests.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, model.ErrCodeInvalidJSON, "method not allowed", h.logger)
		return
	}

	var req model.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	if req.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "user ID is required", h.logger)
		return
	}

	resp, err := h.service.Checkout(r.Context(), req.UserID, &req)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// GetOrder handles GET /api/orders/{id} requests.
func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, model.ErrCodeInvalidJSON, "method not allowed", h.logger)
		return
	}

	orderID, ok := h.orderIDFromPath(w, strings.TrimPrefix(r.URL.Path, "/api/orders/"))
	if !ok {
		return
	}

	resp, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	if resp == nil {
		writeError(w, http.StatusNotFound, model.ErrCodeOrderNotFound, "order not found", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Cancel handles POST /api/orders/{id}/cancel requests.
func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, model.ErrCodeInvalidJSON, "method not allowed", h.logger)
		return
	}

	idPart := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	idPart = strings.TrimSuffix(idPart, "/cancel")

	orderID, ok := h.orderIDFromPath(w, idPart)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	// The reason is optional; an empty or absent body is fine.
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := h.service.CancelOrder(r.Context(), orderID, body.Reason); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *CheckoutHandler) orderIDFromPath(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	if raw == "" {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "order ID is required", h.logger)
		return uuid.Nil, false
	}

	orderID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "invalid order ID format", h.logger)
		return uuid.Nil, false
	}

	return orderID, true
}
