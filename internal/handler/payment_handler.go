package handler

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"merocart/internal/gateway"
	"merocart/internal/model"
	"merocart/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxWebhookBody bounds how much of a webhook push is read.
const maxWebhookBody = 1 << 20

// PaymentHandler handles inbound payment confirmations: webhook pushes,
// browser redirect callbacks, and client-triggered verification. All three
// funnel into the same reconciliation service.
type PaymentHandler struct {
	recon  service.ReconciliationService
	logger zerolog.Logger
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(recon service.ReconciliationService, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		recon:  recon,
		logger: logger.With().Str("handler", "payment").Logger(),
	}
}

// Verify handles POST /api/payments/verify requests: the client reports a
// finished (or abandoned) redirect and asks for the order to be resolved.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, model.ErrCodeInvalidJSON, "method not allowed", h.logger)
		return
	}

	var req struct {
		OrderID   uuid.UUID         `json:"orderId"`
		Reference string            `json:"reference"`
		Params    map[string]string `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid request body", h.logger)
		return
	}

	if req.OrderID == uuid.Nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "order ID is required", h.logger)
		return
	}

	h.reconcile(w, r, gateway.Confirmation{
		OrderID:   req.OrderID,
		Reference: req.Reference,
		Params:    req.Params,
	})
}

// StripeWebhook handles POST /api/payments/webhook/stripe pushes. The raw
// body is passed through untouched; the adapter's signature check runs over
// these exact bytes.
func (h *PaymentHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, model.ErrCodeInvalidJSON, "method not allowed", h.logger)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "unreadable request body", h.logger)
		return
	}

	// The order id is lifted from the unverified payload purely to locate
	// the order row; nothing is trusted until the adapter has authenticated
	// the signature and cross-checked this same metadata.
	var event struct {
		Data struct {
			Object struct {
				Metadata struct {
					OrderID string `json:"order_id"`
				} `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, "invalid webhook body", h.logger)
		return
	}

	orderID, err := uuid.Parse(event.Data.Object.Metadata.OrderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "webhook carries no order ID", h.logger)
		return
	}

	h.reconcile(w, r, gateway.Confirmation{
		OrderID:   orderID,
		Body:      body,
		Signature: r.Header.Get("Stripe-Signature"),
	})
}

// KhaltiCallback handles GET /api/payments/callback/khalti redirects.
func (h *PaymentHandler) KhaltiCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	orderID, err := uuid.Parse(query.Get("purchase_order_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "callback carries no order ID", h.logger)
		return
	}

	params := make(map[string]string, len(query))
	for k := range query {
		params[k] = query.Get(k)
	}

	h.reconcile(w, r, gateway.Confirmation{
		OrderID:   orderID,
		Reference: query.Get("pidx"),
		Params:    params,
	})
}

// EsewaCallback handles GET /api/payments/callback/esewa redirects. The
// order id is lifted leniently from the unverified payload to locate the
// order; the adapter re-verifies everything.
func (h *PaymentHandler) EsewaCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params := make(map[string]string, len(query))
	for k := range query {
		params[k] = query.Get(k)
	}

	orderID, err := uuid.Parse(esewaTransactionUUID(params))
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "callback carries no order ID", h.logger)
		return
	}

	h.reconcile(w, r, gateway.Confirmation{
		OrderID: orderID,
		Params:  params,
	})
}

// reconcile funnels a confirmation into the reconciliation service and
// renders its verdict.
func (h *PaymentHandler) reconcile(w http.ResponseWriter, r *http.Request, conf gateway.Confirmation) {
	result, err := h.recon.Reconcile(r.Context(), conf)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// esewaTransactionUUID extracts the transaction_uuid from the redirect,
// whether it arrived as a base64 data blob or as flat query parameters.
func esewaTransactionUUID(params map[string]string) string {
	if data := params["data"]; data != "" {
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			raw, err = base64.URLEncoding.DecodeString(data)
		}
		if err != nil {
			return ""
		}

		var payload struct {
			TransactionUUID string `json:"transaction_uuid"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return ""
		}
		return payload.TransactionUUID
	}

	return params["transaction_uuid"]
}
