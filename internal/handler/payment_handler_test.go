package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"merocart/internal/gateway"
	"merocart/internal/model"
	"merocart/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockReconciliationService is a mock implementation of ReconciliationService.
type MockReconciliationService struct {
	mock.Mock
}

func (m *MockReconciliationService) Reconcile(ctx context.Context, conf gateway.Confirmation) (*service.ReconcileResult, error) {
	args := m.Called(ctx, conf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReconcileResult), args.Error(1)
}

func committedResult(orderID uuid.UUID) *service.ReconcileResult {
	return &service.ReconcileResult{
		OrderID:       orderID,
		Outcome:       service.OutcomeCommitted,
		OrderStatus:   model.OrderConfirmed,
		PaymentStatus: model.PaymentCompleted,
	}
}

func TestPaymentHandler_Verify(t *testing.T) {
	logger := zerolog.Nop()
	orderID := uuid.New()

	mockRecon := new(MockReconciliationService)
	h := NewPaymentHandler(mockRecon, logger)

	mockRecon.On("Reconcile", mock.Anything, gateway.Confirmation{
		OrderID:   orderID,
		Reference: "pidx-abc",
	}).Return(committedResult(orderID), nil)

	body := bytes.NewBufferString(fmt.Sprintf(`{"orderId":%q,"reference":"pidx-abc"}`, orderID))
	req := httptest.NewRequest(http.MethodPost, "/api/payments/verify", body)
	rec := httptest.NewRecorder()

	h.Verify(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result service.ReconcileResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, service.OutcomeCommitted, result.Outcome)
	assert.Equal(t, orderID, result.OrderID)
	mockRecon.AssertExpectations(t)
}

func TestPaymentHandler_Verify_MissingOrderID(t *testing.T) {
	logger := zerolog.Nop()

	mockRecon := new(MockReconciliationService)
	h := NewPaymentHandler(mockRecon, logger)

	body := bytes.NewBufferString(`{"reference":"pidx-abc"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/verify", body)
	rec := httptest.NewRecorder()

	h.Verify(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockRecon.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
}

func TestPaymentHandler_Verify_TamperedConfirmation(t *testing.T) {
	logger := zerolog.Nop()
	orderID := uuid.New()

	mockRecon := new(MockReconciliationService)
	h := NewPaymentHandler(mockRecon, logger)

	mockRecon.On("Reconcile", mock.Anything, mock.AnythingOfType("gateway.Confirmation")).
		Return(nil, model.ErrTamperedConfirmation)

	body := bytes.NewBufferString(fmt.Sprintf(`{"orderId":%q}`, orderID))
	req := httptest.NewRequest(http.MethodPost, "/api/payments/verify", body)
	rec := httptest.NewRecorder()

	h.Verify(rec, req)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var errResp model.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "Payment could not be completed", errResp.Message)
}

func TestPaymentHandler_StripeWebhook(t *testing.T) {
	logger := zerolog.Nop()
	orderID := uuid.New()

	mockRecon := new(MockReconciliationService)
	h := NewPaymentHandler(mockRecon, logger)

	body := []byte(fmt.Sprintf(
		`{"type":"checkout.session.completed","data":{"object":{"id":"cs_1","metadata":{"order_id":%q}}}}`,
		orderID,
	))

	mockRecon.On("Reconcile", mock.Anything, gateway.Confirmation{
		OrderID:   orderID,
		Body:      body,
		Signature: "t=1,v1=abc",
	}).Return(committedResult(orderID), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()

	h.StripeWebhook(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	mockRecon.AssertExpectations(t)
}

func TestPaymentHandler_StripeWebhook_NoOrderID(t *testing.T) {
	logger := zerolog.Nop()

	mockRecon := new(MockReconciliationService)
	h := NewPaymentHandler(mockRecon, logger)

	body := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook/stripe", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.StripeWebhook(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockRecon.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
}

func TestPaymentHandler_KhaltiCallback(t *testing.T) {
	logger := zerolog.Nop()
	orderID := uuid.New()

	mockRecon := new(MockReconciliationService)
	h := NewPaymentHandler(mockRecon, logger)

	mockRecon.On("Reconcile", mock.Anything, mock.MatchedBy(func(conf gateway.Confirmation) bool {
		return conf.OrderID == orderID && conf.Reference == "pidx-xyz" && conf.Params["status"] == "Completed"
	})).Return(committedResult(orderID), nil)

	target := "/api/payments/callback/khalti?" + url.Values{
		"pidx":              {"pidx-xyz"},
		"purchase_order_id": {orderID.String()},
		"status":            {"Completed"},
	}.Encode()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()

	h.KhaltiCallback(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	mockRecon.AssertExpectations(t)
}

func TestPaymentHandler_KhaltiCallback_NoOrderID(t *testing.T) {
	logger := zerolog.Nop()

	mockRecon := new(MockReconciliationService)
	h := NewPaymentHandler(mockRecon, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/payments/callback/khalti?pidx=pidx-xyz", nil)
	rec := httptest.NewRecorder()

	h.KhaltiCallback(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockRecon.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
}

func TestPaymentHandler_EsewaCallback_Base64Data(t *testing.T) {
	logger := zerolog.Nop()
	orderID := uuid.New()

	mockRecon := new(MockReconciliationService)
	h := NewPaymentHandler(mockRecon, logger)

	payload, err := json.Marshal(map[string]string{
		"transaction_uuid": orderID.String(),
		"status":           "COMPLETE",
	})
	require.NoError(t, err)
	data := base64.StdEncoding.EncodeToString(payload)

	mockRecon.On("Reconcile", mock.Anything, mock.MatchedBy(func(conf gateway.Confirmation) bool {
		return conf.OrderID == orderID && conf.Params["data"] == data
	})).Return(committedResult(orderID), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/payments/callback/esewa?data="+url.QueryEscape(data), nil)
	rec := httptest.NewRecorder()

	h.EsewaCallback(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	mockRecon.AssertExpectations(t)
}

func TestPaymentHandler_EsewaCallback_FlatParams(t *testing.T) {
	logger := zerolog.Nop()
	orderID := uuid.New()

	mockRecon := new(MockReconciliationService)
	h := NewPaymentHandler(mockRecon, logger)

	mockRecon.On("Reconcile", mock.Anything, mock.MatchedBy(func(conf gateway.Confirmation) bool {
		return conf.OrderID == orderID
	})).Return(committedResult(orderID), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/payments/callback/esewa?transaction_uuid="+orderID.String(), nil)
	rec := httptest.NewRecorder()

	h.EsewaCallback(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	mockRecon.AssertExpectations(t)
}

func TestPaymentHandler_EsewaCallback_Undecodable(t *testing.T) {
	logger := zerolog.Nop()

	mockRecon := new(MockReconciliationService)
	h := NewPaymentHandler(mockRecon, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/payments/callback/esewa?data=!!!", nil)
	rec := httptest.NewRecorder()

	h.EsewaCallback(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockRecon.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
}
