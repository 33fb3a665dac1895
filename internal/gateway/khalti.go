package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"merocart/internal/config"
	"merocart/internal/model"

	"github.com/rs/zerolog"
)

// khaltiAdapter implements Adapter for the Khalti ePayment API. The initiate
// call returns a payment URL and an opaque pidx; the redirect back to us
// carries that pidx, which is never trusted on its own — every confirmation
// is re-verified through the lookup endpoint.
type khaltiAdapter struct {
	cfg      config.KhaltiConfig
	client   *http.Client
	testMode bool
	logger   zerolog.Logger
}

// NewKhalti creates the Khalti adapter.
func NewKhalti(cfg config.KhaltiConfig, timeout time.Duration, testMode bool, logger zerolog.Logger) Adapter {
	return &khaltiAdapter{
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout},
		testMode: testMode,
		logger:   logger.With().Str("gateway", "khalti").Logger(),
	}
}

func (a *khaltiAdapter) Method() model.PaymentMethod {
	return model.MethodKhalti
}

type khaltiInitiateRequest struct {
	ReturnURL         string `json:"return_url"`
	WebsiteURL        string `json:"website_url"`
	Amount            int64  `json:"amount"` // paisa
	PurchaseOrderID   string `json:"purchase_order_id"`
	PurchaseOrderName string `json:"purchase_order_name"`
}

type khaltiInitiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
}

// BuildAuthorization calls the initiate endpoint and returns the wallet's
// payment URL.
func (a *khaltiAdapter) BuildAuthorization(ctx context.Context, order *model.Order) (*Authorization, error) {
	if a.testMode {
		pidx := "test-" + order.ID.String()
		return &Authorization{RedirectURL: a.cfg.ReturnURL, Reference: pidx}, nil
	}

	reqBody := khaltiInitiateRequest{
		ReturnURL:         a.cfg.ReturnURL,
		WebsiteURL:        a.cfg.ReturnURL,
		Amount:            int64(math.Round(order.TotalAmount * 100)),
		PurchaseOrderID:   order.ID.String(),
		PurchaseOrderName: "Order " + order.ID.String(),
	}

	var resp khaltiInitiateResponse
	status, err := a.post(ctx, a.cfg.BaseURL+"/epayment/initiate/", reqBody, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: khalti initiate: %v", model.ErrGatewayUnavailable, err)
	}

	switch {
	case status == http.StatusOK:
		// fall through
	case status >= 500:
		return nil, fmt.Errorf("%w: khalti initiate returned %d", model.ErrGatewayUnavailable, status)
	default:
		a.logger.Warn().Int("status", status).Str("order_id", order.ID.String()).Msg("initiate rejected")
		return nil, fmt.Errorf("%w: khalti initiate returned %d", model.ErrPaymentDeclined, status)
	}

	if resp.Pidx == "" || resp.PaymentURL == "" {
		return nil, fmt.Errorf("%w: khalti initiate returned an incomplete response", model.ErrGatewayUnavailable)
	}

	a.logger.Debug().
		Str("order_id", order.ID.String()).
		Str("pidx", resp.Pidx).
		Msg("payment initiated")

	return &Authorization{
		RedirectURL: resp.PaymentURL,
		Reference:   resp.Pidx,
	}, nil
}

type khaltiLookupRequest struct {
	Pidx string `json:"pidx"`
}

type khaltiLookupResponse struct {
	Pidx          string  `json:"pidx"`
	TotalAmount   int64   `json:"total_amount"`
	Status        string  `json:"status"`
	TransactionID *string `json:"transaction_id"`
}

// VerifyConfirmation re-verifies the pidx through the lookup endpoint. The
// redirect parameters carry a status of their own, but only the
// server-to-server answer counts, and only for the pidx the initiate call
// issued for this order, charging this order's amount.
func (a *khaltiAdapter) VerifyConfirmation(ctx context.Context, conf Confirmation) (*Verification, error) {
	if a.testMode {
		return &Verification{
			Authentic:     true,
			Succeeded:     true,
			TransactionID: "TEST-" + conf.OrderID.String(),
			RawPayload:    []byte(`{"test_mode":true}`),
		}, nil
	}

	pidx := conf.Reference
	if pidx == "" {
		pidx = conf.Params["pidx"]
	}
	if pidx == "" {
		a.logger.Warn().Str("order_id", conf.OrderID.String()).Msg("confirmation carries no pidx")
		return &Verification{Authentic: false}, nil
	}

	// The lookup response names no order, so the pidx itself is the only
	// link between confirmation and order. It must be the one the initiate
	// call issued for this order; any other pidx, however genuine, settles
	// someone else's payment.
	if conf.IssuedReference == "" || pidx != conf.IssuedReference {
		a.logger.Error().
			Str("order_id", conf.OrderID.String()).
			Str("pidx", pidx).
			Msg("pidx is not the reference issued for this order")
		return &Verification{Authentic: false}, nil
	}

	var resp khaltiLookupResponse
	status, err := a.post(ctx, a.cfg.BaseURL+"/epayment/lookup/", khaltiLookupRequest{Pidx: pidx}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: khalti lookup: %v", model.ErrGatewayUnavailable, err)
	}

	switch {
	case status == http.StatusOK:
		// fall through
	case status >= 500:
		return nil, fmt.Errorf("%w: khalti lookup returned %d", model.ErrGatewayUnavailable, status)
	default:
		// The provider does not know this pidx: the confirmation is forged
		// or stale, not a transient failure.
		a.logger.Error().
			Int("status", status).
			Str("order_id", conf.OrderID.String()).
			Str("pidx", pidx).
			Msg("lookup rejected pidx")
		return &Verification{Authentic: false}, nil
	}

	raw, _ := json.Marshal(resp)
	v := &Verification{
		Authentic:  true,
		RawPayload: raw,
	}
	if resp.TransactionID != nil {
		v.TransactionID = *resp.TransactionID
	}

	switch resp.Status {
	case "Completed":
		if want := int64(math.Round(conf.OrderAmount * 100)); resp.TotalAmount != want {
			a.logger.Error().
				Str("order_id", conf.OrderID.String()).
				Str("pidx", pidx).
				Int64("settled_amount", resp.TotalAmount).
				Int64("order_amount", want).
				Msg("settled amount does not match the order total")
			return &Verification{Authentic: false, RawPayload: raw}, nil
		}
		v.Succeeded = true
	case "Pending", "Initiated":
		v.Pending = true
	}

	return v, nil
}

// post sends a JSON request authenticated with the merchant key and decodes
// the JSON response. The transport error is returned as-is for the caller to
// classify.
func (a *khaltiAdapter) post(ctx context.Context, url string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+a.cfg.SecretKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}

	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("undecodable response: %w", err)
		}
	}

	return resp.StatusCode, nil
}
