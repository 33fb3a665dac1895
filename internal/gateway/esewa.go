package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"merocart/internal/config"
	"merocart/internal/model"

	"github.com/rs/zerolog"
)

// Field orders are fixed by the provider. The request signature covers
// total_amount, transaction_uuid and product_code in exactly that order; the
// callback signs the list it names in signed_field_names, which must equal
// the published list below. Any other ordering is rejected outright rather
// than tried in multiple permutations: accepting several orderings would
// weaken the authenticity guarantee to the strength of its weakest variant.
const (
	esewaRequestSignedFields  = "total_amount,transaction_uuid,product_code"
	esewaCallbackSignedFields = "transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names"
)

// esewaAdapter implements Adapter for eSewa ePay v2, a signed-form provider.
// The browser posts a form whose fields carry an HMAC-SHA256 signature; the
// success redirect carries a base64 JSON payload (flat query parameters as a
// fallback) that is re-signed and compared before anything is trusted.
type esewaAdapter struct {
	cfg      config.EsewaConfig
	testMode bool
	logger   zerolog.Logger
}

// NewEsewa creates the eSewa adapter.
func NewEsewa(cfg config.EsewaConfig, testMode bool, logger zerolog.Logger) Adapter {
	return &esewaAdapter{
		cfg:      cfg,
		testMode: testMode,
		logger:   logger.With().Str("gateway", "esewa").Logger(),
	}
}

func (a *esewaAdapter) Method() model.PaymentMethod {
	return model.MethodEsewa
}

// BuildAuthorization returns the signed form the client posts to the
// provider. No external call is involved; the signature alone authorizes the
// request.
func (a *esewaAdapter) BuildAuthorization(ctx context.Context, order *model.Order) (*Authorization, error) {
	totalAmount := formatAmount(order.TotalAmount)
	transactionUUID := order.ID.String()

	message := fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s",
		totalAmount, transactionUUID, a.cfg.ProductCode)
	signature := a.sign(message)

	fields := map[string]string{
		"amount":                  formatAmount(order.Subtotal - order.Discount),
		"tax_amount":              "0",
		"product_service_charge":  "0",
		"product_delivery_charge": formatAmount(order.ShippingFee),
		"total_amount":            totalAmount,
		"transaction_uuid":        transactionUUID,
		"product_code":            a.cfg.ProductCode,
		"success_url":             a.cfg.SuccessURL,
		"failure_url":             a.cfg.FailureURL,
		"signed_field_names":      esewaRequestSignedFields,
		"signature":               signature,
	}

	a.logger.Debug().
		Str("order_id", order.ID.String()).
		Str("total_amount", totalAmount).
		Msg("built signed form")

	return &Authorization{
		FormAction: a.cfg.FormURL,
		FormFields: fields,
		Reference:  transactionUUID,
	}, nil
}

// esewaCallback is the provider's success payload.
type esewaCallback struct {
	TransactionCode  string `json:"transaction_code"`
	Status           string `json:"status"`
	TotalAmount      string `json:"total_amount"`
	TransactionUUID  string `json:"transaction_uuid"`
	ProductCode      string `json:"product_code"`
	SignedFieldNames string `json:"signed_field_names"`
	Signature        string `json:"signature"`
}

// VerifyConfirmation decodes the callback, recomputes the signature over the
// provider's signed field list and compares byte-for-byte. A mismatch means
// not authentic no matter what the status field claims.
func (a *esewaAdapter) VerifyConfirmation(ctx context.Context, conf Confirmation) (*Verification, error) {
	if a.testMode {
		return &Verification{
			Authentic:     true,
			Succeeded:     true,
			TransactionID: "TEST-" + conf.OrderID.String(),
			RawPayload:    []byte(`{"test_mode":true}`),
		}, nil
	}

	cb, raw, err := a.decodeCallback(conf)
	if err != nil {
		a.logger.Warn().Err(err).Str("order_id", conf.OrderID.String()).Msg("undecodable callback")
		return &Verification{Authentic: false, RawPayload: raw}, nil
	}

	if cb.SignedFieldNames != esewaCallbackSignedFields {
		a.logger.Error().
			Str("order_id", conf.OrderID.String()).
			Str("signed_field_names", cb.SignedFieldNames).
			Msg("callback names an unexpected signed field list")
		return &Verification{Authentic: false, RawPayload: raw}, nil
	}

	message := fmt.Sprintf(
		"transaction_code=%s,status=%s,total_amount=%s,transaction_uuid=%s,product_code=%s,signed_field_names=%s",
		cb.TransactionCode, cb.Status, cb.TotalAmount, cb.TransactionUUID,
		cb.ProductCode, cb.SignedFieldNames,
	)
	expected := a.sign(message)

	if !hmac.Equal([]byte(expected), []byte(cb.Signature)) {
		a.logger.Error().
			Str("order_id", conf.OrderID.String()).
			Str("transaction_uuid", cb.TransactionUUID).
			Msg("callback signature mismatch")
		return &Verification{Authentic: false, RawPayload: raw}, nil
	}

	// The signature proves the provider issued this callback, not that it
	// belongs to this order. The signed transaction_uuid must name the order
	// being reconciled, or a genuine callback for a cheap order could be
	// replayed against an expensive one.
	if cb.TransactionUUID != conf.OrderID.String() {
		a.logger.Error().
			Str("order_id", conf.OrderID.String()).
			Str("transaction_uuid", cb.TransactionUUID).
			Msg("callback is signed for a different order")
		return &Verification{Authentic: false, RawPayload: raw}, nil
	}

	v := &Verification{
		Authentic:     true,
		TransactionID: cb.TransactionCode,
		RawPayload:    raw,
	}

	switch cb.Status {
	case "COMPLETE":
		v.Succeeded = true
	case "PENDING", "AMBIGUOUS":
		v.Pending = true
	}

	return v, nil
}

// decodeCallback extracts the callback from the base64 data parameter, or
// from flat query parameters as a fallback.
func (a *esewaAdapter) decodeCallback(conf Confirmation) (*esewaCallback, []byte, error) {
	if data := conf.Params["data"]; data != "" {
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			raw, err = base64.URLEncoding.DecodeString(data)
		}
		if err != nil {
			return nil, []byte(data), fmt.Errorf("callback data is not base64: %w", err)
		}

		var cb esewaCallback
		if err := json.Unmarshal(raw, &cb); err != nil {
			return nil, raw, fmt.Errorf("callback data is not JSON: %w", err)
		}
		return &cb, raw, nil
	}

	cb := &esewaCallback{
		TransactionCode:  conf.Params["transaction_code"],
		Status:           conf.Params["status"],
		TotalAmount:      conf.Params["total_amount"],
		TransactionUUID:  conf.Params["transaction_uuid"],
		ProductCode:      conf.Params["product_code"],
		SignedFieldNames: conf.Params["signed_field_names"],
		Signature:        conf.Params["signature"],
	}
	if cb.TransactionUUID == "" {
		return nil, nil, fmt.Errorf("callback carries no transaction fields")
	}

	raw, _ := json.Marshal(cb)
	return cb, raw, nil
}

// sign computes the base64 HMAC-SHA256 of message under the secret key.
func (a *esewaAdapter) sign(message string) string {
	mac := hmac.New(sha256.New, []byte(a.cfg.SecretKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// formatAmount renders an amount the way the provider expects it echoed back.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
