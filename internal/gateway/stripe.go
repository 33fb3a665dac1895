package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"merocart/internal/config"
	"merocart/internal/model"

	"github.com/rs/zerolog"
)

// webhookTolerance bounds how old a signed webhook timestamp may be before
// the event is treated as a replay.
const webhookTolerance = 5 * time.Minute

// stripeAdapter implements Adapter for Stripe Checkout hosted sessions.
// Success reaches us twice: an event push signed with the webhook secret
// over the raw request body, and a browser redirect carrying a session id.
// The redirect alone is never proof of payment; the session is re-fetched
// server-to-server before any state changes.
type stripeAdapter struct {
	cfg      config.StripeConfig
	client   *http.Client
	testMode bool
	now      func() time.Time
	logger   zerolog.Logger
}

// NewStripe creates the Stripe adapter.
func NewStripe(cfg config.StripeConfig, timeout time.Duration, testMode bool, logger zerolog.Logger) Adapter {
	return &stripeAdapter{
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout},
		testMode: testMode,
		now:      time.Now,
		logger:   logger.With().Str("gateway", "stripe").Logger(),
	}
}

func (a *stripeAdapter) Method() model.PaymentMethod {
	return model.MethodStripe
}

// checkoutSession is the subset of the session object we rely on.
type checkoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	PaymentIntent string `json:"payment_intent"`
	Metadata      struct {
		OrderID string `json:"order_id"`
	} `json:"metadata"`
}

// BuildAuthorization creates a hosted checkout session keyed by the order id
// in its metadata and returns the session URL for the client to follow.
func (a *stripeAdapter) BuildAuthorization(ctx context.Context, order *model.Order) (*Authorization, error) {
	if a.testMode {
		ref := "cs_test_" + order.ID.String()
		return &Authorization{RedirectURL: a.cfg.SuccessURL, Reference: ref}, nil
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", order.ID.String())
	form.Set("metadata[order_id]", order.ID.String())
	form.Set("success_url", a.cfg.SuccessURL+"?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", a.cfg.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][product_data][name]", "Order "+order.ID.String())
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(int64(math.Round(order.TotalAmount*100)), 10))

	session, status, err := a.callSessions(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/checkout/sessions", form)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe session create: %v", model.ErrGatewayUnavailable, err)
	}

	switch {
	case status == http.StatusOK:
		// fall through
	case status >= 500:
		return nil, fmt.Errorf("%w: stripe session create returned %d", model.ErrGatewayUnavailable, status)
	default:
		a.logger.Warn().Int("status", status).Str("order_id", order.ID.String()).Msg("session create rejected")
		return nil, fmt.Errorf("%w: stripe session create returned %d", model.ErrPaymentDeclined, status)
	}

	a.logger.Debug().
		Str("order_id", order.ID.String()).
		Str("session_id", session.ID).
		Msg("checkout session created")

	return &Authorization{
		RedirectURL: session.URL,
		Reference:   session.ID,
	}, nil
}

// VerifyConfirmation authenticates either a signed webhook push (raw body +
// signature header) or a redirect/poll carrying a session id that is
// re-fetched server-to-server.
func (a *stripeAdapter) VerifyConfirmation(ctx context.Context, conf Confirmation) (*Verification, error) {
	if a.testMode {
		return &Verification{
			Authentic:     true,
			Succeeded:     true,
			TransactionID: "TEST-" + conf.OrderID.String(),
			RawPayload:    []byte(`{"test_mode":true}`),
		}, nil
	}

	if len(conf.Body) > 0 {
		return a.verifyWebhook(conf)
	}
	return a.verifySession(ctx, conf)
}

// verifyWebhook recomputes the HMAC over the exact raw body bytes under the
// provider-issued signing secret.
func (a *stripeAdapter) verifyWebhook(conf Confirmation) (*Verification, error) {
	ts, signatures, err := parseSignatureHeader(conf.Signature)
	if err != nil {
		a.logger.Error().Err(err).Msg("malformed webhook signature header")
		return &Verification{Authentic: false, RawPayload: conf.Body}, nil
	}

	if d := a.now().Sub(time.Unix(ts, 0)); d > webhookTolerance || d < -webhookTolerance {
		a.logger.Error().Int64("timestamp", ts).Msg("webhook timestamp outside tolerance")
		return &Verification{Authentic: false, RawPayload: conf.Body}, nil
	}

	signed := strconv.FormatInt(ts, 10) + "." + string(conf.Body)
	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write([]byte(signed))
	expected := hex.EncodeToString(mac.Sum(nil))

	verified := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			verified = true
			break
		}
	}
	if !verified {
		a.logger.Error().Msg("webhook signature mismatch")
		return &Verification{Authentic: false, RawPayload: conf.Body}, nil
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Object checkoutSession `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(conf.Body, &event); err != nil {
		a.logger.Error().Err(err).Msg("undecodable webhook body")
		return &Verification{Authentic: false, RawPayload: conf.Body}, nil
	}

	session := event.Data.Object
	if session.Metadata.OrderID != conf.OrderID.String() {
		a.logger.Error().
			Str("order_id", conf.OrderID.String()).
			Str("session_order_id", session.Metadata.OrderID).
			Msg("webhook session belongs to a different order")
		return &Verification{Authentic: false, RawPayload: conf.Body}, nil
	}

	v := &Verification{
		Authentic:     true,
		TransactionID: transactionRef(session),
		RawPayload:    conf.Body,
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		v.Succeeded = session.PaymentStatus == "paid"
		v.Pending = !v.Succeeded && session.Status == "open"
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		// terminal failure, Succeeded stays false
	default:
		v.Pending = true
	}

	return v, nil
}

// verifySession re-fetches the session by id; the provider's answer, not the
// redirect query string, decides the outcome.
func (a *stripeAdapter) verifySession(ctx context.Context, conf Confirmation) (*Verification, error) {
	sessionID := conf.Reference
	if sessionID == "" {
		sessionID = conf.Params["session_id"]
	}
	if sessionID == "" {
		a.logger.Warn().Str("order_id", conf.OrderID.String()).Msg("confirmation carries no session id")
		return &Verification{Authentic: false}, nil
	}

	session, status, err := a.callSessions(ctx, http.MethodGet, a.cfg.BaseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe session fetch: %v", model.ErrGatewayUnavailable, err)
	}

	switch {
	case status == http.StatusOK:
		// fall through
	case status >= 500:
		return nil, fmt.Errorf("%w: stripe session fetch returned %d", model.ErrGatewayUnavailable, status)
	default:
		a.logger.Error().
			Int("status", status).
			Str("order_id", conf.OrderID.String()).
			Str("session_id", sessionID).
			Msg("provider does not know this session")
		return &Verification{Authentic: false}, nil
	}

	if session.Metadata.OrderID != conf.OrderID.String() {
		a.logger.Error().
			Str("order_id", conf.OrderID.String()).
			Str("session_order_id", session.Metadata.OrderID).
			Msg("session belongs to a different order")
		return &Verification{Authentic: false}, nil
	}

	raw, _ := json.Marshal(session)
	v := &Verification{
		Authentic:     true,
		TransactionID: transactionRef(*session),
		RawPayload:    raw,
	}

	switch {
	case session.PaymentStatus == "paid":
		v.Succeeded = true
	case session.Status == "open":
		v.Pending = true
	}

	return v, nil
}

// callSessions performs an authenticated call against the sessions API.
func (a *stripeAdapter) callSessions(ctx context.Context, method, endpoint string, form url.Values) (*checkoutSession, int, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}

	session := &checkoutSession{}
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(data, session); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("undecodable response: %w", err)
		}
	}

	return session, resp.StatusCode, nil
}

// parseSignatureHeader splits the "t=<ts>,v1=<sig>[,v1=<sig>...]" header.
func parseSignatureHeader(header string) (int64, []string, error) {
	var (
		ts         int64
		signatures []string
		err        error
	)

	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("invalid timestamp %q", v)
			}
		case "v1":
			signatures = append(signatures, v)
		}
	}

	if ts == 0 || len(signatures) == 0 {
		return 0, nil, fmt.Errorf("header missing timestamp or signature")
	}

	return ts, signatures, nil
}

// transactionRef prefers the payment intent as the durable transaction
// reference, falling back to the session id.
func transactionRef(s checkoutSession) string {
	if s.PaymentIntent != "" {
		return s.PaymentIntent
	}
	return s.ID
}
