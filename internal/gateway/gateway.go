package gateway

import (
	"context"

	"merocart/internal/model"

	"github.com/google/uuid"
)

// Adapter is the common contract every payment provider implements.
//
// BuildAuthorization produces whatever artifact the provider needs to collect
// payment: a hosted-session redirect URL, a signed form, or an immediate
// confirmation for cash on delivery. VerifyConfirmation authenticates an
// inbound confirmation regardless of the channel it arrived on; for signed
// providers it recomputes the signature over the exact signed fields, for
// session-based providers it performs a server-to-server lookup rather than
// trusting redirect parameters. Authentic means bound, too: a genuine
// confirmation that belongs to a different order is rejected the same way a
// forged one is.
//
// Adapters never retry on their own: a timeout or connection failure is
// surfaced wrapped in model.ErrGatewayUnavailable and the caller decides
// whether to resubmit, so a flaky network can never produce duplicate
// authorization attempts.
type Adapter interface {
	// Method identifies the payment method this adapter serves.
	Method() model.PaymentMethod

	// BuildAuthorization creates the provider-specific authorization artifact
	// for the order's total amount.
	BuildAuthorization(ctx context.Context, order *model.Order) (*Authorization, error)

	// VerifyConfirmation authenticates an inbound confirmation and reports
	// the provider's verdict.
	VerifyConfirmation(ctx context.Context, conf Confirmation) (*Verification, error)
}

// Authorization is the artifact handed back to the client to complete
// payment out-of-band.
type Authorization struct {
	// RedirectURL points at a hosted checkout or wallet payment page.
	RedirectURL string

	// FormAction and FormFields describe a signed form post for providers
	// that take a browser-submitted form instead of a redirect.
	FormAction string
	FormFields map[string]string

	// Confirmed is set when the provider needs no external round-trip and
	// payment is considered authorized immediately.
	Confirmed bool

	// Reference is the provider session or transaction reference, recorded
	// for later lookup.
	Reference string
}

// Confirmation carries an inbound provider notification, whichever channel
// delivered it: webhook push, browser redirect, or client-triggered verify.
type Confirmation struct {
	// OrderID is the order the confirmation claims to belong to. The
	// reconciliation layer always re-reads the order before trusting
	// anything else in here.
	OrderID uuid.UUID

	// Params holds query or form parameters from a redirect callback.
	Params map[string]string

	// Body is the raw webhook body, when delivered by push. Signature
	// verification runs over these exact bytes.
	Body []byte

	// Signature is the transport-level signature header, when present.
	Signature string

	// Reference is the provider session or transaction reference, when the
	// caller already knows it (redirects, client verify).
	Reference string

	// IssuedReference is the provider reference recorded on the payment
	// record when the authorization was built. Set by the reconciliation
	// layer, never by the inbound channel. Adapters whose confirmations
	// carry that reference must require equality before trusting anything
	// else: an authentic confirmation for one order must not settle another.
	IssuedReference string

	// OrderAmount is the total the order charges, set by the reconciliation
	// layer from the order record. Adapters whose providers report a settled
	// amount must require it to match.
	OrderAmount float64
}

// Verification is the adapter's verdict on a confirmation.
type Verification struct {
	// Authentic reports whether the confirmation really came from the
	// provider. A forged or tampered payload is not authentic regardless of
	// what its status fields claim.
	Authentic bool

	// Succeeded reports whether the provider confirmed payment.
	Succeeded bool

	// Pending reports that the provider has not resolved the payment yet.
	// Neither commit nor compensation applies.
	Pending bool

	// TransactionID is the provider transaction reference, used as the
	// idempotency key on the payment record.
	TransactionID string

	// RawPayload is the provider payload kept on the payment row for audit.
	RawPayload []byte
}

// Registry holds the configured adapters keyed by method.
type Registry struct {
	adapters map[model.PaymentMethod]Adapter
}

// NewRegistry creates a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[model.PaymentMethod]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Method()] = a
	}
	return &Registry{adapters: m}
}

// Lookup returns the adapter for a method.
func (r *Registry) Lookup(method model.PaymentMethod) (Adapter, error) {
	a, ok := r.adapters[method]
	if !ok {
		return nil, model.ErrInvalidMethod
	}
	return a, nil
}
