package router

import (
	"net/http"
	"strings"

	"merocart/internal/handler"
	"merocart/internal/middleware"

	"github.com/rs/zerolog"
)

// New creates a new HTTP router with all routes and middleware configured.
func New(
	checkoutHandler *handler.CheckoutHandler,
	paymentHandler *handler.PaymentHandler,
	apiKey string,
	logger zerolog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint (no authentication required)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	mux.HandleFunc("/api/checkout", checkoutHandler.Checkout)
	mux.HandleFunc("/api/checkout/", checkoutHandler.Checkout)

	// Order handler function
	orderRouteHandler := func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/orders/") && r.URL.Path != "/api/orders/" {
			if strings.HasSuffix(r.URL.Path, "/cancel") {
				checkoutHandler.Cancel(w, r)
				return
			}
			checkoutHandler.GetOrder(w, r)
			return
		}

		http.Error(w, "not found", http.StatusNotFound)
	}

	// Register order routes (both with and without trailing slash)
	mux.HandleFunc("/api/orders", orderRouteHandler)
	mux.HandleFunc("/api/orders/", orderRouteHandler)

	// Confirmation channels: client verify, provider webhook, redirects
	mux.HandleFunc("/api/payments/verify", paymentHandler.Verify)
	mux.HandleFunc("/api/payments/webhook/stripe", paymentHandler.StripeWebhook)
	mux.HandleFunc("/api/payments/callback/khalti", paymentHandler.KhaltiCallback)
	mux.HandleFunc("/api/payments/callback/esewa", paymentHandler.EsewaCallback)

	// Apply middleware in order: Recovery -> Logging -> CORS -> APIKeyAuth
	var h http.Handler = mux
	h = middleware.APIKeyAuth(apiKey, logger)(h)
	h = middleware.CORS(h)
	h = middleware.Logging(logger)(h)
	h = middleware.Recovery(logger)(h)

	return h
}
