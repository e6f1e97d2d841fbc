package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/paymentintent"
	"github.com/stripe/stripe-go/v78/webhook"

	"coachsim/internal/api/middleware"
	"coachsim/internal/config"
)

const maxWebhookBodyBytes = 65536

// StripeHandler serves payment intents and the Stripe event webhook.
type StripeHandler struct {
	cfg    config.StripeConfig
	logger *slog.Logger
}

// NewStripeHandler constructs the Stripe handler.
func NewStripeHandler(cfg config.StripeConfig, logger *slog.Logger) *StripeHandler {
	stripe.Key = cfg.SecretKey
	return &StripeHandler{cfg: cfg, logger: logger}
}

type createPaymentIntentRequest struct {
	Amount   int64  `json:"amount" binding:"required,min=1"`
	Currency string `json:"currency"`
}

// CreatePaymentIntent creates a payment intent and returns its client secret.
func (h *StripeHandler) CreatePaymentIntent(c *gin.Context) {
	var req createPaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	logger := middleware.LoggerFromContext(c)

	if h.cfg.SecretKey == "" {
		logger.Error("create payment intent failed: secret key not configured")
		Internal(c, "payments not configured")
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = c.Request.Context()

	intent, err := paymentintent.New(params)
	if err != nil {
		logger.Error("create payment intent failed", slog.Any("error", err))
		Internal(c, "failed to create payment intent")
		return
	}

	logger.Info("payment intent created", slog.String("intent_id", intent.ID))
	c.JSON(http.StatusOK, gin.H{"clientSecret": intent.ClientSecret})
}

// Webhook verifies the Stripe-Signature header and acknowledges payment
// events. Unverifiable payloads are rejected before any processing.
func (h *StripeHandler) Webhook(c *gin.Context) {
	logger := middleware.LoggerFromContext(c)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		logger.Error("read webhook body failed", slog.Any("error", err))
		BadRequest(c, "unreadable payload")
		return
	}

	// Signature verification is the authentication boundary; the event's
	// pinned API version may lag the library's, so mismatches are tolerated.
	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logger.Warn("webhook signature verification failed", slog.Any("error", err))
		BadRequest(c, "signature verification failed")
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		logger.Info("payment succeeded", slog.String("event_id", event.ID))
	case "payment_intent.payment_failed":
		logger.Warn("payment failed", slog.String("event_id", event.ID))
	default:
		logger.Info("unhandled stripe event", slog.String("event_type", string(event.Type)))
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
