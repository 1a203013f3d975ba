package handler

import (
	"crypto/hmac"   // constant-time signature comparison
	"crypto/sha256" // HMAC hash for webhook signatures
	"encoding/hex"  // signatures travel hex-encoded
	"encoding/json" // webhook payload decoding
	"io"            // raw body read for signature verification
	"net/http"      // HTTP status codes
	"strconv"       // parsing appointment ids from metadata and query

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/districtsmiles/appointment-booking/internal/booking"
	"github.com/districtsmiles/appointment-booking/pkg/logging"
)

// PaymentHandler receives the two delivery channels of a payment's
// outcome: the gateway's asynchronous webhook and the patient's
// synchronous redirect back from checkout.  Both feed the reconciler,
// which is safe under any ordering, duplication or loss of either.
type PaymentHandler struct {
	WebhookSecret string
	Reconciler    *booking.Reconciler
	Logger        *logging.Logger
}

func NewPaymentHandler(webhookSecret string, rec *booking.Reconciler, logger *logging.Logger) *PaymentHandler {
	if rec == nil {
		panic("nil reconciler passed to NewPaymentHandler")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PaymentHandler{WebhookSecret: webhookSecret, Reconciler: rec, Logger: logger}
}

// webhookEvent is the subset of the PayMongo event envelope this
// service reads.
type webhookEvent struct {
	Data struct {
		Attributes struct {
			Type string `json:"type"`
			Data struct {
				Attributes struct {
					Metadata map[string]string `json:"metadata"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

// verifySignature checks the HMAC-SHA256 hex signature the gateway
// computes over the raw request body.
func verifySignature(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Webhook handles POST /v1/payments/webhook.  The signature is checked
// over the raw body before anything is parsed; an invalid or missing
// signature changes no state.  Payment events are reconciled; every
// other event type is acknowledged with 200 so the gateway stops
// retrying it.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	signature := c.Request().Header.Get("Paymongo-Signature")
	if !verifySignature(h.WebhookSecret, payload, signature) {
		h.Logger.Warn("webhook rejected, bad signature", "remote", c.RealIP())
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
	}

	var evt webhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	eventType := evt.Data.Attributes.Type
	switch eventType {
	case "checkout_session.payment.paid", "checkout_session.payment.failed",
		"payment.paid", "payment.failed":
	default:
		// Not a payment outcome; ack so the gateway stops redelivering.
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	apptStr := evt.Data.Attributes.Data.Attributes.Metadata["appointment_id"]
	apptID, err := strconv.ParseUint(apptStr, 10, 64)
	if err != nil || apptID == 0 {
		h.Logger.Warn("webhook payment event without appointment metadata", "type", eventType)
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	result, err := h.Reconciler.Reconcile(c.Request().Context(), apptID, booking.ChannelWebhook)
	if err != nil {
		// Transient failure: a non-2xx answer makes the gateway retry
		// the delivery later, which is exactly the recovery we want.
		h.Logger.Error("webhook reconcile failed", "appointment_id", apptID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reconcile failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"received": true,
		"outcome":  string(result.Outcome),
	})
}

// Success handles GET /v1/payments/success, the redirect target after
// checkout.  Arrival here proves nothing about payment; the reconciler
// independently verifies with the gateway before confirming anything.
func (h *PaymentHandler) Success(c echo.Context) error {
	apptID, err := strconv.ParseUint(c.QueryParam("appointment_id"), 10, 64)
	if err != nil || apptID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	result, err := h.Reconciler.Reconcile(c.Request().Context(), apptID, booking.ChannelRedirect)
	if err != nil {
		// Keep the patient-facing answer neutral; the webhook or the
		// sweeper will settle the appointment asynchronously.
		return c.JSON(http.StatusOK, echo.Map{
			"status":  "processing",
			"message": "we are confirming your payment",
		})
	}
	switch result.Outcome {
	case booking.OutcomeConfirmed, booking.OutcomeAlreadyConfirmed:
		return c.JSON(http.StatusOK, echo.Map{
			"status":  "confirmed",
			"message": "your appointment is confirmed",
		})
	case booking.OutcomeFailed:
		return c.JSON(http.StatusOK, echo.Map{
			"status":  "failed",
			"message": "payment did not complete, the slot has been released",
		})
	case booking.OutcomeNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": "appointment not found"})
	case booking.OutcomeTerminalMismatch:
		return c.JSON(http.StatusConflict, echo.Map{"error": "appointment is no longer awaiting payment"})
	default:
		return c.JSON(http.StatusOK, echo.Map{
			"status":  "processing",
			"message": "we are confirming your payment",
		})
	}
}

// Cancelled handles GET /v1/payments/cancelled, the redirect target
// when the patient abandons checkout.  Abandoning the page is not a
// verified failure, so the claim is left PENDING; the sweeper frees
// the slot when the payment window lapses, and a late payment can
// still win before then.
func (h *PaymentHandler) Cancelled(c echo.Context) error {
	apptID, err := strconv.ParseUint(c.QueryParam("appointment_id"), 10, 64)
	if err != nil || apptID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "cancelled",
		"message": "checkout was not completed, your slot will be released shortly",
	})
}
