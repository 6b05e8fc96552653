package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kelasku_app/internal/services"
)

// webhookTimeout bounds signature verification and store work for one
// callback. A timeout means "unknown, do not act" — never an implicit paid.
const webhookTimeout = 10 * time.Second

type callbackVerifier interface {
	VerifyCallback(signature string, rawBody []byte) bool
}

type lifecycleEngine interface {
	HandleCallback(ctx context.Context, reference string, status services.CallbackStatus, rawPayload json.RawMessage) error
}

// WebhookHandler receives payment gateway callbacks. This is the trust
// boundary: nothing past signature verification may act on an unverified
// body.
type WebhookHandler struct {
	verifier callbackVerifier
	engine   lifecycleEngine
}

// NewWebhookHandler wires the webhook endpoint
func NewWebhookHandler(gateway *services.TripayClient, engine *services.TransactionService) *WebhookHandler {
	return &WebhookHandler{verifier: gateway, engine: engine}
}

// TripayCallback handles POST /callbacks/tripay.
//
// Response contract with the gateway: signature failures get a client
// error; unknown references still get success so the gateway stops
// retrying a payload we can never match; store failures during a paid
// transition get a server error so the gateway redelivers.
func (h *WebhookHandler) TripayCallback(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), webhookTimeout)
	defer cancel()

	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ackFailure("unreadable request body"))
	}

	signature := c.Request().Header.Get("X-Callback-Signature")
	if !h.verifier.VerifyCallback(signature, rawBody) {
		log.WithField("remote", c.RealIP()).Warn("Rejected callback with bad signature")
		return c.JSON(http.StatusBadRequest, ackFailure("invalid signature"))
	}

	if event := c.Request().Header.Get("X-Callback-Event"); event != "" && event != "payment_status" {
		log.WithField("event", event).Info("Ignoring unsupported callback event")
		return c.JSON(http.StatusOK, ackSuccess())
	}

	payload, err := services.DecodeCallback(rawBody)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ackFailure("malformed callback body"))
	}
	if payload.Reference == "" {
		return c.JSON(http.StatusBadRequest, ackFailure("missing reference"))
	}

	status := services.MapStatus(payload.Status)

	err = h.engine.HandleCallback(ctx, payload.Reference, status, rawBody)
	switch {
	case errors.Is(err, services.ErrTransactionNotFound):
		// Acknowledge so the gateway stops redelivering a reference we
		// can never match
		log.WithField("reference", payload.Reference).Warn("Callback for unknown reference")
		return c.JSON(http.StatusOK, ackSuccess())
	case err != nil:
		return c.JSON(http.StatusInternalServerError, ackFailure("failed to process callback"))
	}

	return c.JSON(http.StatusOK, ackSuccess())
}

func ackSuccess() map[string]interface{} {
	return map[string]interface{}{"success": true}
}

func ackFailure(message string) map[string]interface{} {
	return map[string]interface{}{"success": false, "message": message}
}
