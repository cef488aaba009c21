package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/marina-payment-relay/internal/processor"
	"github.com/iliyamo/marina-payment-relay/internal/reconcile"
)

// WebhookHandler receives signed processor notifications.  Once the
// signature verifies, the response is always 200: the processor redelivers
// on failure indefinitely, so downstream errors are logged and swallowed
// rather than acknowledged as failures.
type WebhookHandler struct {
	Secret string
	Engine *reconcile.Engine
}

// NewWebhookHandler constructs a WebhookHandler.  An empty secret puts the
// handler in degrade-safe mode: every delivery is accepted and ignored.
func NewWebhookHandler(secret string, engine *reconcile.Engine) *WebhookHandler {
	if engine == nil {
		panic("nil engine passed to NewWebhookHandler")
	}
	return &WebhookHandler{Secret: secret, Engine: engine}
}

// Receive handles POST /webhook-endpoint.
func (h *WebhookHandler) Receive(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable_body"})
	}
	if h.Secret == "" {
		// No shared secret configured: accept and ignore instead of failing
		// closed, so a misconfigured deployment does not pile up redeliveries.
		c.Logger().Warn("webhook received with no signing secret configured; ignoring")
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	event, err := processor.VerifyEvent(payload, c.Request().Header.Get("Stripe-Signature"), h.Secret)
	if err != nil {
		if errors.Is(err, processor.ErrInvalidSignature) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_signature"})
		}
		// The signature verified, so redelivering the same bytes cannot
		// help; acknowledge and log the decode failure.
		c.Logger().Errorf("webhook decode: %v", err)
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	if err := h.Engine.HandleEvent(c.Request().Context(), event); err != nil {
		// Acknowledge anyway; the poll channel and later events converge.
		c.Logger().Errorf("webhook %s (%s): %v", event.ID, event.Type, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
