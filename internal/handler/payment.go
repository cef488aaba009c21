package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/marina-payment-relay/internal/checkout"
	"github.com/iliyamo/marina-payment-relay/internal/processor"
	"github.com/iliyamo/marina-payment-relay/internal/reconcile"
)

// PaymentHandler serves the operator endpoints that move money after a
// human decision: charging a stored card, capturing a held authorization
// and releasing one.
type PaymentHandler struct {
	Engine *reconcile.Engine
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(engine *reconcile.Engine) *PaymentHandler {
	if engine == nil {
		panic("nil engine passed to NewPaymentHandler")
	}
	return &PaymentHandler{Engine: engine}
}

// Approve handles POST /approve.  It charges the reservation's stored
// payment method off-session.  Repeated calls at the same amount share an
// idempotency key, so the second call returns the original outcome instead
// of charging twice.
func (h *PaymentHandler) Approve(c echo.Context) error {
	var body struct {
		ReservationID string   `json:"reservation_id"`
		AmountCents   *float64 `json:"amount_cents"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request_body"})
	}
	if body.ReservationID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing_reservation_id"})
	}
	amount, err := checkout.ClampAmount(body.AmountCents)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_amount"})
	}

	result, err := h.Engine.Approve(c.Request().Context(), body.ReservationID, amount)
	if err != nil {
		if errors.Is(err, reconcile.ErrMissingPaymentMethod) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing_customer_or_payment_method"})
		}
		var ve *checkout.ValidationError
		if errors.As(err, &ve) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Code})
		}
		var declined *processor.DeclinedError
		if errors.As(err, &declined) {
			// A decline is a normal outcome; surface the processor's message.
			return c.JSON(http.StatusPaymentRequired, echo.Map{
				"status": "failed",
				"error":  declined.Error(),
			})
		}
		c.Logger().Errorf("approve %s: %v", body.ReservationID, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "upstream_error"})
	}
	return c.JSON(http.StatusOK, result)
}

// Capture handles POST /capture: settle a manually authorized intent.
func (h *PaymentHandler) Capture(c echo.Context) error {
	id, ok := bindIntentID(c)
	if !ok {
		return nil
	}
	if err := h.Engine.Capture(c.Request().Context(), id); err != nil {
		c.Logger().Errorf("capture %s: %v", id, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "upstream_error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "captured"})
}

// Release handles POST /release: cancel a manually authorized intent.
func (h *PaymentHandler) Release(c echo.Context) error {
	id, ok := bindIntentID(c)
	if !ok {
		return nil
	}
	if err := h.Engine.Release(c.Request().Context(), id); err != nil {
		c.Logger().Errorf("release %s: %v", id, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "upstream_error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "released"})
}

// bindIntentID reads the payment_intent_id body field shared by capture and
// release.  On validation failure it writes the 400 response itself and
// reports false.
func bindIntentID(c echo.Context) (string, bool) {
	var body struct {
		PaymentIntentID string `json:"payment_intent_id"`
	}
	if err := c.Bind(&body); err != nil {
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request_body"})
		return "", false
	}
	if body.PaymentIntentID == "" {
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "missing_payment_intent_id"})
		return "", false
	}
	return body.PaymentIntentID, true
}
