package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/marina-payment-relay/internal/checkout"
	"github.com/iliyamo/marina-payment-relay/internal/reconcile"
)

// CheckoutHandler serves the front-end facing checkout surface: creating a
// hosted checkout session and the confirmation-page reconciliation poll.
type CheckoutHandler struct {
	Factory *checkout.Factory
	Engine  *reconcile.Engine
}

// NewCheckoutHandler constructs a CheckoutHandler.  Both dependencies must
// be non-nil.
func NewCheckoutHandler(factory *checkout.Factory, engine *reconcile.Engine) *CheckoutHandler {
	if factory == nil || engine == nil {
		panic("nil dependency passed to NewCheckoutHandler")
	}
	return &CheckoutHandler{Factory: factory, Engine: engine}
}

// Create handles POST /create-checkout-session.  It validates the request
// for the active flow, creates one processor-side session and returns the
// hosted page URL the front-end redirects to.
func (h *CheckoutHandler) Create(c echo.Context) error {
	var req checkout.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request_body"})
	}
	url, err := h.Factory.BuildSession(c.Request().Context(), req)
	if err != nil {
		var ve *checkout.ValidationError
		if errors.As(err, &ve) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Code})
		}
		c.Logger().Errorf("create checkout session: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "upstream_error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"url": url})
}

// Sync handles GET /checkout-session.  The confirmation page calls it with
// the session id so missed notifications still land in the ledger; it is a
// best-effort backstop, safe to race the webhook channel.
func (h *CheckoutHandler) Sync(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing_session_id"})
	}
	result, err := h.Engine.SyncSession(c.Request().Context(), sessionID)
	if err != nil {
		c.Logger().Errorf("sync checkout session %s: %v", sessionID, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "upstream_error"})
	}
	return c.JSON(http.StatusOK, result)
}
