package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/marina-payment-relay/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/marina-payment-relay/internal/middleware" // import middleware for operator authentication
)

// Handlers groups everything the router wires up.
type Handlers struct {
	Checkout *handler.CheckoutHandler
	Payment  *handler.PaymentHandler
	Connect  *handler.ConnectHandler
	Webhook  *handler.WebhookHandler
}

// RegisterRoutes registers the relay's full inbound surface.
//
// The public checkout endpoints sit behind the rate limiter; the webhook
// endpoint does not, because processor redelivery storms are legitimate
// traffic.  The operator endpoints go behind the JWT guard, which is a
// pass-through when no admin secret is configured.
func RegisterRoutes(e *echo.Echo, h Handlers, adminJWTSecret string, limiter echo.MiddlewareFunc) {
	// Liveness probe for load balancers and monitoring systems.
	e.GET("/", handler.Health)

	// Front-end facing endpoints.
	pub := e.Group("")
	if limiter != nil {
		pub.Use(limiter)
	}
	pub.POST("/create-checkout-session", h.Checkout.Create)
	pub.GET("/checkout-session", h.Checkout.Sync)
	pub.GET("/connect/get-paid", h.Connect.GetPaid)
	pub.GET("/connect/login", h.Connect.Login)

	// Processor event delivery; raw signed body, no limiter.
	e.POST("/webhook-endpoint", h.Webhook.Receive)

	// Operator endpoints behind the bearer guard.
	ops := e.Group("")
	ops.Use(middleware.JWTAuth(adminJWTSecret))
	ops.POST("/approve", h.Payment.Approve)
	ops.POST("/capture", h.Payment.Capture)
	ops.POST("/release", h.Payment.Release)
}
