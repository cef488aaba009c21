// Package processor is a stateless adapter to the payment processor.  It
// wraps the Stripe SDK behind a small interface so the factory and the
// reconciliation engine never touch processor credentials or SDK types, and
// so tests can substitute fakes.
package processor

import (
	"context"
	"fmt"
)

// Event kinds the reconciliation engine dispatches on.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventIntentCapturableUpdated  = "payment_intent.amount_capturable_updated"
	EventIntentSucceeded          = "payment_intent.succeeded"
	EventIntentCanceled           = "payment_intent.canceled"
	EventIntentPaymentFailed      = "payment_intent.payment_failed"
)

// Checkout session modes.
const (
	ModePayment = "payment"
	ModeSetup   = "setup"
)

// Checkout session lifecycle statuses.  Only a complete session has a
// finished payment or setup behind it; open and expired sessions carry the
// same ids and metadata but nothing has been authorized.
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"
)

// Session is the result of creating a checkout session: the processor-side
// id and the hosted page URL the front-end redirects to.
type Session struct {
	ID  string
	URL string
}

// SessionState is the observable state of an existing checkout session, as
// seen in webhook payloads and confirmation-page polls.
type SessionState struct {
	ID              string
	Mode            string
	Status          string
	Metadata        map[string]string
	SetupIntentID   string
	PaymentIntentID string
}

// IntentState is the observable state of a payment intent.
type IntentState struct {
	ID       string
	Metadata map[string]string
}

// SetupResult holds the artifacts attached to a completed setup intent.
type SetupResult struct {
	CustomerID      string
	PaymentMethodID string
}

// SessionParams describes the checkout session to create.  Exactly one of
// the two modes applies: payment mode requires AmountCents and ProductName,
// setup mode requires CustomerID.
type SessionParams struct {
	Mode               string
	AmountCents        int64
	ProductName        string
	CustomerID         string
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
	ConnectedAccountID string
	FeeCents           int64 // only sent when > 0 and a connected account is set
	IdempotencyKey     string
}

// ChargeParams describes an off-session charge against a stored payment
// method.  The idempotency key makes repeated submissions return the
// original outcome instead of charging twice.
type ChargeParams struct {
	CustomerID         string
	PaymentMethodID    string
	AmountCents        int64
	ConnectedAccountID string
	FeeCents           int64
	Metadata           map[string]string
	IdempotencyKey     string
}

// ChargeResult is the outcome of a successful off-session charge.
type ChargeResult struct {
	PaymentIntentID string
}

// AuthenticationRequiredError signals that the off-session charge needs the
// cardholder to complete authentication.  It carries what the front-end
// needs to finish the payment intent.
type AuthenticationRequiredError struct {
	PaymentIntentID string
	ClientSecret    string
}

func (e *AuthenticationRequiredError) Error() string {
	return fmt.Sprintf("payment intent %s requires cardholder authentication", e.PaymentIntentID)
}

// DeclinedError is a normal processor decline, not an operational failure.
// The message is surfaced to the caller.
type DeclinedError struct {
	Code    string
	Message string
}

func (e *DeclinedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "payment declined: " + e.Code
}

// Client is the processor surface the rest of the relay depends on.
type Client interface {
	// CreateCheckoutSession creates a hosted checkout session in payment or
	// setup mode, idempotent on the provided key.
	CreateCheckoutSession(ctx context.Context, p SessionParams) (*Session, error)
	// RetrieveCheckoutSession fetches the current state of a session for the
	// confirmation-page reconciliation poll.
	RetrieveCheckoutSession(ctx context.Context, id string) (*SessionState, error)
	// RetrieveSetupIntent fetches the customer and payment method attached
	// to a completed setup intent.
	RetrieveSetupIntent(ctx context.Context, id string) (*SetupResult, error)
	// RetrievePaymentIntent fetches a payment intent's correlation metadata.
	RetrievePaymentIntent(ctx context.Context, id string) (*IntentState, error)
	// FindOrCreateCustomer lists customers by email and returns the first
	// match, creating one when none exists.  Not transactional: two
	// concurrent calls for the same email can create two customers.
	FindOrCreateCustomer(ctx context.Context, email string) (string, error)
	// OffSessionCharge creates and confirms a payment intent in one call
	// using a stored payment method.
	OffSessionCharge(ctx context.Context, p ChargeParams) (*ChargeResult, error)
	// CapturePaymentIntent settles a manually authorized intent.
	CapturePaymentIntent(ctx context.Context, id string) error
	// CancelPaymentIntent releases a manually authorized intent.
	CancelPaymentIntent(ctx context.Context, id string) error
	// CreateAccount creates a connected (Express) account for a location.
	CreateAccount(ctx context.Context, location, country, businessType string) (string, error)
	// OnboardingLink creates a hosted onboarding link for a connected account.
	OnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	// LoginLink creates a dashboard login link for an onboarded account.
	LoginLink(ctx context.Context, accountID string) (string, error)
}
