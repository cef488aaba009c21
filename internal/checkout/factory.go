// Package checkout translates reservation requests into processor-side
// checkout sessions.  It owns the amount clamp, the platform fee formula and
// the deterministic idempotency keys that make duplicate front-end
// submissions harmless.
package checkout

import (
	"context"
	"fmt"
	"math"
	"net/url"

	"github.com/iliyamo/marina-payment-relay/internal/config"
	"github.com/iliyamo/marina-payment-relay/internal/model"
	"github.com/iliyamo/marina-payment-relay/internal/processor"
)

// minimumAmountCents is the processor's floor for a card charge.
const minimumAmountCents = 50

// ValidationError marks bad or missing caller input.  Code is a short
// machine-readable string returned to the front-end; these are never
// retried server-side.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string { return e.Code }

// Request is the inbound body of POST /create-checkout-session.  AmountCents
// is a pointer so a missing field is distinguishable from zero.
type Request struct {
	ReservationID string   `json:"reservation_id"`
	Location      string   `json:"location"`
	City          string   `json:"city"`
	State         string   `json:"state"`
	Hours         string   `json:"hours"`
	ArrivalDate   string   `json:"arrival_date"`
	ArrivalTime   string   `json:"arrival_time"`
	Email         string   `json:"email"`
	AmountCents   *float64 `json:"amount_cents"`
}

// AccountLookup resolves the cached connected account id for a location.
// The ledger client satisfies this.
type AccountLookup interface {
	GetAccount(ctx context.Context, location string) (string, error)
}

// Factory builds checkout sessions for the configured flow mode.
type Factory struct {
	proc     processor.Client
	accounts AccountLookup
	flowMode string
	urlBase  string
	feeBPS   int64
	feeFixed int64
}

// NewFactory constructs a Factory.  proc and accounts must be non-nil.
func NewFactory(proc processor.Client, accounts AccountLookup, cfg config.Config) *Factory {
	if proc == nil || accounts == nil {
		panic("nil dependency passed to NewFactory")
	}
	return &Factory{
		proc:     proc,
		accounts: accounts,
		flowMode: cfg.FlowMode,
		urlBase:  cfg.CheckoutURLBase,
		feeBPS:   cfg.PlatformFeeBPS,
		feeFixed: cfg.PlatformFeeFixed,
	}
}

// BuildSession validates the request for the active flow, resolves the
// connected account for the location, and creates one processor-side session
// (idempotent on the derived key).  It returns the hosted checkout URL.
func (f *Factory) BuildSession(ctx context.Context, req Request) (string, error) {
	if req.Location == "" {
		return "", &ValidationError{Code: "missing_location"}
	}
	corr := model.Correlation{
		ReservationID: req.ReservationID,
		Location:      req.Location,
		City:          req.City,
		State:         req.State,
		Hours:         req.Hours,
		ArrivalDate:   req.ArrivalDate,
		ArrivalTime:   req.ArrivalTime,
	}
	acctID, err := f.accounts.GetAccount(ctx, req.Location)
	if err != nil {
		return "", fmt.Errorf("checkout: resolve connected account: %w", err)
	}
	corr.ConnectedAccountID = acctID

	params := processor.SessionParams{
		SuccessURL:         f.redirectURL("confirmation", req.Location) + "&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:          f.redirectURL("canceled", req.Location),
		Metadata:           corr.Metadata(),
		ConnectedAccountID: acctID,
	}

	switch f.flowMode {
	case config.FlowDeferred:
		if req.Email == "" {
			return "", &ValidationError{Code: "missing_email"}
		}
		customerID, err := f.proc.FindOrCreateCustomer(ctx, req.Email)
		if err != nil {
			return "", fmt.Errorf("checkout: resolve customer: %w", err)
		}
		params.Mode = processor.ModeSetup
		params.CustomerID = customerID
		params.IdempotencyKey = SetupKey(req.ReservationID)
	default:
		amount, err := ClampAmount(req.AmountCents)
		if err != nil {
			return "", err
		}
		params.Mode = processor.ModePayment
		params.AmountCents = amount
		params.ProductName = "Slip reservation at " + req.Location
		if acctID != "" {
			params.FeeCents = ComputeFee(amount, f.feeBPS, f.feeFixed)
		}
		params.IdempotencyKey = SessionKey(req.ReservationID, amount)
	}

	sess, err := f.proc.CreateCheckoutSession(ctx, params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// redirectURL builds "<base>/<page>?location=<loc>" with the location
// escaped.  The checkout session id placeholder is appended raw by the
// caller because the processor substitutes it verbatim.
func (f *Factory) redirectURL(page, location string) string {
	return fmt.Sprintf("%s/%s?location=%s", f.urlBase, page, url.QueryEscape(location))
}

// ClampAmount validates and normalizes a caller-supplied amount.  A missing
// or non-finite value is a validation error; anything else is floored and
// raised to the processor minimum: max(50, floor(amount)).
func ClampAmount(amount *float64) (int64, error) {
	if amount == nil || math.IsNaN(*amount) || math.IsInf(*amount, 0) {
		return 0, &ValidationError{Code: "invalid_amount"}
	}
	cents := int64(math.Floor(*amount))
	if cents < minimumAmountCents {
		cents = minimumAmountCents
	}
	return cents, nil
}

// ComputeFee returns the platform fee in minor units:
// floor(amountCents * bps / 10000) + fixed.  Callers only apply the result
// when a connected account is attached; a non-positive result means the fee
// parameter is omitted entirely, never sent as zero.
func ComputeFee(amountCents, bps, fixed int64) int64 {
	return amountCents*bps/10000 + fixed
}

// SessionKey derives the idempotency key for a payment-mode session so a
// doubled submit cannot create two competing sessions.  Empty when no
// reservation id was supplied.
func SessionKey(reservationID string, amountCents int64) string {
	if reservationID == "" {
		return ""
	}
	return fmt.Sprintf("checkout:%s:%d", reservationID, amountCents)
}

// SetupKey derives the idempotency key for a setup-mode session.
func SetupKey(reservationID string) string {
	if reservationID == "" {
		return ""
	}
	return "setup:" + reservationID
}

// ApproveKey derives the idempotency key for an off-session charge so
// repeated approval clicks at the same amount return the original outcome.
func ApproveKey(reservationID string, amountCents int64) string {
	return fmt.Sprintf("approve:%s:%d", reservationID, amountCents)
}
