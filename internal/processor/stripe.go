package processor

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeClient implements Client over the official Stripe SDK.  The API key
// is bound to this instance rather than the SDK's package-level key so the
// relay never mutates global state.
type StripeClient struct {
	api *client.API
}

var _ Client = (*StripeClient)(nil)

// NewStripeClient returns a StripeClient authenticated with the given
// secret key.
func NewStripeClient(secretKey string) *StripeClient {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeClient{api: api}
}

// CreateCheckoutSession builds and creates the processor-side session.  In
// payment mode the resulting payment intent uses manual capture and carries
// the correlation metadata; in setup mode the metadata rides on the setup
// intent instead.  The fee and destination transfer are attached only when a
// connected account is present and the fee is positive.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, p SessionParams) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx
	params.Metadata = p.Metadata
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	switch p.Mode {
	case ModePayment:
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(p.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(p.ProductName),
				},
			},
			Quantity: stripe.Int64(1),
		}}
		intentData := &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String("manual"),
			Metadata:      p.Metadata,
		}
		if p.ConnectedAccountID != "" {
			intentData.TransferData = &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(p.ConnectedAccountID),
			}
			if p.FeeCents > 0 {
				intentData.ApplicationFeeAmount = stripe.Int64(p.FeeCents)
			}
		}
		params.PaymentIntentData = intentData
	case ModeSetup:
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSetup))
		params.Customer = stripe.String(p.CustomerID)
		params.SetupIntentData = &stripe.CheckoutSessionSetupIntentDataParams{
			Metadata: p.Metadata,
		}
	default:
		return nil, fmt.Errorf("processor: unknown session mode %q", p.Mode)
	}

	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapStripeErr("create checkout session", err)
	}
	return &Session{ID: cs.ID, URL: cs.URL}, nil
}

// RetrieveCheckoutSession fetches a session by id.
func (s *StripeClient) RetrieveCheckoutSession(ctx context.Context, id string) (*SessionState, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, wrapStripeErr("retrieve checkout session", err)
	}
	return sessionState(cs), nil
}

// RetrieveSetupIntent fetches the customer and payment method from a setup
// intent once the hosted page has completed.
func (s *StripeClient) RetrieveSetupIntent(ctx context.Context, id string) (*SetupResult, error) {
	params := &stripe.SetupIntentParams{}
	params.Context = ctx
	si, err := s.api.SetupIntents.Get(id, params)
	if err != nil {
		return nil, wrapStripeErr("retrieve setup intent", err)
	}
	out := &SetupResult{}
	if si.Customer != nil {
		out.CustomerID = si.Customer.ID
	}
	if si.PaymentMethod != nil {
		out.PaymentMethodID = si.PaymentMethod.ID
	}
	return out, nil
}

// RetrievePaymentIntent fetches an intent's metadata for correlation.
func (s *StripeClient) RetrievePaymentIntent(ctx context.Context, id string) (*IntentState, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, wrapStripeErr("retrieve payment intent", err)
	}
	return &IntentState{ID: pi.ID, Metadata: pi.Metadata}, nil
}

// FindOrCreateCustomer lists customers by email and takes the first match,
// creating one when the list is empty.  Best effort: the list and create are
// not atomic against the processor.
func (s *StripeClient) FindOrCreateCustomer(ctx context.Context, email string) (string, error) {
	listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)
	iter := s.api.Customers.List(listParams)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", wrapStripeErr("list customers", err)
	}
	createParams := &stripe.CustomerParams{Email: stripe.String(email)}
	createParams.Context = ctx
	cust, err := s.api.Customers.New(createParams)
	if err != nil {
		return "", wrapStripeErr("create customer", err)
	}
	return cust.ID, nil
}

// OffSessionCharge creates and confirms a payment intent in one call.  An
// authentication_required decline is mapped to AuthenticationRequiredError
// carrying the intent already created by the processor; other declines are
// mapped to DeclinedError with the processor's message.
func (s *StripeClient) OffSessionCharge(ctx context.Context, p ChargeParams) (*ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(p.AmountCents),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		Customer:      stripe.String(p.CustomerID),
		PaymentMethod: stripe.String(p.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	params.Metadata = p.Metadata
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	if p.ConnectedAccountID != "" {
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(p.ConnectedAccountID),
		}
		if p.FeeCents > 0 {
			params.ApplicationFeeAmount = stripe.Int64(p.FeeCents)
		}
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			if stripeErr.Code == stripe.ErrorCodeAuthenticationRequired && stripeErr.PaymentIntent != nil {
				return nil, &AuthenticationRequiredError{
					PaymentIntentID: stripeErr.PaymentIntent.ID,
					ClientSecret:    stripeErr.PaymentIntent.ClientSecret,
				}
			}
			return nil, &DeclinedError{Code: string(stripeErr.Code), Message: stripeErr.Msg}
		}
		return nil, fmt.Errorf("processor: off-session charge: %w", err)
	}
	return &ChargeResult{PaymentIntentID: pi.ID}, nil
}

// CapturePaymentIntent settles a manually authorized intent.
func (s *StripeClient) CapturePaymentIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	_, err := s.api.PaymentIntents.Capture(id, params)
	return wrapStripeErr("capture payment intent", err)
}

// CancelPaymentIntent releases a manually authorized intent.
func (s *StripeClient) CancelPaymentIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := s.api.PaymentIntents.Cancel(id, params)
	return wrapStripeErr("cancel payment intent", err)
}

// CreateAccount creates an Express connected account tagged with the
// location it serves.
func (s *StripeClient) CreateAccount(ctx context.Context, location, country, businessType string) (string, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(country),
	}
	params.Context = ctx
	params.Metadata = map[string]string{"location": location}
	if businessType != "" {
		params.BusinessType = stripe.String(businessType)
	}
	acct, err := s.api.Accounts.New(params)
	if err != nil {
		return "", wrapStripeErr("create account", err)
	}
	return acct.ID, nil
}

// OnboardingLink creates a hosted onboarding link for a connected account.
func (s *StripeClient) OnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	link, err := s.api.AccountLinks.New(params)
	if err != nil {
		return "", wrapStripeErr("create onboarding link", err)
	}
	return link.URL, nil
}

// LoginLink creates a dashboard login link for an onboarded account.
func (s *StripeClient) LoginLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.LoginLinkParams{Account: stripe.String(accountID)}
	params.Context = ctx
	link, err := s.api.LoginLinks.New(params)
	if err != nil {
		return "", wrapStripeErr("create login link", err)
	}
	return link.URL, nil
}

// sessionState maps an SDK session to the neutral SessionState.  Expandable
// references arrive as bare ids, which the SDK surfaces as structs with only
// the ID populated.
func sessionState(cs *stripe.CheckoutSession) *SessionState {
	out := &SessionState{
		ID:       cs.ID,
		Mode:     string(cs.Mode),
		Status:   string(cs.Status),
		Metadata: cs.Metadata,
	}
	if cs.SetupIntent != nil {
		out.SetupIntentID = cs.SetupIntent.ID
	}
	if cs.PaymentIntent != nil {
		out.PaymentIntentID = cs.PaymentIntent.ID
	}
	return out
}

// wrapStripeErr keeps the processor's message visible while hiding SDK types
// from callers.  Declines still flow through as DeclinedError from the call
// sites that care; everything else is operational.
func wrapStripeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("processor: %s: %s", op, stripeErr.Msg)
	}
	return fmt.Errorf("processor: %s: %w", op, err)
}
