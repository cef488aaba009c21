package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrInvalidSignature marks a notification whose signature did not verify
// against the shared secret.  Decode failures after verification are plain
// errors; callers distinguish the two because only signature failures may be
// answered with a non-2xx status.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event is a verified processor notification reduced to what the
// reconciliation engine needs.  Exactly one of Session or Intent is set
// depending on the event kind; both are nil for kinds the relay ignores.
type Event struct {
	ID      string
	Type    string
	Session *SessionState
	Intent  *IntentState
}

// VerifyEvent checks the notification signature against the shared secret,
// then parses the payload.  A bad signature wraps ErrInvalidSignature; a
// verified payload that fails to decode is an ordinary error.  The caller
// must not mutate any state on error.
func VerifyEvent(payload []byte, sigHeader, secret string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
		Tolerance:                webhook.DefaultTolerance,
	})
	if err != nil {
		return nil, fmt.Errorf("processor: verify webhook: %w: %v", ErrInvalidSignature, err)
	}
	return parseEvent(ev)
}

// parseEvent maps a raw SDK event onto the neutral Event type.
func parseEvent(ev stripe.Event) (*Event, error) {
	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	switch {
	case out.Type == EventCheckoutSessionCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("processor: decode session event: %w", err)
		}
		out.Session = sessionState(&cs)
	case strings.HasPrefix(out.Type, "payment_intent."):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("processor: decode intent event: %w", err)
		}
		out.Intent = &IntentState{ID: pi.ID, Metadata: pi.Metadata}
	}
	return out, nil
}
