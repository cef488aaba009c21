// Package reconcile drives a reservation's payment status forward in the
// ledger from processor lifecycle events.  Two channels feed it: verified
// webhook notifications and the confirmation-page poll.  Both converge to
// the same status for the same inputs, so racing deliveries are safe even
// though the ledger itself is last-write-wins.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/iliyamo/marina-payment-relay/internal/checkout"
	"github.com/iliyamo/marina-payment-relay/internal/config"
	"github.com/iliyamo/marina-payment-relay/internal/model"
	"github.com/iliyamo/marina-payment-relay/internal/processor"
	q "github.com/iliyamo/marina-payment-relay/internal/queue"
)

// ErrMissingPaymentMethod is returned by Approve when no stored payment
// method exists for the reservation.  The caller needs new user action, not
// a retry.
var ErrMissingPaymentMethod = errors.New("missing_customer_or_payment_method")

// LedgerStore is the slice of the ledger client the engine writes through.
// Kept as an interface so conditional (version-checked) writes can be added
// later without touching engine call sites, and so tests can fake it.
type LedgerStore interface {
	SaveSetup(ctx context.Context, reservationID string, pm model.StoredPaymentMethod) error
	GetPayInfo(ctx context.Context, reservationID string) (*model.StoredPaymentMethod, error)
	SetPreauth(ctx context.Context, reservationID string, status model.PreauthStatus) error
	AttachPaymentIntent(ctx context.Context, reservationID, paymentIntentID string) error
}

// Journal deduplicates webhook deliveries on the processor-assigned event
// id.  Record reports whether the id was seen for the first time.
type Journal interface {
	Record(ctx context.Context, eventID, eventType, reservationID string) (bool, error)
}

// Publisher emits status-change events for downstream consumers.  Failures
// are best-effort and never block reconciliation.
type Publisher interface {
	PublishStatus(ctx context.Context, ev q.PaymentStatusEvent) error
}

// SyncResult is what the confirmation-page poll reports back.
type SyncResult struct {
	ReservationID string              `json:"reservation_id,omitempty"`
	Status        model.PreauthStatus `json:"status,omitempty"`
}

// ApproveResult is the outcome of an approval charge attempt.
type ApproveResult struct {
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
}

// Engine applies processor lifecycle events to the ledger.
type Engine struct {
	ledger    LedgerStore
	proc      processor.Client
	journal   Journal   // nil disables event deduplication
	publisher Publisher // nil disables status events
	flowMode  string
	actionURL string
	feeBPS    int64
	feeFixed  int64
}

// New constructs an Engine.  ledger and proc must be non-nil; journal and
// publisher may be nil.
func New(ledger LedgerStore, proc processor.Client, journal Journal, publisher Publisher, cfg config.Config) *Engine {
	if ledger == nil || proc == nil {
		panic("nil dependency passed to reconcile.New")
	}
	return &Engine{
		ledger:    ledger,
		proc:      proc,
		journal:   journal,
		publisher: publisher,
		flowMode:  cfg.FlowMode,
		actionURL: cfg.ActionURLBase,
		feeBPS:    cfg.PlatformFeeBPS,
		feeFixed:  cfg.PlatformFeeFixed,
	}
}

// HandleEvent consumes one verified notification.  Events without a
// derivable reservation id are dropped silently; exact redeliveries are
// dropped by the journal.  Errors are for the caller's log only; the
// webhook responder must still acknowledge receipt.
func (e *Engine) HandleEvent(ctx context.Context, ev *processor.Event) error {
	rid := reservationID(ev)
	if rid == "" {
		return nil
	}
	if e.journal != nil {
		fresh, err := e.journal.Record(ctx, ev.ID, ev.Type, rid)
		if err != nil {
			// Journal trouble must not stop reconciliation; process anyway.
			log.Printf("reconcile: journal record %s: %v", ev.ID, err)
		} else if !fresh {
			return nil
		}
	}

	switch ev.Type {
	case processor.EventCheckoutSessionCompleted:
		return e.applySessionCompleted(ctx, ev.Session)
	case processor.EventIntentCapturableUpdated:
		return e.setStatus(ctx, rid, model.StatusAuthorized, ev.Intent.ID)
	case processor.EventIntentCanceled:
		return e.setStatus(ctx, rid, model.StatusReleased, ev.Intent.ID)
	case processor.EventIntentSucceeded:
		return e.setStatus(ctx, rid, e.succeededStatus(), ev.Intent.ID)
	case processor.EventIntentPaymentFailed:
		return e.setStatus(ctx, rid, model.StatusFailed, ev.Intent.ID)
	}
	return nil
}

// SyncSession is the confirmation-page backstop: it fetches the session
// from the processor and applies the same writes the session-completed
// notification would.  Safe to run concurrently with the webhook channel.
func (e *Engine) SyncSession(ctx context.Context, sessionID string) (*SyncResult, error) {
	state, err := e.proc.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rid := state.Metadata["reservation_id"]
	if rid == "" {
		return &SyncResult{}, nil
	}
	if state.Status != processor.SessionStatusComplete {
		// An open or expired session carries the same ids as a complete one
		// but nothing has been authorized yet; writing a payment status here
		// would mark an unpaid reservation as payable.
		return &SyncResult{ReservationID: rid}, nil
	}
	if err := e.applySessionCompleted(ctx, state); err != nil {
		return nil, err
	}
	status := model.StatusRequiresCapture
	if state.Mode == processor.ModeSetup {
		status = model.StatusCardOnFile
	}
	return &SyncResult{ReservationID: rid, Status: status}, nil
}

// Approve charges a reservation off-session with its stored payment method.
// Repeated calls at the same amount reuse the idempotency key and therefore
// return the original outcome rather than charging twice.
func (e *Engine) Approve(ctx context.Context, reservationID string, amountCents int64) (*ApproveResult, error) {
	if reservationID == "" || amountCents <= 0 {
		return nil, &checkout.ValidationError{Code: "invalid_request"}
	}
	pm, err := e.ledger.GetPayInfo(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: load payment info: %w", err)
	}
	if pm == nil {
		return nil, ErrMissingPaymentMethod
	}

	params := processor.ChargeParams{
		CustomerID:         pm.CustomerID,
		PaymentMethodID:    pm.PaymentMethodID,
		AmountCents:        amountCents,
		ConnectedAccountID: pm.ConnectedAccountID,
		Metadata:           map[string]string{"reservation_id": reservationID},
		IdempotencyKey:     checkout.ApproveKey(reservationID, amountCents),
	}
	if pm.ConnectedAccountID != "" {
		params.FeeCents = checkout.ComputeFee(amountCents, e.feeBPS, e.feeFixed)
	}

	result, err := e.proc.OffSessionCharge(ctx, params)
	if err == nil {
		if attachErr := e.ledger.AttachPaymentIntent(ctx, reservationID, result.PaymentIntentID); attachErr != nil {
			log.Printf("reconcile: attach intent for %s: %v", reservationID, attachErr)
		}
		if err := e.setStatus(ctx, reservationID, model.StatusPaid, result.PaymentIntentID); err != nil {
			return nil, err
		}
		return &ApproveResult{Status: "paid"}, nil
	}

	var authErr *processor.AuthenticationRequiredError
	if errors.As(err, &authErr) {
		link := e.completionLink(authErr.PaymentIntentID, authErr.ClientSecret)
		if err := e.setStatus(ctx, reservationID, model.StatusPaymentActionRequired, authErr.PaymentIntentID); err != nil {
			return nil, err
		}
		return &ApproveResult{Status: "action_required", URL: link}, nil
	}

	var declined *processor.DeclinedError
	if errors.As(err, &declined) {
		if statusErr := e.setStatus(ctx, reservationID, model.StatusFailed, ""); statusErr != nil {
			log.Printf("reconcile: mark %s failed: %v", reservationID, statusErr)
		}
		return nil, declined
	}
	return nil, err
}

// Capture settles a manually authorized intent, then mirrors the status to
// the ledger best-effort using the intent's correlation metadata.  The
// authoritative write arrives via the succeeded notification.
func (e *Engine) Capture(ctx context.Context, paymentIntentID string) error {
	if err := e.proc.CapturePaymentIntent(ctx, paymentIntentID); err != nil {
		return err
	}
	e.mirrorStatus(ctx, paymentIntentID, model.StatusCaptured)
	return nil
}

// Release cancels a manually authorized intent and mirrors the released
// status the same way Capture does.
func (e *Engine) Release(ctx context.Context, paymentIntentID string) error {
	if err := e.proc.CancelPaymentIntent(ctx, paymentIntentID); err != nil {
		return err
	}
	e.mirrorStatus(ctx, paymentIntentID, model.StatusReleased)
	return nil
}

// applySessionCompleted handles both session modes.  Setup mode persists the
// stored payment method and marks the card on file; payment mode attaches
// the intent and marks it awaiting capture.
func (e *Engine) applySessionCompleted(ctx context.Context, state *processor.SessionState) error {
	if state == nil || state.Status != processor.SessionStatusComplete {
		return nil
	}
	rid := state.Metadata["reservation_id"]
	if rid == "" {
		return nil
	}
	if state.Mode == processor.ModeSetup {
		if state.SetupIntentID == "" {
			return nil
		}
		setup, err := e.proc.RetrieveSetupIntent(ctx, state.SetupIntentID)
		if err != nil {
			return err
		}
		pm := model.StoredPaymentMethod{
			CustomerID:         setup.CustomerID,
			PaymentMethodID:    setup.PaymentMethodID,
			ConnectedAccountID: state.Metadata["connected_account_id"],
		}
		if err := e.ledger.SaveSetup(ctx, rid, pm); err != nil {
			return fmt.Errorf("reconcile: save setup for %s: %w", rid, err)
		}
		return e.setStatus(ctx, rid, model.StatusCardOnFile, "")
	}
	if state.PaymentIntentID != "" {
		if err := e.ledger.AttachPaymentIntent(ctx, rid, state.PaymentIntentID); err != nil {
			return fmt.Errorf("reconcile: attach intent for %s: %w", rid, err)
		}
	}
	return e.setStatus(ctx, rid, model.StatusRequiresCapture, state.PaymentIntentID)
}

// setStatus writes the status and publishes the change.  Publishing is
// best-effort; the ledger write is the one that matters.
func (e *Engine) setStatus(ctx context.Context, reservationID string, status model.PreauthStatus, paymentIntentID string) error {
	if err := e.ledger.SetPreauth(ctx, reservationID, status); err != nil {
		return fmt.Errorf("reconcile: set status %s for %s: %w", status, reservationID, err)
	}
	if e.publisher != nil {
		ev := q.PaymentStatusEvent{
			ReservationID:   reservationID,
			Status:          string(status),
			PaymentIntentID: paymentIntentID,
			OccurredAt:      time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.publisher.PublishStatus(ctx, ev); err != nil {
			log.Printf("reconcile: publish status for %s: %v", reservationID, err)
		}
	}
	return nil
}

// mirrorStatus is the best-effort ledger write after a synchronous capture
// or release.  Failures are logged, not surfaced: the webhook channel will
// converge the status.
func (e *Engine) mirrorStatus(ctx context.Context, paymentIntentID string, status model.PreauthStatus) {
	intent, err := e.proc.RetrievePaymentIntent(ctx, paymentIntentID)
	if err != nil {
		log.Printf("reconcile: retrieve intent %s: %v", paymentIntentID, err)
		return
	}
	rid := intent.Metadata["reservation_id"]
	if rid == "" {
		return
	}
	if err := e.setStatus(ctx, rid, status, paymentIntentID); err != nil {
		log.Printf("reconcile: mirror %s for %s: %v", status, rid, err)
	}
}

// succeededStatus maps payment_intent.succeeded onto the flow variant: the
// capture flow ends in captured, the off-session charge flow in paid.
func (e *Engine) succeededStatus() model.PreauthStatus {
	if e.flowMode == config.FlowDeferred {
		return model.StatusPaid
	}
	return model.StatusCaptured
}

// completionLink builds the hosted page URL where the cardholder finishes
// authentication for an already-created payment intent.
func (e *Engine) completionLink(paymentIntentID, clientSecret string) string {
	return fmt.Sprintf("%s/complete-payment?payment_intent=%s&client_secret=%s",
		e.actionURL, url.QueryEscape(paymentIntentID), url.QueryEscape(clientSecret))
}

// reservationID extracts the correlation id from whichever payload the
// event carries.
func reservationID(ev *processor.Event) string {
	switch {
	case ev == nil:
		return ""
	case ev.Session != nil:
		return ev.Session.Metadata["reservation_id"]
	case ev.Intent != nil:
		return ev.Intent.Metadata["reservation_id"]
	}
	return ""
}
