package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/marina-payment-relay/internal/checkout"
	"github.com/iliyamo/marina-payment-relay/internal/config"
	"github.com/iliyamo/marina-payment-relay/internal/processor"
	"github.com/iliyamo/marina-payment-relay/internal/reconcile"
)

func newCheckoutTest(flowMode string, led *fakeLedger, proc *fakeProcessor) *CheckoutHandler {
	cfg := config.Config{
		FlowMode:         flowMode,
		CheckoutURLBase:  "https://marina.example",
		ActionURLBase:    "https://marina.example",
		PlatformFeeBPS:   400,
		PlatformFeeFixed: 30,
	}
	factory := checkout.NewFactory(proc, led, cfg)
	engine := reconcile.New(led, proc, nil, nil, cfg)
	return NewCheckoutHandler(factory, engine)
}

func TestCreateCheckoutSession(t *testing.T) {
	led := newFakeLedger()
	proc := &fakeProcessor{}
	h := newCheckoutTest(config.FlowImmediate, led, proc)

	rec := postJSON("/create-checkout-session",
		`{"reservation_id":"R1","location":"Pier7","amount_cents":500}`, h.Create)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://checkout.example/cs_test_1")

	require.Len(t, proc.sessions, 1)
	p := proc.sessions[0]
	assert.Equal(t, processor.ModePayment, p.Mode)
	assert.Equal(t, int64(500), p.AmountCents)
	assert.Equal(t, "checkout:R1:500", p.IdempotencyKey)
	assert.Equal(t, "R1", p.Metadata["reservation_id"])
	assert.Equal(t, "Pier7", p.Metadata["location"])
	assert.Contains(t, p.SuccessURL, "location=Pier7")
	assert.Contains(t, p.SuccessURL, "session_id={CHECKOUT_SESSION_ID}")
	assert.Empty(t, p.ConnectedAccountID, "no cached account for the location")
	assert.Zero(t, p.FeeCents)
}

func TestCreateCheckoutSessionWithConnectedAccount(t *testing.T) {
	led := newFakeLedger()
	led.accounts["Pier7"] = "acct_1"
	proc := &fakeProcessor{}
	h := newCheckoutTest(config.FlowImmediate, led, proc)

	rec := postJSON("/create-checkout-session",
		`{"reservation_id":"R1","location":"Pier7","amount_cents":5000}`, h.Create)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, proc.sessions, 1)
	p := proc.sessions[0]
	assert.Equal(t, "acct_1", p.ConnectedAccountID)
	assert.Equal(t, int64(230), p.FeeCents, "400bps of 5000 plus the fixed 30")
}

func TestCreateCheckoutSessionDeferredFlow(t *testing.T) {
	led := newFakeLedger()
	proc := &fakeProcessor{}
	h := newCheckoutTest(config.FlowDeferred, led, proc)

	rec := postJSON("/create-checkout-session",
		`{"reservation_id":"R2","location":"Pier7","email":"skipper@example.com"}`, h.Create)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, proc.sessions, 1)
	p := proc.sessions[0]
	assert.Equal(t, processor.ModeSetup, p.Mode)
	assert.Equal(t, "cus_skipper@example.com", p.CustomerID)
	assert.Equal(t, "setup:R2", p.IdempotencyKey)
}

func TestCreateCheckoutSessionValidation(t *testing.T) {
	proc := &fakeProcessor{}
	h := newCheckoutTest(config.FlowImmediate, newFakeLedger(), proc)

	rec := postJSON("/create-checkout-session", `{"amount_cents":500}`, h.Create)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_location")

	rec = postJSON("/create-checkout-session", `{"location":"Pier7"}`, h.Create)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_amount")

	assert.Empty(t, proc.sessions, "invalid requests never reach the processor")
}

func TestSyncRequiresSessionID(t *testing.T) {
	h := newCheckoutTest(config.FlowImmediate, newFakeLedger(), &fakeProcessor{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/checkout-session", nil)
	rec := httptest.NewRecorder()
	_ = h.Sync(e.NewContext(req, rec))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_session_id")
}

func TestSyncUpstreamError(t *testing.T) {
	h := newCheckoutTest(config.FlowImmediate, newFakeLedger(), &fakeProcessor{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/checkout-session?session_id=cs_gone", nil)
	rec := httptest.NewRecorder()
	_ = h.Sync(e.NewContext(req, rec))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
