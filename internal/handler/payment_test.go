package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/marina-payment-relay/internal/config"
	"github.com/iliyamo/marina-payment-relay/internal/model"
	"github.com/iliyamo/marina-payment-relay/internal/processor"
	"github.com/iliyamo/marina-payment-relay/internal/reconcile"
)

func newPaymentTest(led *fakeLedger, proc *fakeProcessor) *PaymentHandler {
	engine := reconcile.New(led, proc, nil, nil, config.Config{
		FlowMode:      config.FlowDeferred,
		ActionURLBase: "https://marina.example",
	})
	return NewPaymentHandler(engine)
}

func postJSON(path, body string, fn echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	_ = fn(e.NewContext(req, rec))
	return rec
}

func TestApproveWithoutStoredPaymentMethod(t *testing.T) {
	led := newFakeLedger()
	proc := &fakeProcessor{}
	h := newPaymentTest(led, proc)

	rec := postJSON("/approve", `{"reservation_id":"R2","amount_cents":5000}`, h.Approve)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_customer_or_payment_method")
	assert.Zero(t, proc.chargeCalls, "no charge attempt is made")
}

func TestApproveSuccess(t *testing.T) {
	led := newFakeLedger()
	led.payInfo["R2"] = &model.StoredPaymentMethod{CustomerID: "cus_1", PaymentMethodID: "pm_1"}
	h := newPaymentTest(led, &fakeProcessor{})

	rec := postJSON("/approve", `{"reservation_id":"R2","amount_cents":5000}`, h.Approve)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"paid"`)
	assert.Equal(t, model.StatusPaid, led.statuses["R2"])
}

func TestApproveActionRequired(t *testing.T) {
	led := newFakeLedger()
	led.payInfo["R2"] = &model.StoredPaymentMethod{CustomerID: "cus_1", PaymentMethodID: "pm_1"}
	proc := &fakeProcessor{chargeErr: &processor.AuthenticationRequiredError{
		PaymentIntentID: "pi_3ds",
		ClientSecret:    "pi_3ds_secret_x",
	}}
	h := newPaymentTest(led, proc)

	rec := postJSON("/approve", `{"reservation_id":"R2","amount_cents":5000}`, h.Approve)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"action_required"`)
	assert.Contains(t, rec.Body.String(), "payment_intent=pi_3ds")
	assert.Equal(t, model.StatusPaymentActionRequired, led.statuses["R2"])
}

func TestApproveDeclinedSurfacesProcessorMessage(t *testing.T) {
	led := newFakeLedger()
	led.payInfo["R2"] = &model.StoredPaymentMethod{CustomerID: "cus_1", PaymentMethodID: "pm_1"}
	proc := &fakeProcessor{chargeErr: &processor.DeclinedError{
		Code:    "card_declined",
		Message: "Your card was declined.",
	}}
	h := newPaymentTest(led, proc)

	rec := postJSON("/approve", `{"reservation_id":"R2","amount_cents":5000}`, h.Approve)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your card was declined.")
	assert.Equal(t, model.StatusFailed, led.statuses["R2"])
}

func TestApproveValidation(t *testing.T) {
	h := newPaymentTest(newFakeLedger(), &fakeProcessor{})

	rec := postJSON("/approve", `{"amount_cents":5000}`, h.Approve)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_reservation_id")

	rec = postJSON("/approve", `{"reservation_id":"R2"}`, h.Approve)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_amount")
}

func TestCaptureRequiresIntentID(t *testing.T) {
	h := newPaymentTest(newFakeLedger(), &fakeProcessor{})

	rec := postJSON("/capture", `{}`, h.Capture)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_payment_intent_id")
}

func TestCaptureAndRelease(t *testing.T) {
	led := newFakeLedger()
	h := newPaymentTest(led, &fakeProcessor{})

	rec := postJSON("/capture", `{"payment_intent_id":"pi_1"}`, h.Capture)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"captured"`)

	rec = postJSON("/release", `{"payment_intent_id":"pi_1"}`, h.Release)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"released"`)
}
