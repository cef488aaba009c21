package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/marina-payment-relay/internal/config"
)

func newConnectTest(led *fakeLedger, proc *fakeProcessor) *ConnectHandler {
	return NewConnectHandler(led, proc, config.Config{
		AccountCountry:      "US",
		AccountBusinessType: "company",
		CheckoutURLBase:     "https://marina.example",
	})
}

func getQuery(path string, fn echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	_ = fn(e.NewContext(req, rec))
	return rec
}

func TestGetPaidCreatesAccountOnce(t *testing.T) {
	led := newFakeLedger()
	proc := &fakeProcessor{}
	h := newConnectTest(led, proc)

	rec := getQuery("/connect/get-paid?location=Pier7", h.GetPaid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://connect.example/onboard")
	assert.Equal(t, "acct_new_1", led.accounts["Pier7"])

	// Second request finds the cached id and serves a login link instead.
	rec = getQuery("/connect/get-paid?location=Pier7", h.GetPaid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://connect.example/login")
	assert.Equal(t, 1, proc.accounts, "account creation happens once per location")
}

func TestGetPaidFallsBackToOnboarding(t *testing.T) {
	led := newFakeLedger()
	led.accounts["Pier7"] = "acct_1"
	proc := &fakeProcessor{loginErr: errors.New("onboarding not complete")}
	h := newConnectTest(led, proc)

	rec := getQuery("/connect/get-paid?location=Pier7", h.GetPaid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://connect.example/onboard")
	assert.Zero(t, proc.accounts, "a cached account is never recreated")
}

func TestGetPaidRequiresLocation(t *testing.T) {
	h := newConnectTest(newFakeLedger(), &fakeProcessor{})

	rec := getQuery("/connect/get-paid", h.GetPaid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_location")
}

func TestLoginKnownLocation(t *testing.T) {
	led := newFakeLedger()
	led.accounts["Pier7"] = "acct_1"
	h := newConnectTest(led, &fakeProcessor{})

	rec := getQuery("/connect/login?location=Pier7", h.Login)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://connect.example/login")
}

func TestLoginUnknownLocation(t *testing.T) {
	h := newConnectTest(newFakeLedger(), &fakeProcessor{})

	rec := getQuery("/connect/login?location=NeverSeen", h.Login)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no_account_for_location")
}
