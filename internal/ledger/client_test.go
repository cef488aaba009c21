package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/marina-payment-relay/internal/model"
)

// ledgerStub records the queries it receives and serves canned responses
// per action, the way the script endpoint behaves.
type ledgerStub struct {
	t        *testing.T
	calls    []url.Values
	respond  map[string]string // action -> JSON body
	notFound map[string]bool   // action -> serve 404
	status   int               // non-zero overrides the status code
}

func (s *ledgerStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.calls = append(s.calls, q)
		action := q.Get("action")
		if s.notFound[action] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if s.status != 0 {
			w.WriteHeader(s.status)
			return
		}
		if body, ok := s.respond[action]; ok {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}
	}
}

func TestGetAccount(t *testing.T) {
	stub := &ledgerStub{t: t, respond: map[string]string{"getacct": `{"account_id":"acct_1"}`}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := New(srv.URL, "sekrit")
	id, err := c.GetAccount(context.Background(), "Pier7")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", id)

	require.Len(t, stub.calls, 1)
	q := stub.calls[0]
	assert.Equal(t, "getacct", q.Get("action"))
	assert.Equal(t, "Pier7", q.Get("location"))
	assert.Equal(t, "sekrit", q.Get("token"))
}

func TestGetAccountNotFound(t *testing.T) {
	stub := &ledgerStub{t: t, notFound: map[string]bool{"getacct": true}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := New(srv.URL, "")
	id, err := c.GetAccount(context.Background(), "NeverSeen")
	require.NoError(t, err, "404 means not found, not failure")
	assert.Empty(t, id)
}

func TestGetPayInfo(t *testing.T) {
	stub := &ledgerStub{t: t, respond: map[string]string{
		"getpayinfo": `{"customer_id":"cus_1","payment_method_id":"pm_1","account_id":"acct_1"}`,
	}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := New(srv.URL, "")
	pm, err := c.GetPayInfo(context.Background(), "R2")
	require.NoError(t, err)
	require.NotNil(t, pm)
	assert.Equal(t, "cus_1", pm.CustomerID)
	assert.Equal(t, "pm_1", pm.PaymentMethodID)
	assert.Equal(t, "acct_1", pm.ConnectedAccountID)
}

func TestGetPayInfoEmptyBodyMeansNone(t *testing.T) {
	stub := &ledgerStub{t: t} // 200 with empty body
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := New(srv.URL, "")
	pm, err := c.GetPayInfo(context.Background(), "R2")
	require.NoError(t, err)
	assert.Nil(t, pm)
}

func TestSetPreauth(t *testing.T) {
	stub := &ledgerStub{t: t}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := New(srv.URL, "")
	require.NoError(t, c.SetPreauth(context.Background(), "R1", model.StatusAuthorized))

	require.Len(t, stub.calls, 1)
	q := stub.calls[0]
	assert.Equal(t, "setpreauth", q.Get("action"))
	assert.Equal(t, "R1", q.Get("reservation_id"))
	assert.Equal(t, "authorized", q.Get("status"))
}

func TestSaveSetup(t *testing.T) {
	stub := &ledgerStub{t: t}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := New(srv.URL, "")
	err := c.SaveSetup(context.Background(), "R2", model.StoredPaymentMethod{
		CustomerID:         "cus_1",
		PaymentMethodID:    "pm_1",
		ConnectedAccountID: "acct_1",
	})
	require.NoError(t, err)

	q := stub.calls[0]
	assert.Equal(t, "savesetup", q.Get("action"))
	assert.Equal(t, "cus_1", q.Get("customer_id"))
	assert.Equal(t, "pm_1", q.Get("payment_method_id"))
	assert.Equal(t, "acct_1", q.Get("account_id"))
}

func TestServerErrorSurfaces(t *testing.T) {
	stub := &ledgerStub{t: t, status: http.StatusInternalServerError}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	c := New(srv.URL, "")
	err := c.SetPreauth(context.Background(), "R1", model.StatusFailed)
	assert.Error(t, err)
}
