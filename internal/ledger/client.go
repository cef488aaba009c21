// Package ledger is a stateless adapter to the external reservation ledger.
// The ledger is a spreadsheet-backed script endpoint reachable only through
// idempotent GET calls keyed by an "action" query parameter; it is the system
// of record for reservation status and stored payment method artifacts, and
// this package owns none of that state.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/iliyamo/marina-payment-relay/internal/model"
)

// Client issues action-discriminated GET calls against the ledger endpoint.
// All calls are idempotent from the caller's perspective: the ledger applies
// last-write-wins semantics and exposes no compare-and-swap primitive.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New returns a Client for the given base URL.  The token, when non-empty,
// is attached to every call so the script can reject unauthenticated writes.
func New(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		token:      token,
	}
}

// GetAccount returns the cached connected account id for a location, or the
// empty string when none has been stored yet.
func (c *Client) GetAccount(ctx context.Context, location string) (string, error) {
	var out struct {
		AccountID string `json:"account_id"`
	}
	found, err := c.call(ctx, "getacct", url.Values{"location": {location}}, &out)
	if err != nil || !found {
		return "", err
	}
	return out.AccountID, nil
}

// SetAccount caches a newly created connected account id for a location so
// creation is not re-attempted once stored.
func (c *Client) SetAccount(ctx context.Context, location, accountID string) error {
	_, err := c.call(ctx, "setacct", url.Values{
		"location":   {location},
		"account_id": {accountID},
	}, nil)
	return err
}

// SaveSetup persists the stored payment method produced by the setup flow.
func (c *Client) SaveSetup(ctx context.Context, reservationID string, pm model.StoredPaymentMethod) error {
	v := url.Values{
		"reservation_id":    {reservationID},
		"customer_id":       {pm.CustomerID},
		"payment_method_id": {pm.PaymentMethodID},
	}
	if pm.ConnectedAccountID != "" {
		v.Set("account_id", pm.ConnectedAccountID)
	}
	_, err := c.call(ctx, "savesetup", v, nil)
	return err
}

// GetPayInfo returns the stored payment method for a reservation, or nil
// when none is on file.
func (c *Client) GetPayInfo(ctx context.Context, reservationID string) (*model.StoredPaymentMethod, error) {
	var out struct {
		CustomerID         string `json:"customer_id"`
		PaymentMethodID    string `json:"payment_method_id"`
		ConnectedAccountID string `json:"account_id"`
	}
	found, err := c.call(ctx, "getpayinfo", url.Values{"reservation_id": {reservationID}}, &out)
	if err != nil {
		return nil, err
	}
	if !found || out.CustomerID == "" || out.PaymentMethodID == "" {
		return nil, nil
	}
	return &model.StoredPaymentMethod{
		CustomerID:         out.CustomerID,
		PaymentMethodID:    out.PaymentMethodID,
		ConnectedAccountID: out.ConnectedAccountID,
	}, nil
}

// SetPreauth writes the payment status for a reservation.  The ledger keeps
// only the latest value.
func (c *Client) SetPreauth(ctx context.Context, reservationID string, status model.PreauthStatus) error {
	_, err := c.call(ctx, "setpreauth", url.Values{
		"reservation_id": {reservationID},
		"status":         {string(status)},
	}, nil)
	return err
}

// AttachPaymentIntent records the processor payment intent id against a
// reservation so operators can capture or release it later.
func (c *Client) AttachPaymentIntent(ctx context.Context, reservationID, paymentIntentID string) error {
	_, err := c.call(ctx, "attachpi", url.Values{
		"reservation_id":    {reservationID},
		"payment_intent_id": {paymentIntentID},
	}, nil)
	return err
}

// call performs one GET against the ledger.  A 404 or an empty body means
// "not found" and is reported via the boolean, not as an error; any other
// non-2xx status is an error.  When out is non-nil the JSON body is decoded
// into it.
func (c *Client) call(ctx context.Context, action string, params url.Values, out interface{}) (bool, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return false, fmt.Errorf("ledger: bad base url: %w", err)
	}
	q := u.Query()
	q.Set("action", action)
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	if c.token != "" {
		q.Set("token", c.token)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("ledger: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("ledger: %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("ledger: %s: read body: %w", action, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("ledger: %s: status %d: %s", action, resp.StatusCode, string(body))
	}
	if len(body) == 0 || out == nil {
		return len(body) > 0, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("ledger: %s: decode response: %w", action, err)
	}
	return true, nil
}
