package model

// PreauthStatus is the finite payment state attached to a reservation in the
// ledger.  Exactly one value holds at a time; ledger writes are
// last-write-wins, so callers must only issue writes on genuine state
// changes.
type PreauthStatus string

const (
	StatusCardOnFile            PreauthStatus = "card_on_file"
	StatusRequiresCapture       PreauthStatus = "requires_capture"
	StatusAuthorized            PreauthStatus = "authorized"
	StatusCaptured              PreauthStatus = "captured"
	StatusPaid                  PreauthStatus = "paid"
	StatusFailed                PreauthStatus = "failed"
	StatusReleased              PreauthStatus = "released"
	StatusPaymentActionRequired PreauthStatus = "payment_action_required"
)

// Correlation is the metadata carried on every processor-side object so that
// asynchronous events can be mapped back to a reservation.  Any processor
// object created with a caller-supplied reservation id must carry it;
// events lacking one are dropped as uncorrelated.
type Correlation struct {
	ReservationID      string `json:"reservation_id"`
	Location           string `json:"location"`
	City               string `json:"city,omitempty"`
	State              string `json:"state,omitempty"`
	Hours              string `json:"hours,omitempty"`
	ArrivalDate        string `json:"arrival_date,omitempty"`
	ArrivalTime        string `json:"arrival_time,omitempty"`
	ConnectedAccountID string `json:"connected_account_id,omitempty"`
}

// Metadata renders the non-empty correlation fields as a string map suitable
// for attaching to processor objects.
func (c Correlation) Metadata() map[string]string {
	m := make(map[string]string, 8)
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("reservation_id", c.ReservationID)
	set("location", c.Location)
	set("city", c.City)
	set("state", c.State)
	set("hours", c.Hours)
	set("arrival_date", c.ArrivalDate)
	set("arrival_time", c.ArrivalTime)
	set("connected_account_id", c.ConnectedAccountID)
	return m
}

// StoredPaymentMethod is the card-on-file artifact produced by the deferred
// (setup) flow and persisted in the ledger.  It is consumed once per charge
// attempt but may be reused for retries.
type StoredPaymentMethod struct {
	CustomerID         string `json:"customer_id"`
	PaymentMethodID    string `json:"payment_method_id"`
	ConnectedAccountID string `json:"connected_account_id,omitempty"`
}
