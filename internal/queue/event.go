// Package queue defines message payloads exchanged over the message broker.
package queue

// PaymentStatusEvent is published whenever the reconciliation engine writes
// a new payment status for a reservation.  It carries enough for downstream
// consumers to log or notify without querying the ledger.
type PaymentStatusEvent struct {
	ReservationID   string `json:"reservation_id"`
	Status          string `json:"status"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	OccurredAt      string `json:"occurred_at"`
}
