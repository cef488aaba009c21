package repository

import (
	"context"
	"database/sql"
)

// EventJournal records processor webhook deliveries keyed by the
// processor-assigned event id.  Its unique key is what turns the ledger's
// last-write-wins writes into at-most-once processing for exact
// redeliveries: a duplicate insert affects zero rows and the engine skips
// the event.  The journal is operational bookkeeping, not a system of
// record.
type EventJournal struct {
	db *sql.DB
}

// NewEventJournal returns an EventJournal bound to the given database.
func NewEventJournal(db *sql.DB) *EventJournal { return &EventJournal{db: db} }

// EnsureSchema creates the webhook_events table when it does not exist yet.
func (j *EventJournal) EnsureSchema(ctx context.Context) error {
	const q = `CREATE TABLE IF NOT EXISTS webhook_events (
		event_id       VARCHAR(255) NOT NULL,
		event_type     VARCHAR(64)  NOT NULL,
		reservation_id VARCHAR(128) NOT NULL,
		received_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (event_id)
	)`
	_, err := j.db.ExecContext(ctx, q)
	return err
}

// Record inserts the delivery and reports whether the event id was seen for
// the first time.  INSERT IGNORE keeps duplicates cheap: zero affected rows
// means the id already exists.
func (j *EventJournal) Record(ctx context.Context, eventID, eventType, reservationID string) (bool, error) {
	const q = `INSERT IGNORE INTO webhook_events (event_id, event_type, reservation_id) VALUES (?, ?, ?)`
	result, err := j.db.ExecContext(ctx, q, eventID, eventType, reservationID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
