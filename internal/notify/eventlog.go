// Package notify delivers domain events to enrolled parties by appending
// them to the event_log table, where a relay (mailer, push service) picks
// them up. Delivery is fire-and-forget: a failed append is logged and never
// rolls back the state change that produced the event.
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

type EventLog struct {
	db  *sql.DB
	now func() time.Time
}

func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db, now: time.Now}
}

func (e *EventLog) TestPublished(ctx context.Context, testID string) {
	e.append(ctx, "test.published", testID, map[string]string{"test_id": testID})
}

func (e *EventLog) AttemptGraded(ctx context.Context, attemptID, testID, studentID string) {
	e.append(ctx, "attempt.graded", attemptID, map[string]string{
		"attempt_id": attemptID,
		"test_id":    testID,
		"student_id": studentID,
	})
}

func (e *EventLog) append(ctx context.Context, typ, key string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify %s: marshal: %v", typ, err)
		return
	}
	_, err = e.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		typ, key, string(data), e.now().Unix())
	if err != nil {
		log.Printf("notify %s: %v", typ, err)
	}
}
