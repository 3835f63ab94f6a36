package notify

import (
	"context"
	"encoding/json"

	"pinpoint/internal/attendance"
	"pinpoint/internal/queue"
)

// Publisher enqueues admitted sign-ins for the notification worker.
type Publisher struct {
	q queue.Queue
}

var _ attendance.Notifier = (*Publisher)(nil)

// NewPublisher wraps a queue.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// AttendanceAdmitted implements attendance.Notifier.
func (p *Publisher) AttendanceAdmitted(ctx context.Context, n attendance.Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, queue.Message{Type: queue.TypeAttendanceAdmitted, Body: body})
}
