package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/mail"
	"strings"
	"time"

	"pinpoint/internal/attendance"
	"pinpoint/internal/metrics"
	"pinpoint/internal/queue"
	"pinpoint/internal/report"
)

// ContactSource looks up who to tell about a student.
type ContactSource interface {
	GuardianContacts(ctx context.Context, studentID string) ([]attendance.Contact, error)
}

// Worker turns queued notices into guardian emails. Failures are logged and
// the message is dropped; attendance records are never touched.
type Worker struct {
	contacts ContactSource
	sender   Sender
	loc      *time.Location
}

// NewWorker creates a worker. Times in messages are rendered in loc.
func NewWorker(contacts ContactSource, sender Sender, loc *time.Location) *Worker {
	if loc == nil {
		loc = time.UTC
	}
	return &Worker{contacts: contacts, sender: sender, loc: loc}
}

// Run processes messages until the channel closes.
func (w *Worker) Run(ctx context.Context, msgs <-chan queue.Message) {
	for msg := range msgs {
		if err := w.Handle(ctx, msg); err != nil {
			metrics.Notifications.WithLabelValues("failed").Inc()
			report.Error("notification failed", err, map[string]interface{}{"type": msg.Type})
		}
	}
}

// Handle processes a single message.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != queue.TypeAttendanceAdmitted {
		log.Printf("notify: ignoring message type %q", msg.Type)
		return nil
	}
	var n attendance.Notice
	if err := json.Unmarshal(msg.Body, &n); err != nil {
		return fmt.Errorf("decode notice: %w", err)
	}

	contacts, err := w.contacts.GuardianContacts(ctx, n.StudentEmail)
	if err != nil {
		return fmt.Errorf("guardian contacts for %s: %w", n.StudentEmail, err)
	}
	if len(contacts) == 0 {
		metrics.Notifications.WithLabelValues("no_contacts").Inc()
		log.Printf("notify: no guardians on file for %s", n.StudentEmail)
		return nil
	}

	var errs []error
	for _, c := range contacts {
		email, err := w.compose(n, c)
		if err != nil {
			return err
		}
		if err := w.sender.Send(ctx, email); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", c.Email, err))
			continue
		}
		metrics.Notifications.WithLabelValues("sent").Inc()
	}
	return errors.Join(errs...)
}

var htmlBody = template.Must(template.New("notice").Parse(
	`<p>Hello {{.Guardian}},</p>
<p><strong>{{.Student}}</strong> signed in to <strong>{{.Class}}</strong>{{if .Teacher}} with {{.Teacher}}{{end}} at {{.Time}}.</p>
<p>Status: <strong>{{.Status}}</strong></p>`))

func (w *Worker) compose(n attendance.Notice, c attendance.Contact) (Email, error) {
	status := "on time"
	if n.IsLate {
		status = "late"
	}
	when := n.SignInTime.In(w.loc).Format("Mon Jan 2, 3:04 PM")
	data := struct {
		Guardian, Student, Class, Teacher, Time, Status string
	}{
		Guardian: firstNonEmpty(c.Name, "guardian"),
		Student:  n.StudentName,
		Class:    n.ClassName,
		Teacher:  n.TeacherName,
		Time:     when,
		Status:   status,
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hello %s,\n\n%s signed in to %s", data.Guardian, data.Student, data.Class)
	if data.Teacher != "" {
		fmt.Fprintf(&text, " with %s", data.Teacher)
	}
	fmt.Fprintf(&text, " at %s.\nStatus: %s\n", data.Time, status)

	var html strings.Builder
	if err := htmlBody.Execute(&html, data); err != nil {
		return Email{}, fmt.Errorf("render notice: %w", err)
	}

	return Email{
		To:      mail.Address{Name: c.Name, Address: c.Email},
		Subject: fmt.Sprintf("%s signed in to %s (%s)", n.StudentName, n.ClassName, status),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
