package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pinpoint/internal/geofence"
	"pinpoint/internal/metrics"
	"pinpoint/internal/report"
)

// Notice is what guardians are told after an admitted sign-in.
type Notice struct {
	RecordID     string    `json:"record_id"`
	StudentName  string    `json:"student_name"`
	StudentEmail string    `json:"student_email"`
	ClassName    string    `json:"class_name"`
	TeacherName  string    `json:"teacher_name"`
	SignInTime   time.Time `json:"sign_in_time"`
	IsLate       bool      `json:"is_late"`
}

// Notifier hands admitted sign-ins to the notification pipeline.
type Notifier interface {
	AttendanceAdmitted(ctx context.Context, n Notice) error
}

// Admission is the result of a sign-in: the verdict and, when admitted, the
// stored record.
type Admission struct {
	Verdict Verdict
	Record  *AttendanceRecord
}

// Service coordinates sign-ins and direct teacher actions.
type Service struct {
	store    Store
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

// NewService creates a service backed by a store. A nil notifier disables
// notifications; a nil loc means UTC.
func NewService(store Store, notifier Notifier, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, notifier: notifier, loc: loc, now: time.Now}
}

// WithClock replaces the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Now returns the service's current time.
func (s *Service) Now() time.Time { return s.now() }

// Location returns the campus time zone used for calendar dates.
func (s *Service) Location() *time.Location { return s.loc }

// Class returns a class by id.
func (s *Service) Class(ctx context.Context, classID string) (ClassSession, error) {
	return s.store.GetClass(ctx, classID)
}

// SignIn evaluates cand against the class and records the attendance when
// admitted.
func (s *Service) SignIn(ctx context.Context, classID string, cand Candidate) (Admission, error) {
	cand.StudentID = NormalizeStudentID(cand.StudentID)
	if cand.StudentID == "" {
		return Admission{}, errors.New("student required")
	}
	if cand.At.IsZero() {
		cand.At = s.now()
	}

	class, err := s.store.GetClass(ctx, classID)
	if err != nil {
		return Admission{}, err
	}
	date := DateOf(cand.At, s.loc)
	prior, err := s.store.FindRecord(ctx, classID, cand.StudentID, date)
	if err != nil {
		return Admission{}, fmt.Errorf("find attendance record: %w", err)
	}

	verdict := Evaluate(class, prior, cand)
	if !verdict.Admitted() {
		metrics.Admissions.WithLabelValues(string(verdict.Outcome)).Inc()
		return Admission{Verdict: verdict}, nil
	}

	draft := AttendanceRecord{
		ClassID:     classID,
		StudentID:   cand.StudentID,
		StudentName: cand.StudentName,
		Date:        date,
		SignedInAt:  cand.At,
		Status:      verdict.Status,
		Distance:    verdict.Distance,
		Position:    cand.Position,
	}
	rec, err := s.store.CreateRecord(ctx, draft)
	if errors.Is(err, ErrDuplicate) {
		// lost a race with a concurrent sign-in for the same day
		winner, ferr := s.store.FindRecord(ctx, classID, cand.StudentID, date)
		if ferr != nil {
			return Admission{}, fmt.Errorf("find attendance record: %w", ferr)
		}
		if winner != nil {
			verdict = Evaluate(class, winner, cand)
			metrics.Admissions.WithLabelValues(string(verdict.Outcome)).Inc()
			return Admission{Verdict: verdict}, nil
		}
		// the winning record is gone again; one more insert decides
		rec, err = s.store.CreateRecord(ctx, draft)
		if errors.Is(err, ErrDuplicate) {
			return Admission{}, fmt.Errorf("record sign-in for %s: %w", cand.StudentID, err)
		}
	}
	if err != nil {
		report.Error("attendance record not saved", err, map[string]interface{}{"class_id": classID, "student": cand.StudentID})
		return Admission{}, err
	}
	metrics.Admissions.WithLabelValues(string(verdict.Outcome)).Inc()

	s.notify(ctx, class, rec)
	return Admission{Verdict: verdict, Record: &rec}, nil
}

// notify never fails the sign-in; the record is already committed.
func (s *Service) notify(ctx context.Context, class ClassSession, rec AttendanceRecord) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.AttendanceAdmitted(ctx, Notice{
		RecordID:     rec.ID,
		StudentName:  rec.StudentName,
		StudentEmail: rec.StudentID,
		ClassName:    class.Name,
		TeacherName:  class.TeacherName,
		SignInTime:   rec.SignedInAt,
		IsLate:       rec.Status == StatusLate,
	})
	if err != nil {
		metrics.Notifications.WithLabelValues("enqueue_failed").Inc()
		report.Error("attendance notification not enqueued", err, map[string]interface{}{"record_id": rec.ID})
	}
}

// OpenClass opens a closed class at center, or at the class's building when
// center is nil. Time-based classes get an auto-close deadline that keeps the
// configured meeting length.
func (s *Service) OpenClass(ctx context.Context, classID string, center *geofence.Point) (ClassSession, error) {
	class, err := s.store.GetClass(ctx, classID)
	if err != nil {
		return ClassSession{}, err
	}
	if class.IsOpen {
		return class, ErrAlreadyOpen
	}

	now := s.now()
	session := ActiveSession{Center: center, OpenedAt: now}
	if session.Center == nil && class.Building != nil {
		b := *class.Building
		session.Center = &b
	}
	if class.Mode == ControlTimeBased && class.Schedule.Validate() == nil {
		deadline := now.Add(class.Schedule.Duration())
		session.AutoCloseAt = &deadline
	}

	changed, err := s.store.OpenClass(ctx, classID, session)
	if err != nil {
		return ClassSession{}, err
	}
	if !changed {
		return class, ErrAlreadyOpen
	}
	if session.Center == nil {
		log.Printf("class %s opened without a location; sign-ins will be rejected", class.Code)
	}
	class.IsOpen = true
	class.Session = &session
	return class, nil
}

// CloseClass closes an open class and clears its session.
func (s *Service) CloseClass(ctx context.Context, classID string) (ClassSession, error) {
	now := s.now()
	changed, err := s.store.CloseClass(ctx, classID, now)
	if err != nil {
		return ClassSession{}, err
	}
	if !changed {
		return ClassSession{}, ErrNotOpen
	}
	return s.store.GetClass(ctx, classID)
}

// Attendance lists a class's records for the given calendar day.
func (s *Service) Attendance(ctx context.Context, classID string, date time.Time) ([]AttendanceRecord, error) {
	if _, err := s.store.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return s.store.ListRecords(ctx, classID, day)
}

// Today returns the current campus calendar day.
func (s *Service) Today() time.Time {
	return DateOf(s.now(), s.loc)
}

// DeleteRecord removes a record on administrative request.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("record id required")
	}
	return s.store.DeleteRecord(ctx, id)
}
