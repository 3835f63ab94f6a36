package attendance

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pinpoint/internal/geofence"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("attendance already recorded")
	ErrAlreadyOpen     = errors.New("class is already open")
	ErrNotOpen         = errors.New("class is not open")
	ErrInvalidSchedule = errors.New("invalid class schedule")
)

// ControlMode says who drives a class's open/closed state.
type ControlMode string

const (
	// ControlTimeBased classes are opened and closed by the scheduler sweep.
	ControlTimeBased ControlMode = "time"
	// ControlManual classes change state only through teacher action.
	ControlManual ControlMode = "manual"
)

// Clock is a wall-clock time of day in minutes after midnight.
type Clock int

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant of c on the calendar day of day, in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).Add(time.Duration(c) * time.Minute)
}

// Schedule is the weekly plan of a class.
type Schedule struct {
	Days  []time.Weekday // empty means every day
	Start Clock
	End   Clock
}

// Restricted reports whether the class only meets on some days.
func (s Schedule) Restricted() bool { return len(s.Days) > 0 }

// MeetsOn reports whether the class meets on weekday wd.
func (s Schedule) MeetsOn(wd time.Weekday) bool {
	if !s.Restricted() {
		return true
	}
	for _, d := range s.Days {
		if d == wd {
			return true
		}
	}
	return false
}

// Duration is the configured length of one meeting.
func (s Schedule) Duration() time.Duration {
	return time.Duration(s.End-s.Start) * time.Minute
}

// Validate rejects schedules that do not describe a same-day window.
func (s Schedule) Validate() error {
	if s.Start < 0 || s.End > 24*60 || s.End <= s.Start {
		return fmt.Errorf("%w: %s-%s", ErrInvalidSchedule, s.Start, s.End)
	}
	return nil
}

// ActiveSession is the live snapshot taken when a class opens.
type ActiveSession struct {
	Center      *geofence.Point
	OpenedAt    time.Time
	AutoCloseAt *time.Time
}

// ClassSession is a class together with its current open/closed state.
type ClassSession struct {
	ID             string
	Code           string
	Name           string
	TeacherName    string
	TeacherEmail   string
	Schedule       Schedule
	Mode           ControlMode
	IsOpen         bool
	Session        *ActiveSession
	Building       *geofence.Point
	ClosedAt       *time.Time
	LateThreshold  time.Duration
	GeofenceRadius float64
}

// Status classifies an admitted sign-in.
type Status string

const (
	StatusOnTime Status = "on_time"
	StatusLate   Status = "late"
)

// AttendanceRecord is one admitted sign-in.
type AttendanceRecord struct {
	ID          string         `json:"id"`
	ClassID     string         `json:"class_id"`
	StudentID   string         `json:"student_id"`
	StudentName string         `json:"student_name"`
	Date        time.Time      `json:"date"`
	SignedInAt  time.Time      `json:"signed_in_at"`
	Status      Status         `json:"status"`
	Distance    float64        `json:"distance_m"`
	Position    geofence.Point `json:"position"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Candidate is a sign-in attempt awaiting a decision.
type Candidate struct {
	StudentID   string
	StudentName string
	Position    geofence.Point
	At          time.Time
}

// Contact is a guardian reachable by email.
type Contact struct {
	Name  string
	Email string
}

// DateOf returns the calendar day of t in loc as midnight UTC.
func DateOf(t time.Time, loc *time.Location) time.Time {
	d := t.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// NormalizeStudentID maps an email to the identity stored on records.
func NormalizeStudentID(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
