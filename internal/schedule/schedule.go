// Package schedule opens and closes time-based classes from their weekly
// schedule. A sweep is meant to be triggered periodically (cron or ticker);
// each transition is a conditional update, so overlapping sweeps are no-ops
// on classes already in their target state.
package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"pinpoint/internal/attendance"
	"pinpoint/internal/metrics"
	"pinpoint/internal/report"
)

// Action is the transition a sweep applies to one class.
type Action string

const (
	ActionNone  Action = "none"
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

// Why a decision was reached; logged and useful in tests.
const (
	ReasonManual       = "manual control"
	ReasonInWindow     = "inside scheduled window"
	ReasonOutOfWindow  = "outside scheduled window"
	ReasonNotToday     = "not scheduled today"
	ReasonAlreadyHeld  = "already held in this window"
	ReasonNoBuilding   = "no building location"
	ReasonDeadline     = "auto-close deadline passed"
	ReasonScheduledEnd = "scheduled end passed"
	ReasonStillOpen    = "session still running"
)

// Rules tunes the sweep's windows.
type Rules struct {
	OpenLead   time.Duration // how early before Start a class may open
	CloseGrace time.Duration // fallback grace after End when no deadline was recorded
	Location   *time.Location
}

// DefaultRules opens up to five minutes early and closes one minute after the
// scheduled end.
func DefaultRules(loc *time.Location) Rules {
	if loc == nil {
		loc = time.UTC
	}
	return Rules{OpenLead: 5 * time.Minute, CloseGrace: time.Minute, Location: loc}
}

// Transition is the decision for one class.
type Transition struct {
	Action  Action
	Reason  string
	Session *attendance.ActiveSession // set when Action is ActionOpen
}

// Decide computes what should happen to class at now. It has no side effects.
func Decide(class attendance.ClassSession, now time.Time, rules Rules) (Transition, error) {
	if class.Mode == attendance.ControlManual {
		return Transition{Action: ActionNone, Reason: ReasonManual}, nil
	}
	loc := rules.Location
	if loc == nil {
		loc = time.UTC
	}

	if class.IsOpen {
		return decideClose(class, now, rules, loc)
	}
	if err := class.Schedule.Validate(); err != nil {
		return Transition{}, err
	}
	return decideOpen(class, now, rules, loc), nil
}

// decideClose needs a valid schedule only for the fallback rule; a recorded
// deadline closes the session whatever the schedule says now.
func decideClose(class attendance.ClassSession, now time.Time, rules Rules, loc *time.Location) (Transition, error) {
	if s := class.Session; s != nil && s.AutoCloseAt != nil {
		if now.After(*s.AutoCloseAt) {
			return Transition{Action: ActionClose, Reason: ReasonDeadline}, nil
		}
		return Transition{Action: ActionNone, Reason: ReasonStillOpen}, nil
	}
	if err := class.Schedule.Validate(); err != nil {
		return Transition{}, err
	}

	// no deadline recorded: fall back to the scheduled end of the day the
	// session opened
	ref := now
	if class.Session != nil && !class.Session.OpenedAt.IsZero() {
		ref = class.Session.OpenedAt
	}
	end := class.Schedule.End.On(ref, loc)
	if now.After(end.Add(rules.CloseGrace)) {
		return Transition{Action: ActionClose, Reason: ReasonScheduledEnd}, nil
	}
	return Transition{Action: ActionNone, Reason: ReasonStillOpen}, nil
}

func decideOpen(class attendance.ClassSession, now time.Time, rules Rules, loc *time.Location) Transition {
	local := now.In(loc)
	if !class.Schedule.MeetsOn(local.Weekday()) {
		return Transition{Action: ActionNone, Reason: ReasonNotToday}
	}

	start := class.Schedule.Start.On(local, loc)
	end := class.Schedule.End.On(local, loc)
	windowStart := start.Add(-rules.OpenLead)
	if now.Before(windowStart) || now.After(end) {
		return Transition{Action: ActionNone, Reason: ReasonOutOfWindow}
	}
	if class.ClosedAt != nil && !class.ClosedAt.Before(windowStart) {
		return Transition{Action: ActionNone, Reason: ReasonAlreadyHeld}
	}
	if class.Building == nil {
		return Transition{Action: ActionNone, Reason: ReasonNoBuilding}
	}

	center := *class.Building
	deadline := now.Add(class.Schedule.Duration())
	return Transition{
		Action: ActionOpen,
		Reason: ReasonInWindow,
		Session: &attendance.ActiveSession{
			Center:      &center,
			OpenedAt:    now,
			AutoCloseAt: &deadline,
		},
	}
}

// ClassStore is the part of attendance.Store the sweep needs.
type ClassStore interface {
	ListTimeBasedClasses(ctx context.Context) ([]attendance.ClassSession, error)
	OpenClass(ctx context.Context, id string, session attendance.ActiveSession) (bool, error)
	CloseClass(ctx context.Context, id string, at time.Time) (bool, error)
}

// Summary counts what one sweep did.
type Summary struct {
	Evaluated int
	Opened    int
	Closed    int
	Unchanged int
	Skipped   int // time-based classes that should open but have no building
	Failed    int
}

func (s Summary) String() string {
	return fmt.Sprintf("evaluated=%d opened=%d closed=%d unchanged=%d skipped=%d failed=%d",
		s.Evaluated, s.Opened, s.Closed, s.Unchanged, s.Skipped, s.Failed)
}

// Sweeper applies Decide to every time-based class.
type Sweeper struct {
	store ClassStore
	rules Rules
}

// NewSweeper creates a sweeper.
func NewSweeper(store ClassStore, rules Rules) *Sweeper {
	return &Sweeper{store: store, rules: rules}
}

// Sweep lists the time-based classes and applies due transitions. A listing
// failure aborts the whole sweep; a failure on one class is logged, counted
// and skipped.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Summary, error) {
	started := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(started).Seconds()) }()

	classes, err := s.store.ListTimeBasedClasses(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list time-based classes: %w", err)
	}
	return s.Apply(ctx, classes, now), nil
}

// Apply runs one sweep over an already fetched class list.
func (s *Sweeper) Apply(ctx context.Context, classes []attendance.ClassSession, now time.Time) Summary {
	var sum Summary
	for _, class := range classes {
		if class.Mode != attendance.ControlTimeBased {
			continue
		}
		sum.Evaluated++
		action, err := s.applyOne(ctx, class, now)
		if err != nil {
			sum.Failed++
			metrics.SweepFailures.Inc()
			report.Error("sweep: class failed", err, map[string]interface{}{"class_id": class.ID, "code": class.Code})
			continue
		}
		switch action {
		case ActionOpen:
			sum.Opened++
		case ActionClose:
			sum.Closed++
		case actionSkipped:
			sum.Skipped++
		default:
			sum.Unchanged++
		}
	}
	return sum
}

const actionSkipped Action = "skipped"

func (s *Sweeper) applyOne(ctx context.Context, class attendance.ClassSession, now time.Time) (action Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating class %s: %v", class.Code, r)
		}
	}()

	tr, err := Decide(class, now, s.rules)
	if err != nil {
		return ActionNone, err
	}

	switch tr.Action {
	case ActionOpen:
		changed, err := s.store.OpenClass(ctx, class.ID, *tr.Session)
		if err != nil {
			return ActionNone, fmt.Errorf("open class %s: %w", class.Code, err)
		}
		if !changed {
			return ActionNone, nil
		}
		metrics.SweepTransitions.WithLabelValues(string(ActionOpen)).Inc()
		log.Printf("sweep: opened %s (%s), auto-close at %s", class.Code, tr.Reason, tr.Session.AutoCloseAt.Format(time.RFC3339))
		return ActionOpen, nil

	case ActionClose:
		changed, err := s.store.CloseClass(ctx, class.ID, now)
		if err != nil {
			return ActionNone, fmt.Errorf("close class %s: %w", class.Code, err)
		}
		if !changed {
			return ActionNone, nil
		}
		metrics.SweepTransitions.WithLabelValues(string(ActionClose)).Inc()
		log.Printf("sweep: closed %s (%s)", class.Code, tr.Reason)
		return ActionClose, nil
	}

	if tr.Reason == ReasonNoBuilding {
		report.Warn("sweep: class due to open has no building location",
			map[string]interface{}{"class_id": class.ID, "code": class.Code})
		return actionSkipped, nil
	}
	return ActionNone, nil
}
