package attendance

import (
	"time"

	"pinpoint/internal/geofence"
)

// Outcome is the decision reached for a sign-in attempt.
type Outcome string

const (
	OutcomeAdmit           Outcome = "admit"
	OutcomeNotOpen         Outcome = "not_open"
	OutcomeNoGeofence      Outcome = "no_geofence"
	OutcomeOutOfRange      Outcome = "out_of_range"
	OutcomeAlreadySignedIn Outcome = "already_signed_in"
)

// Verdict is the result of Evaluate. Distance and Radius are set once the
// geofence has been measured; SignInTime is the candidate's time on admit and
// the earlier sign-in on already_signed_in.
type Verdict struct {
	Outcome    Outcome
	Status     Status
	Distance   float64
	Radius     float64
	SignInTime time.Time
}

// Admitted reports whether the verdict lets the student in.
func (v Verdict) Admitted() bool { return v.Outcome == OutcomeAdmit }

// Evaluate decides whether cand may sign in to class. prior is the record
// already stored for the same class, student and day, or nil.
func Evaluate(class ClassSession, prior *AttendanceRecord, cand Candidate) Verdict {
	if !class.IsOpen {
		return Verdict{Outcome: OutcomeNotOpen}
	}
	if class.Session == nil || class.Session.Center == nil {
		return Verdict{Outcome: OutcomeNoGeofence}
	}

	fence := geofence.Evaluate(*class.Session.Center, cand.Position, class.GeofenceRadius)
	if !fence.Inside {
		return Verdict{Outcome: OutcomeOutOfRange, Distance: fence.Distance, Radius: fence.Radius}
	}

	if prior != nil {
		return Verdict{
			Outcome:    OutcomeAlreadySignedIn,
			Status:     prior.Status,
			Distance:   fence.Distance,
			Radius:     fence.Radius,
			SignInTime: prior.SignedInAt,
		}
	}

	return Verdict{
		Outcome:    OutcomeAdmit,
		Status:     lateness(class.Session.OpenedAt, class.LateThreshold, cand.At),
		Distance:   fence.Distance,
		Radius:     fence.Radius,
		SignInTime: cand.At,
	}
}

// lateness measures from the actual opening, not the scheduled start.
// A session with no recorded opening time has no reference point and every
// sign-in counts as on time.
func lateness(openedAt time.Time, threshold time.Duration, at time.Time) Status {
	if openedAt.IsZero() {
		return StatusOnTime
	}
	if at.After(openedAt.Add(threshold)) {
		return StatusLate
	}
	return StatusOnTime
}
