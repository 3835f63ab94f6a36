package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinpoint/internal/geofence"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
	err     error
}

func (n *recordingNotifier) AttendanceAdmitted(_ context.Context, notice Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func setup(t *testing.T, classes ...ClassSession) (*Service, *MemoryStore, *recordingNotifier) {
	t.Helper()
	store := NewMemoryStore()
	for _, c := range classes {
		store.PutClass(c)
	}
	notifier := &recordingNotifier{}
	svc := NewService(store, notifier, time.UTC).WithClock(func() time.Time { return openedAt })
	return svc, store, notifier
}

func TestSignIn_Scenario(t *testing.T) {
	ctx := context.Background()
	closed := openClass()
	closed.ID, closed.Code, closed.IsOpen, closed.Session = "cls-2", "CS102", false, nil
	svc, store, notifier := setup(t, openClass(), closed)

	at := openedAt.Add(10 * time.Minute)
	adm, err := svc.SignIn(ctx, "cls-1", candidate(40, at))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmit, adm.Verdict.Outcome)
	assert.Equal(t, StatusOnTime, adm.Verdict.Status)
	assert.InDelta(t, 40, adm.Verdict.Distance, 0.01)
	require.NotNil(t, adm.Record)
	assert.Equal(t, "ana@campus.edu", adm.Record.StudentID)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), adm.Record.Date)

	again, err := svc.SignIn(ctx, "cls-1", candidate(40, at.Add(5*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySignedIn, again.Verdict.Outcome)
	assert.Equal(t, at, again.Verdict.SignInTime)
	assert.Nil(t, again.Record)

	far := candidate(150, at)
	far.StudentID = "ben@campus.edu"
	out, err := svc.SignIn(ctx, "cls-1", far)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOutOfRange, out.Verdict.Outcome)
	assert.InDelta(t, 150, out.Verdict.Distance, 0.01)

	notOpen, err := svc.SignIn(ctx, "cls-2", candidate(0, at))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotOpen, notOpen.Verdict.Outcome)

	recs, err := store.ListRecords(ctx, "cls-1", DateOf(at, time.UTC))
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	require.Len(t, notifier.notices, 1)
	n := notifier.notices[0]
	assert.Equal(t, "Ana", n.StudentName)
	assert.Equal(t, "Intro to Computing", n.ClassName)
	assert.Equal(t, "Prof. Reyes", n.TeacherName)
	assert.Equal(t, at, n.SignInTime)
	assert.False(t, n.IsLate)
}

func TestSignIn_StudentIdentityNormalized(t *testing.T) {
	svc, _, _ := setup(t, openClass())
	c := candidate(10, openedAt)
	c.StudentID = "  Ana@Campus.EDU "
	_, err := svc.SignIn(context.Background(), "cls-1", c)
	require.NoError(t, err)

	adm, err := svc.SignIn(context.Background(), "cls-1", candidate(10, openedAt.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySignedIn, adm.Verdict.Outcome)
}

func TestSignIn_NextDayIsNewRecord(t *testing.T) {
	svc, _, _ := setup(t, openClass())
	ctx := context.Background()
	_, err := svc.SignIn(ctx, "cls-1", candidate(10, openedAt))
	require.NoError(t, err)

	adm, err := svc.SignIn(ctx, "cls-1", candidate(10, openedAt.Add(24*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdmit, adm.Verdict.Outcome)
	assert.Equal(t, StatusLate, adm.Verdict.Status)
}

func TestSignIn_DateUsesCampusZone(t *testing.T) {
	manila := time.FixedZone("PHT", 8*60*60)
	store := NewMemoryStore()
	store.PutClass(openClass())
	svc := NewService(store, nil, manila)

	// 17:00 UTC is 01:00 the next day in Manila
	adm, err := svc.SignIn(context.Background(), "cls-1", candidate(10, time.Date(2026, 10, 19, 17, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.NotNil(t, adm.Record)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), adm.Record.Date)
}

func TestSignIn_ConcurrentDuplicatesAdmitOnce(t *testing.T) {
	svc, store, _ := setup(t, openClass())
	ctx := context.Background()

	var wg sync.WaitGroup
	outcomes := make(chan Outcome, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adm, err := svc.SignIn(ctx, "cls-1", candidate(10, openedAt.Add(time.Minute)))
			if err == nil {
				outcomes <- adm.Verdict.Outcome
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	admitted := 0
	for o := range outcomes {
		if o == OutcomeAdmit {
			admitted++
		} else {
			assert.Equal(t, OutcomeAlreadySignedIn, o)
		}
	}
	assert.Equal(t, 1, admitted)
	recs, _ := store.ListRecords(ctx, "cls-1", DateOf(openedAt, time.UTC))
	assert.Len(t, recs, 1)
}

// racingStore hides the first record from FindRecord so the insert races.
type racingStore struct {
	*MemoryStore
	hidden bool
}

func (r *racingStore) FindRecord(ctx context.Context, classID, studentID string, date time.Time) (*AttendanceRecord, error) {
	if !r.hidden {
		r.hidden = true
		return nil, nil
	}
	return r.MemoryStore.FindRecord(ctx, classID, studentID, date)
}

func TestSignIn_DuplicateInsertBecomesAlreadySignedIn(t *testing.T) {
	mem := NewMemoryStore()
	mem.PutClass(openClass())
	first := openedAt.Add(2 * time.Minute)
	_, err := mem.CreateRecord(context.Background(), AttendanceRecord{
		ClassID: "cls-1", StudentID: "ana@campus.edu", Date: DateOf(openedAt, time.UTC), SignedInAt: first,
	})
	require.NoError(t, err)

	svc := NewService(&racingStore{MemoryStore: mem}, nil, time.UTC)
	adm, err := svc.SignIn(context.Background(), "cls-1", candidate(10, openedAt.Add(3*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySignedIn, adm.Verdict.Outcome)
	assert.Equal(t, first, adm.Verdict.SignInTime)
}

// vanishingStore reports a duplicate on insert while the winning record
// cannot be read back, as when it is deleted in between.
type vanishingStore struct {
	*MemoryStore
	duplicates int
	inserts    int
}

func (v *vanishingStore) CreateRecord(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error) {
	v.inserts++
	if v.inserts <= v.duplicates {
		return AttendanceRecord{}, ErrDuplicate
	}
	return v.MemoryStore.CreateRecord(ctx, rec)
}

func TestSignIn_DuplicateWithoutWinner(t *testing.T) {
	tests := []struct {
		name       string
		duplicates int
		admitted   bool
	}{
		{name: "second insert succeeds", duplicates: 1, admitted: true},
		{name: "second insert also duplicate", duplicates: 10, admitted: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := NewMemoryStore()
			mem.PutClass(openClass())
			store := &vanishingStore{MemoryStore: mem, duplicates: tt.duplicates}
			notifier := &recordingNotifier{}
			svc := NewService(store, notifier, time.UTC)

			adm, err := svc.SignIn(context.Background(), "cls-1", candidate(10, openedAt.Add(time.Minute)))
			assert.Equal(t, 2, store.inserts)
			if !tt.admitted {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrDuplicate)
				assert.Nil(t, adm.Record)
				assert.False(t, adm.Verdict.Admitted())
				assert.Empty(t, notifier.notices)
				return
			}
			require.NoError(t, err)
			require.True(t, adm.Verdict.Admitted())
			require.NotNil(t, adm.Record)
			assert.NotEmpty(t, adm.Record.ID)
			assert.Len(t, notifier.notices, 1)
		})
	}
}

func TestSignIn_NotificationFailureKeepsRecord(t *testing.T) {
	svc, store, notifier := setup(t, openClass())
	notifier.err = errors.New("queue down")

	adm, err := svc.SignIn(context.Background(), "cls-1", candidate(10, openedAt.Add(20*time.Minute)))
	require.NoError(t, err)
	assert.True(t, adm.Verdict.Admitted())
	assert.Equal(t, StatusLate, adm.Verdict.Status)

	rec, err := store.FindRecord(context.Background(), "cls-1", "ana@campus.edu", DateOf(openedAt, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, notifier.notices[0].IsLate)
}

func TestSignIn_UnknownClass(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.SignIn(context.Background(), "nope", candidate(0, openedAt))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenAndCloseClass(t *testing.T) {
	ctx := context.Background()
	building := geofence.Point{Lat: 10.5, Lon: 122.5}
	cls := openClass()
	cls.IsOpen, cls.Session, cls.Building = false, nil, &building
	svc, _, _ := setup(t, cls)

	teacherSpot := geofence.Point{Lat: 10.1, Lon: 122.1}
	opened, err := svc.OpenClass(ctx, "cls-1", &teacherSpot)
	require.NoError(t, err)
	require.NotNil(t, opened.Session)
	assert.Equal(t, teacherSpot, *opened.Session.Center)
	assert.Equal(t, openedAt, opened.Session.OpenedAt)
	require.NotNil(t, opened.Session.AutoCloseAt)
	assert.Equal(t, openedAt.Add(time.Hour), *opened.Session.AutoCloseAt)

	_, err = svc.OpenClass(ctx, "cls-1", nil)
	assert.ErrorIs(t, err, ErrAlreadyOpen)

	closed, err := svc.CloseClass(ctx, "cls-1")
	require.NoError(t, err)
	assert.False(t, closed.IsOpen)
	assert.Nil(t, closed.Session)
	require.NotNil(t, closed.ClosedAt)

	_, err = svc.CloseClass(ctx, "cls-1")
	assert.ErrorIs(t, err, ErrNotOpen)

	reopened, err := svc.OpenClass(ctx, "cls-1", nil)
	require.NoError(t, err)
	assert.Equal(t, building, *reopened.Session.Center)
}

func TestOpenClass_ManualHasNoDeadline(t *testing.T) {
	cls := openClass()
	cls.IsOpen, cls.Session, cls.Mode = false, nil, ControlManual
	svc, _, _ := setup(t, cls)

	opened, err := svc.OpenClass(context.Background(), "cls-1", &geofence.Point{Lat: 10, Lon: 122})
	require.NoError(t, err)
	assert.Nil(t, opened.Session.AutoCloseAt)
}

func TestAttendanceAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t, openClass())
	adm, err := svc.SignIn(ctx, "cls-1", candidate(5, openedAt.Add(time.Minute)))
	require.NoError(t, err)

	recs, err := svc.Attendance(ctx, "cls-1", svc.Today())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, adm.Record.ID, recs[0].ID)

	require.NoError(t, svc.DeleteRecord(ctx, adm.Record.ID))
	assert.ErrorIs(t, svc.DeleteRecord(ctx, adm.Record.ID), ErrNotFound)

	// deleting lets the student sign in again the same day
	again, err := svc.SignIn(ctx, "cls-1", candidate(5, openedAt.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.True(t, again.Verdict.Admitted())
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(510), c)
	assert.Equal(t, "08:30", c.String())

	_, err = ParseClock("8.30")
	assert.Error(t, err)
}

func TestScheduleValidate(t *testing.T) {
	assert.NoError(t, Schedule{Start: 480, End: 540}.Validate())
	assert.ErrorIs(t, Schedule{Start: 540, End: 480}.Validate(), ErrInvalidSchedule)
	assert.ErrorIs(t, Schedule{Start: 480, End: 480}.Validate(), ErrInvalidSchedule)
}

func TestDaysMask(t *testing.T) {
	days := []time.Weekday{time.Monday, time.Wednesday, time.Friday}
	assert.Equal(t, days, daysFromMask(DaysMask(days)))
	assert.Nil(t, daysFromMask(0))
}
