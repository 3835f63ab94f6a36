package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"pinpoint/internal/geofence"
)

const uniqueViolation = "23505"

const dateLayout = "2006-01-02"

// Repository persists classes and attendance in Postgres.
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const classColumns = `
	c.id, c.code, c.name, c.teacher_name, c.teacher_email,
	c.days_mask, c.start_minute, c.end_minute, c.control_mode,
	c.late_threshold_minutes, c.geofence_radius_m, c.is_open,
	c.session_latitude, c.session_longitude, c.opened_at, c.auto_close_at, c.closed_at,
	b.latitude, b.longitude`

const classFrom = `FROM classes c LEFT JOIN buildings b ON b.id = c.building_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClass(row rowScanner) (ClassSession, error) {
	var (
		c                     ClassSession
		mask, start, end      int
		mode                  string
		lateMinutes           int
		sessLat, sessLon      sql.NullFloat64
		openedAt, autoClose   sql.NullTime
		closedAt              sql.NullTime
		buildingLat, buildLon sql.NullFloat64
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.TeacherName, &c.TeacherEmail,
		&mask, &start, &end, &mode,
		&lateMinutes, &c.GeofenceRadius, &c.IsOpen,
		&sessLat, &sessLon, &openedAt, &autoClose, &closedAt,
		&buildingLat, &buildLon,
	)
	if err != nil {
		return ClassSession{}, err
	}

	c.Mode = ControlMode(mode)
	c.Schedule = Schedule{Days: daysFromMask(mask), Start: Clock(start), End: Clock(end)}
	c.LateThreshold = time.Duration(lateMinutes) * time.Minute
	if buildingLat.Valid && buildLon.Valid {
		c.Building = &geofence.Point{Lat: buildingLat.Float64, Lon: buildLon.Float64}
	}
	if closedAt.Valid {
		t := closedAt.Time
		c.ClosedAt = &t
	}
	if c.IsOpen {
		s := &ActiveSession{}
		if sessLat.Valid && sessLon.Valid {
			s.Center = &geofence.Point{Lat: sessLat.Float64, Lon: sessLon.Float64}
		}
		if openedAt.Valid {
			s.OpenedAt = openedAt.Time
		}
		if autoClose.Valid {
			t := autoClose.Time
			s.AutoCloseAt = &t
		}
		c.Session = s
	}
	return c, nil
}

func daysFromMask(mask int) []time.Weekday {
	var days []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if mask&(1<<uint(d)) != 0 {
			days = append(days, d)
		}
	}
	return days
}

// DaysMask encodes a day set as the bitmask stored in classes.days_mask.
func DaysMask(days []time.Weekday) int {
	mask := 0
	for _, d := range days {
		mask |= 1 << uint(d)
	}
	return mask
}

// GetClass returns a class with its building location and live session.
func (r *Repository) GetClass(ctx context.Context, id string) (ClassSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+classColumns+` `+classFrom+` WHERE c.id = $1`, id)
	c, err := scanClass(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ClassSession{}, ErrNotFound
		}
		return ClassSession{}, err
	}
	return c, nil
}

// ListTimeBasedClasses returns every class the scheduler sweep manages.
func (r *Repository) ListTimeBasedClasses(ctx context.Context) ([]ClassSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+classColumns+` `+classFrom+` WHERE c.control_mode = $1 ORDER BY c.code`,
		string(ControlTimeBased))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ClassSession
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// OpenClass snapshots the session onto a closed class.
func (r *Repository) OpenClass(ctx context.Context, id string, s ActiveSession) (bool, error) {
	var lat, lon, autoClose any
	if s.Center != nil {
		lat, lon = s.Center.Lat, s.Center.Lon
	}
	if s.AutoCloseAt != nil {
		autoClose = *s.AutoCloseAt
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE classes
		SET is_open = TRUE, session_latitude = $2, session_longitude = $3,
			opened_at = $4, auto_close_at = $5
		WHERE id = $1 AND is_open = FALSE
	`, id, lat, lon, s.OpenedAt, autoClose)
	if err != nil {
		return false, err
	}
	return r.changed(ctx, res, id)
}

// CloseClass clears the session fields of an open class.
func (r *Repository) CloseClass(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE classes
		SET is_open = FALSE, session_latitude = NULL, session_longitude = NULL,
			opened_at = NULL, auto_close_at = NULL, closed_at = $2
		WHERE id = $1 AND is_open = TRUE
	`, id, at)
	if err != nil {
		return false, err
	}
	return r.changed(ctx, res, id)
}

// changed distinguishes "already in the target state" from "no such class".
func (r *Repository) changed(ctx context.Context, res sql.Result, id string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM classes WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

const recordColumns = `id, class_id, student_id, student_name, attendance_date, signed_in_at,
	status, distance_m, latitude, longitude, created_at`

func scanRecord(row rowScanner) (AttendanceRecord, error) {
	var rec AttendanceRecord
	var status string
	err := row.Scan(&rec.ID, &rec.ClassID, &rec.StudentID, &rec.StudentName, &rec.Date, &rec.SignedInAt,
		&status, &rec.Distance, &rec.Position.Lat, &rec.Position.Lon, &rec.CreatedAt)
	rec.Status = Status(status)
	rec.Date = time.Date(rec.Date.Year(), rec.Date.Month(), rec.Date.Day(), 0, 0, 0, 0, time.UTC)
	return rec, err
}

// FindRecord returns the record for a class, student and day, or nil.
func (r *Repository) FindRecord(ctx context.Context, classID, studentID string, date time.Time) (*AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE class_id = $1 AND student_id = $2 AND attendance_date = $3
	`, classID, studentID, date.Format(dateLayout))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// CreateRecord inserts a record. The unique (class_id, student_id,
// attendance_date) constraint turns a racing duplicate into ErrDuplicate.
func (r *Repository) CreateRecord(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records
			(id, class_id, student_id, student_name, attendance_date, signed_in_at, status, distance_m, latitude, longitude)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, rec.ID, rec.ClassID, rec.StudentID, rec.StudentName, rec.Date.Format(dateLayout), rec.SignedInAt,
		string(rec.Status), rec.Distance, rec.Position.Lat, rec.Position.Lon)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return AttendanceRecord{}, ErrDuplicate
		}
		return AttendanceRecord{}, fmt.Errorf("insert attendance record: %w", err)
	}
	return rec, nil
}

// ListRecords returns a class's records for one day in sign-in order.
func (r *Repository) ListRecords(ctx context.Context, classID string, date time.Time) ([]AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE class_id = $1 AND attendance_date = $2
		ORDER BY signed_in_at
	`, classID, date.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// DeleteRecord removes a record by id.
func (r *Repository) DeleteRecord(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GuardianContacts lists the guardians notified about a student's sign-ins.
func (r *Repository) GuardianContacts(ctx context.Context, studentID string) ([]Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, email FROM guardians WHERE student_id = $1 ORDER BY email
	`, NormalizeStudentID(studentID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.Name, &c.Email); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
