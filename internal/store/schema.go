package store

import (
	"context"
	"fmt"
)

// schema is idempotent; Migrate may run on every deploy.
const schema = `
CREATE TABLE IF NOT EXISTS buildings (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	latitude   DOUBLE PRECISION NOT NULL CHECK (latitude BETWEEN -90 AND 90),
	longitude  DOUBLE PRECISION NOT NULL CHECK (longitude BETWEEN -180 AND 180)
);

CREATE TABLE IF NOT EXISTS classes (
	id                      TEXT PRIMARY KEY,
	code                    TEXT UNIQUE NOT NULL,
	name                    TEXT NOT NULL,
	teacher_name            TEXT NOT NULL DEFAULT '',
	teacher_email           TEXT NOT NULL DEFAULT '',
	building_id             TEXT REFERENCES buildings(id) ON DELETE SET NULL,
	days_mask               INTEGER NOT NULL DEFAULT 0,
	start_minute            INTEGER NOT NULL,
	end_minute              INTEGER NOT NULL,
	control_mode            TEXT NOT NULL DEFAULT 'time' CHECK (control_mode IN ('time', 'manual')),
	late_threshold_minutes  INTEGER NOT NULL DEFAULT 15 CHECK (late_threshold_minutes >= 0),
	geofence_radius_m       DOUBLE PRECISION NOT NULL CHECK (geofence_radius_m >= 0),
	is_open                 BOOLEAN NOT NULL DEFAULT FALSE,
	session_latitude        DOUBLE PRECISION,
	session_longitude       DOUBLE PRECISION,
	opened_at               TIMESTAMPTZ,
	auto_close_at           TIMESTAMPTZ,
	closed_at               TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_classes_mode ON classes(control_mode);

CREATE TABLE IF NOT EXISTS attendance_records (
	id               TEXT PRIMARY KEY,
	class_id         TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
	student_id       TEXT NOT NULL,
	student_name     TEXT NOT NULL DEFAULT '',
	attendance_date  DATE NOT NULL,
	signed_in_at     TIMESTAMPTZ NOT NULL,
	status           TEXT NOT NULL CHECK (status IN ('on_time', 'late')),
	distance_m       DOUBLE PRECISION NOT NULL,
	latitude         DOUBLE PRECISION NOT NULL,
	longitude        DOUBLE PRECISION NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (class_id, student_id, attendance_date)
);

CREATE INDEX IF NOT EXISTS idx_attendance_class_date ON attendance_records(class_id, attendance_date);

CREATE TABLE IF NOT EXISTS guardians (
	id          TEXT PRIMARY KEY,
	student_id  TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_guardians_student ON guardians(student_id);
`

// Migrate creates the tables if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Client.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
