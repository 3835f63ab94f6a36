package attendance

import (
	"context"
	"time"
)

// Store is the persistence boundary for classes, records and guardians.
// CreateRecord must reject a second record for the same class, student and
// date with ErrDuplicate, atomically.
type Store interface {
	GetClass(ctx context.Context, id string) (ClassSession, error)
	ListTimeBasedClasses(ctx context.Context) ([]ClassSession, error)
	// OpenClass opens a closed class; changed is false if it was already open.
	OpenClass(ctx context.Context, id string, session ActiveSession) (changed bool, err error)
	// CloseClass closes an open class; changed is false if it was already closed.
	CloseClass(ctx context.Context, id string, at time.Time) (changed bool, err error)

	FindRecord(ctx context.Context, classID, studentID string, date time.Time) (*AttendanceRecord, error)
	CreateRecord(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error)
	ListRecords(ctx context.Context, classID string, date time.Time) ([]AttendanceRecord, error)
	DeleteRecord(ctx context.Context, id string) error

	GuardianContacts(ctx context.Context, studentID string) ([]Contact, error)
}
