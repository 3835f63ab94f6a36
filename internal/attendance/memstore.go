package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory. It backs tests and the
// STORE_BACKEND=memory development mode.
type MemoryStore struct {
	mu        sync.Mutex
	classes   map[string]ClassSession
	records   map[string]AttendanceRecord
	guardians map[string][]Contact
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		classes:   make(map[string]ClassSession),
		records:   make(map[string]AttendanceRecord),
		guardians: make(map[string][]Contact),
	}
}

// PutClass inserts or replaces a class.
func (m *MemoryStore) PutClass(c ClassSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[c.ID] = c
}

// AddGuardian registers a guardian for a student.
func (m *MemoryStore) AddGuardian(studentID string, c Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := NormalizeStudentID(studentID)
	m.guardians[id] = append(m.guardians[id], c)
}

func (m *MemoryStore) GetClass(_ context.Context, id string) (ClassSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[id]
	if !ok {
		return ClassSession{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) ListTimeBasedClasses(_ context.Context) ([]ClassSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ClassSession
	for _, c := range m.classes {
		if c.Mode == ControlTimeBased {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) OpenClass(_ context.Context, id string, session ActiveSession) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[id]
	if !ok {
		return false, ErrNotFound
	}
	if c.IsOpen {
		return false, nil
	}
	c.IsOpen = true
	c.Session = &session
	m.classes[id] = c
	return true, nil
}

func (m *MemoryStore) CloseClass(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[id]
	if !ok {
		return false, ErrNotFound
	}
	if !c.IsOpen {
		return false, nil
	}
	c.IsOpen = false
	c.Session = nil
	c.ClosedAt = &at
	m.classes[id] = c
	return true, nil
}

func (m *MemoryStore) FindRecord(_ context.Context, classID, studentID string, date time.Time) (*AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.find(classID, studentID, date); ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *MemoryStore) find(classID, studentID string, date time.Time) (AttendanceRecord, bool) {
	for _, r := range m.records {
		if r.ClassID == classID && r.StudentID == studentID && r.Date.Equal(date) {
			return r, true
		}
	}
	return AttendanceRecord{}, false
}

func (m *MemoryStore) CreateRecord(_ context.Context, rec AttendanceRecord) (AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.find(rec.ClassID, rec.StudentID, rec.Date); ok {
		return AttendanceRecord{}, ErrDuplicate
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.records[rec.ID] = rec
	return rec, nil
}

func (m *MemoryStore) ListRecords(_ context.Context, classID string, date time.Time) ([]AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AttendanceRecord
	for _, r := range m.records {
		if r.ClassID == classID && r.Date.Equal(date) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignedInAt.Before(out[j].SignedInAt) })
	return out, nil
}

func (m *MemoryStore) DeleteRecord(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) GuardianContacts(_ context.Context, studentID string) ([]Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Contact(nil), m.guardians[NormalizeStudentID(studentID)]...), nil
}
