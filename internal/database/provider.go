package database

import (
	"context"
	"errors"
	"sync"
)

var errNotInitialized = errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")

// Backend holds the repository constructors of the active storage backend.
type Backend struct {
	Schools    func() SchoolWriter
	Sections   func() SectionWriter
	Students   func() StudentWriter
	Users      func() UserWriter
	Attendance func() AttendanceWriter
}

var (
	backendMu   sync.RWMutex
	backend     Backend
	initialized bool
	faceIndex   *FaceIndex // Singleton shared by enrollment handlers
)

// RegisterPostgresBackend registers the repository constructors.
// This is called by the serve command to avoid import cycles with the postgres package.
func RegisterPostgresBackend(b Backend) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backend = b
	initialized = true
}

// ResetBackend clears all registrations. Used by tests.
func ResetBackend() {
	backendMu.Lock()
	defer backendMu.Unlock()
	backend = Backend{}
	initialized = false
	faceIndex = nil
}

// IsInitialized returns whether a backend has been registered.
func IsInitialized() bool {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return initialized
}

// RegisterFaceIndex registers the in-memory face index.
func RegisterFaceIndex(idx *FaceIndex) {
	backendMu.Lock()
	defer backendMu.Unlock()
	faceIndex = idx
}

// GetFaceIndex returns the registered face index, or nil if not registered.
func GetFaceIndex() *FaceIndex {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return faceIndex
}

func get[T any](ctor func() T, name string) (T, error) {
	var zero T
	backendMu.RLock()
	ok := initialized
	backendMu.RUnlock()
	if !ok {
		return zero, errNotInitialized
	}
	if ctor == nil {
		return zero, errors.New("PostgreSQL " + name + " repository not registered")
	}
	return ctor(), nil
}

func current() Backend {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backend
}

// GetSchoolWriter returns the school repository
func GetSchoolWriter(ctx context.Context) (SchoolWriter, error) {
	return get(current().Schools, "school")
}

// GetSectionWriter returns the section repository
func GetSectionWriter(ctx context.Context) (SectionWriter, error) {
	return get(current().Sections, "section")
}

// GetStudentWriter returns the student repository
func GetStudentWriter(ctx context.Context) (StudentWriter, error) {
	return get(current().Students, "student")
}

// GetUserWriter returns the user repository
func GetUserWriter(ctx context.Context) (UserWriter, error) {
	return get(current().Users, "user")
}

// GetAttendanceWriter returns the attendance repository
func GetAttendanceWriter(ctx context.Context) (AttendanceWriter, error) {
	return get(current().Attendance, "attendance")
}
