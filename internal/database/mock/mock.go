// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/school-attendance/internal/database"
)

// Store is the shared in-memory state behind the mock repositories.
type Store struct {
	mu         sync.RWMutex
	seq        int
	embSeq     int64
	schools    map[string]*database.School
	sections   map[string]*database.Section
	students   map[string]*database.Student
	embeddings []database.StudentEmbedding
	users      map[string]*database.User
	attendance map[string]*database.AttendanceRecord // keyed by student|section|date

	Schools    *MockSchoolWriter
	Sections   *MockSectionWriter
	Students   *MockStudentWriter
	Users      *MockUserWriter
	Attendance *MockAttendanceWriter
}

// NewStore creates an empty store with all repositories attached
func NewStore() *Store {
	s := &Store{
		schools:    make(map[string]*database.School),
		sections:   make(map[string]*database.Section),
		students:   make(map[string]*database.Student),
		users:      make(map[string]*database.User),
		attendance: make(map[string]*database.AttendanceRecord),
	}
	s.Schools = &MockSchoolWriter{store: s}
	s.Sections = &MockSectionWriter{store: s}
	s.Students = &MockStudentWriter{store: s}
	s.Users = &MockUserWriter{store: s}
	s.Attendance = &MockAttendanceWriter{store: s}
	return s
}

// Backend returns constructors for registering the store with the database package
func (s *Store) Backend() database.Backend {
	return database.Backend{
		Schools:    func() database.SchoolWriter { return s.Schools },
		Sections:   func() database.SectionWriter { return s.Sections },
		Students:   func() database.StudentWriter { return s.Students },
		Users:      func() database.UserWriter { return s.Users },
		Attendance: func() database.AttendanceWriter { return s.Attendance },
	}
}

// nextID must be called with the lock held
func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// MockSchoolWriter is a mock implementation of database.SchoolWriter
type MockSchoolWriter struct {
	store *Store

	// Error injection
	GetError    error
	ListError   error
	CreateError error
}

// Get retrieves a school by ID
func (m *MockSchoolWriter) Get(ctx context.Context, id string) (*database.School, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	s, ok := m.store.schools[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// GetByName retrieves a school by exact name
func (m *MockSchoolWriter) GetByName(ctx context.Context, name string) (*database.School, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	for _, s := range m.store.schools {
		if s.Name == name {
			cp := *s
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

// List returns all schools ordered by name
func (m *MockSchoolWriter) List(ctx context.Context) ([]database.School, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	result := make([]database.School, 0, len(m.store.schools))
	for _, s := range m.store.schools {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Create stores a school
func (m *MockSchoolWriter) Create(ctx context.Context, school *database.School) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.store.createSchoolLocked(school)
}

func (s *Store) createSchoolLocked(school *database.School) error {
	for _, existing := range s.schools {
		if existing.Name == school.Name {
			return database.ErrDuplicate
		}
	}
	if school.ID == "" {
		school.ID = s.nextID("school")
	}
	school.CreatedAt = time.Now()
	cp := *school
	s.schools[school.ID] = &cp
	return nil
}

// CreateWithAdmin stores a school and its principal atomically
func (m *MockSchoolWriter) CreateWithAdmin(ctx context.Context, school *database.School, admin *database.User) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.store.emailTakenLocked(admin.Email) {
		return database.ErrDuplicateEmail
	}
	if err := m.store.createSchoolLocked(school); err != nil {
		return err
	}
	admin.SchoolID = school.ID
	m.store.createUserLocked(admin)
	return nil
}

// MockSectionWriter is a mock implementation of database.SectionWriter
type MockSectionWriter struct {
	store *Store

	// Error injection
	GetError    error
	ListError   error
	CreateError error
}

// AddSection adds a section directly to the store
func (m *MockSectionWriter) AddSection(section database.Section) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.sections[section.ID] = &section
}

// Get retrieves a section by ID
func (m *MockSectionWriter) Get(ctx context.Context, id string) (*database.Section, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	s, ok := m.store.sections[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// List returns sections of a school
func (m *MockSectionWriter) List(ctx context.Context, schoolID string) ([]database.Section, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var result []database.Section
	for _, s := range m.store.sections {
		if schoolID == "" || s.SchoolID == schoolID {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Grade != result[j].Grade {
			return result[i].Grade < result[j].Grade
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// Create stores a section
func (m *MockSectionWriter) Create(ctx context.Context, section *database.Section) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, existing := range m.store.sections {
		if existing.SchoolID == section.SchoolID && existing.Name == section.Name {
			return database.ErrDuplicate
		}
	}
	if section.ID == "" {
		section.ID = m.store.nextID("section")
	}
	section.CreatedAt = time.Now()
	cp := *section
	m.store.sections[section.ID] = &cp
	return nil
}

// MockStudentWriter is a mock implementation of database.StudentWriter
type MockStudentWriter struct {
	store *Store

	// Error injection
	GetError                error
	ListError               error
	ListWithEmbeddingsError error
	CreateError             error
	AddEmbeddingsError      error
}

// AddStudent adds a student with optional embeddings directly to the store
func (m *MockStudentWriter) AddStudent(student database.Student, embeddings ...[]float32) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.students[student.ID] = &student
	for _, e := range embeddings {
		m.store.addEmbeddingLocked(student.ID, e, "mock")
	}
}

func (s *Store) addEmbeddingLocked(studentID string, e []float32, model string) database.StudentEmbedding {
	s.embSeq++
	emb := database.StudentEmbedding{
		ID:        s.embSeq,
		StudentID: studentID,
		Embedding: e,
		Model:     model,
		Dim:       len(e),
		CreatedAt: time.Now(),
	}
	s.embeddings = append(s.embeddings, emb)
	return s.decorateLocked(emb)
}

func (s *Store) decorateLocked(emb database.StudentEmbedding) database.StudentEmbedding {
	if st, ok := s.students[emb.StudentID]; ok {
		emb.StudentName = st.Name
		emb.SectionID = st.SectionID
		emb.TwinGroupID = st.TwinGroupID
		if sec, ok := s.sections[st.SectionID]; ok {
			emb.SchoolID = sec.SchoolID
		}
	}
	return emb
}

func (s *Store) embeddingCountLocked(studentID string) int {
	n := 0
	for _, e := range s.embeddings {
		if e.StudentID == studentID {
			n++
		}
	}
	return n
}

// Get retrieves a student by ID
func (m *MockStudentWriter) Get(ctx context.Context, id string) (*database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	s, ok := m.store.students[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *s
	cp.EmbeddingCount = m.store.embeddingCountLocked(id)
	return &cp, nil
}

// List returns students matching the filter ordered by name
func (m *MockStudentWriter) List(ctx context.Context, filter database.StudentFilter) ([]database.Student, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var result []database.Student
	for _, s := range m.store.students {
		if filter.SectionIDs != nil && !slices.Contains(filter.SectionIDs, s.SectionID) {
			continue
		}
		cp := *s
		cp.EmbeddingCount = m.store.embeddingCountLocked(s.ID)
		if filter.EnrolledOnly && cp.EmbeddingCount == 0 {
			continue
		}
		result = append(result, cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// CountBySection returns the number of students in a section
func (m *MockStudentWriter) CountBySection(ctx context.Context, sectionID string) (int, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	n := 0
	for _, s := range m.store.students {
		if s.SectionID == sectionID {
			n++
		}
	}
	return n, nil
}

// ListWithEmbeddings returns every student of a section with their embeddings
func (m *MockStudentWriter) ListWithEmbeddings(ctx context.Context, sectionID string) ([]database.StudentWithEmbeddings, error) {
	if m.ListWithEmbeddingsError != nil {
		return nil, m.ListWithEmbeddingsError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var result []database.StudentWithEmbeddings
	for _, s := range m.store.students {
		if s.SectionID != sectionID {
			continue
		}
		item := database.StudentWithEmbeddings{Student: *s}
		for _, e := range m.store.embeddings {
			if e.StudentID == s.ID {
				item.Embeddings = append(item.Embeddings, e.Embedding)
			}
		}
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Student.ID < result[j].Student.ID })
	return result, nil
}

// AllEmbeddings returns every embedding with denormalized student data
func (m *MockStudentWriter) AllEmbeddings(ctx context.Context) ([]database.StudentEmbedding, error) {
	if m.ListWithEmbeddingsError != nil {
		return nil, m.ListWithEmbeddingsError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	result := make([]database.StudentEmbedding, 0, len(m.store.embeddings))
	for _, e := range m.store.embeddings {
		result = append(result, m.store.decorateLocked(e))
	}
	return result, nil
}

// Create stores a student
func (m *MockStudentWriter) Create(ctx context.Context, student *database.Student) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.createLocked(student)
}

// CreateWithEmbeddings stores a student and their embeddings. AddEmbeddingsError
// fails the whole call and nothing is stored.
func (m *MockStudentWriter) CreateWithEmbeddings(ctx context.Context, student *database.Student, embeddings [][]float32, model string) ([]database.StudentEmbedding, error) {
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	if m.AddEmbeddingsError != nil {
		return nil, m.AddEmbeddingsError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if err := m.createLocked(student); err != nil {
		return nil, err
	}
	saved := make([]database.StudentEmbedding, 0, len(embeddings))
	for _, e := range embeddings {
		saved = append(saved, m.store.addEmbeddingLocked(student.ID, e, model))
	}
	return saved, nil
}

func (m *MockStudentWriter) createLocked(student *database.Student) error {
	for _, existing := range m.store.students {
		if existing.StudentCode == student.StudentCode {
			return database.ErrDuplicate
		}
	}
	if student.ID == "" {
		student.ID = m.store.nextID("student")
	}
	student.CreatedAt = time.Now()
	cp := *student
	m.store.students[student.ID] = &cp
	return nil
}

// AddEmbeddings appends embeddings to a student
func (m *MockStudentWriter) AddEmbeddings(ctx context.Context, studentID string, embeddings [][]float32, model string) ([]database.StudentEmbedding, error) {
	if m.AddEmbeddingsError != nil {
		return nil, m.AddEmbeddingsError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, ok := m.store.students[studentID]; !ok {
		return nil, database.ErrNotFound
	}
	saved := make([]database.StudentEmbedding, 0, len(embeddings))
	for _, e := range embeddings {
		saved = append(saved, m.store.addEmbeddingLocked(studentID, e, model))
	}
	return saved, nil
}

// MockUserWriter is a mock implementation of database.UserWriter
type MockUserWriter struct {
	store *Store

	// Error injection
	GetError    error
	ListError   error
	CreateError error
	UpdateError error
}

// AddUser adds a user directly to the store
func (m *MockUserWriter) AddUser(user database.User) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	m.store.users[user.ID] = &user
}

func (s *Store) emailTakenLocked(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return true
		}
	}
	return false
}

func (s *Store) createUserLocked(user *database.User) {
	if user.ID == "" {
		user.ID = s.nextID("user")
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
}

// Get retrieves a user by ID
func (m *MockUserWriter) Get(ctx context.Context, id string) (*database.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	u, ok := m.store.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetByEmail retrieves a user by email
func (m *MockUserWriter) GetByEmail(ctx context.Context, email string) (*database.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.store.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

// List returns users with a role, optionally scoped to a school
func (m *MockUserWriter) List(ctx context.Context, role database.Role, schoolID string) ([]database.User, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var result []database.User
	for _, u := range m.store.users {
		if u.Role == role && (schoolID == "" || u.SchoolID == schoolID) {
			result = append(result, *u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FullName < result[j].FullName })
	return result, nil
}

// Create stores a user
func (m *MockUserWriter) Create(ctx context.Context, user *database.User) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.store.emailTakenLocked(user.Email) {
		return database.ErrDuplicateEmail
	}
	m.store.createUserLocked(user)
	return nil
}

// UpdatePassword replaces a user's password hash
func (m *MockUserWriter) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	u, ok := m.store.users[id]
	if !ok {
		return database.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// MockAttendanceWriter is a mock implementation of database.AttendanceWriter
type MockAttendanceWriter struct {
	store *Store

	// Error injection
	ListError      error
	MarkError      error
	SetStatusError error

	// MarkCalls counts MarkPresent invocations
	MarkCalls int
}

func attendanceKey(studentID, sectionID, date string) string {
	return studentID + "|" + sectionID + "|" + date
}

// PresentStudentIDs returns students marked Present in a section on a date
func (m *MockAttendanceWriter) PresentStudentIDs(ctx context.Context, sectionID, date string) ([]string, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var ids []string
	for _, r := range m.store.attendance {
		if r.SectionID == sectionID && r.Date == date && r.Status == database.StatusPresent {
			ids = append(ids, r.StudentID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListBySection returns all records of a section on a date
func (m *MockAttendanceWriter) ListBySection(ctx context.Context, sectionID, date string) ([]database.AttendanceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var result []database.AttendanceRecord
	for _, r := range m.store.attendance {
		if r.SectionID == sectionID && r.Date == date {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StudentID < result[j].StudentID })
	return result, nil
}

// DailyPresentCounts returns one count per day in [from, to]
func (m *MockAttendanceWriter) DailyPresentCounts(ctx context.Context, sectionID, from, to string) ([]database.DailyCount, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return nil, fmt.Errorf("parse from: %w", err)
	}
	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return nil, fmt.Errorf("parse to: %w", err)
	}

	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	var result []database.DailyCount
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day := d.Format(time.DateOnly)
		n := 0
		for _, r := range m.store.attendance {
			if r.SectionID == sectionID && r.Date == day && r.Status == database.StatusPresent {
				n++
			}
		}
		result = append(result, database.DailyCount{Date: day, PresentCount: n})
	}
	return result, nil
}

// MarkPresent records a student present, flipping Absent records
func (m *MockAttendanceWriter) MarkPresent(ctx context.Context, record *database.AttendanceRecord) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.MarkCalls++
	if m.MarkError != nil {
		return m.MarkError
	}
	key := attendanceKey(record.StudentID, record.SectionID, record.Date)
	record.Status = database.StatusPresent
	record.Timestamp = time.Now()
	if existing, ok := m.store.attendance[key]; ok {
		if existing.Status == database.StatusPresent {
			return database.ErrAlreadyMarked
		}
		record.ID = existing.ID
	} else if record.ID == "" {
		record.ID = m.store.nextID("attendance")
	}
	cp := *record
	m.store.attendance[key] = &cp
	return nil
}

// SetStatus creates or overwrites the day's record
func (m *MockAttendanceWriter) SetStatus(ctx context.Context, record *database.AttendanceRecord) error {
	if m.SetStatusError != nil {
		return m.SetStatusError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	key := attendanceKey(record.StudentID, record.SectionID, record.Date)
	record.Timestamp = time.Now()
	if existing, ok := m.store.attendance[key]; ok {
		record.ID = existing.ID
	} else if record.ID == "" {
		record.ID = m.store.nextID("attendance")
	}
	cp := *record
	m.store.attendance[key] = &cp
	return nil
}
