package roster

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kozaktomas/school-attendance/internal/accounts"
	"github.com/kozaktomas/school-attendance/internal/database"
	"github.com/kozaktomas/school-attendance/internal/database/mock"
	"github.com/kozaktomas/school-attendance/internal/embedding"
)

// fakeProvider maps image bytes to fixed vectors.
type fakeProvider struct {
	mu      sync.Mutex
	vectors map[string][]float32
	errs    map[string]error
	calls   int
}

func (f *fakeProvider) ExtractEmbedding(ctx context.Context, image []byte) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[string(image)]; ok {
		return nil, err
	}
	if v, ok := f.vectors[string(image)]; ok {
		return v, nil
	}
	return nil, embedding.ErrNoFaceDetected
}

func (f *fakeProvider) Model() string { return "fake" }
func (f *fakeProvider) Close() error  { return nil }

var (
	govAdmin    = &database.User{ID: "gov", Role: database.RoleGovAdmin}
	schoolAdmin = &database.User{ID: "admin-a", Role: database.RoleSchoolAdmin, SchoolID: "school-a"}
	otherAdmin  = &database.User{ID: "admin-b", Role: database.RoleCoAdmin, SchoolID: "school-b"}
	teacher     = &database.User{ID: "teacher-a", Role: database.RoleTeacher, SchoolID: "school-a", SectionID: "sec-a1"}
)

func newTestStore(t *testing.T) *mock.Store {
	t.Helper()
	store := mock.NewStore()
	ctx := context.Background()
	for _, id := range []string{"school-a", "school-b"} {
		if err := store.Schools.Create(ctx, &database.School{ID: id, Name: id}); err != nil {
			t.Fatalf("seed school: %v", err)
		}
	}
	store.Sections.AddSection(database.Section{ID: "sec-a1", SchoolID: "school-a", Name: "A1", Grade: "1"})
	store.Sections.AddSection(database.Section{ID: "sec-a2", SchoolID: "school-a", Name: "A2", Grade: "2"})
	store.Sections.AddSection(database.Section{ID: "sec-b1", SchoolID: "school-b", Name: "B1", Grade: "1"})
	return store
}

func newTestService(store *mock.Store, provider embedding.Provider, index *database.FaceIndex) *Service {
	var enroller *Enroller
	if provider != nil {
		enroller = NewEnroller(provider, index, EnrollOptions{MinImages: 1, MaxImages: 5})
	}
	return NewService(store.Schools, store.Sections, store.Students, enroller)
}

func TestCreateSection(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	sec, err := svc.CreateSection(ctx, schoolAdmin, SectionInput{Name: " 3C ", Grade: "3"})
	if err != nil {
		t.Fatalf("CreateSection() error = %v", err)
	}
	if sec.SchoolID != "school-a" || sec.Name != "3C" || sec.ID == "" {
		t.Errorf("unexpected section %+v", sec)
	}

	if _, err := svc.CreateSection(ctx, schoolAdmin, SectionInput{SchoolID: "school-b", Name: "X"}); !errors.Is(err, accounts.ErrForbidden) {
		t.Errorf("foreign school: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.CreateSection(ctx, govAdmin, SectionInput{Name: "X"}); err == nil {
		t.Error("gov admin without school_id: expected error")
	}
	if _, err := svc.CreateSection(ctx, govAdmin, SectionInput{SchoolID: "missing", Name: "X"}); !errors.Is(err, ErrSchoolNotFound) {
		t.Errorf("missing school: expected ErrSchoolNotFound, got %v", err)
	}
	if _, err := svc.CreateSection(ctx, schoolAdmin, SectionInput{Name: "3C"}); !errors.Is(err, database.ErrDuplicate) {
		t.Errorf("duplicate name: expected ErrDuplicate, got %v", err)
	}
}

func TestListSections(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		actor    *database.User
		schoolID string
		want     int
	}{
		{"gov admin sees all", govAdmin, "", 3},
		{"gov admin filters", govAdmin, "school-b", 1},
		{"school admin pinned", schoolAdmin, "school-b", 2},
		{"teacher sees own section", teacher, "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ListSections(ctx, tt.actor, tt.schoolID)
			if err != nil {
				t.Fatalf("ListSections() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d sections, want %d", len(got), tt.want)
			}
		})
	}
}

func TestCreateStudent(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	st, err := svc.CreateStudent(ctx, schoolAdmin, StudentInput{Name: "Asha", SectionID: "sec-a1", RollNo: "17"})
	if err != nil {
		t.Fatalf("CreateStudent() error = %v", err)
	}
	if st.StudentCode != "17" {
		t.Errorf("StudentCode = %q, want roll number", st.StudentCode)
	}

	st, err = svc.CreateStudent(ctx, schoolAdmin, StudentInput{Name: "Ravi", SectionID: "sec-a1"})
	if err != nil {
		t.Fatalf("CreateStudent() error = %v", err)
	}
	if st.StudentCode != st.ID[:8] {
		t.Errorf("StudentCode = %q, want id prefix of %q", st.StudentCode, st.ID)
	}

	st, err = svc.CreateStudent(ctx, schoolAdmin, StudentInput{Name: "Tara", SectionID: "sec-a1", StudentCode: "T-1", HasTwin: true, TwinGroupID: " tg "})
	if err != nil {
		t.Fatalf("CreateStudent() error = %v", err)
	}
	if st.StudentCode != "T-1" || st.TwinGroupID != "tg" {
		t.Errorf("unexpected student %+v", st)
	}

	st, err = svc.CreateStudent(ctx, schoolAdmin, StudentInput{Name: "Mira", SectionID: "sec-a1", StudentCode: "M-1", TwinGroupID: "tg"})
	if err != nil {
		t.Fatalf("CreateStudent() error = %v", err)
	}
	if st.TwinGroupID != "" {
		t.Errorf("twin group kept without twin flag: %q", st.TwinGroupID)
	}

	if _, err := svc.CreateStudent(ctx, schoolAdmin, StudentInput{Name: "X", SectionID: "missing"}); !errors.Is(err, ErrSectionNotFound) {
		t.Errorf("missing section: expected ErrSectionNotFound, got %v", err)
	}
	if _, err := svc.CreateStudent(ctx, otherAdmin, StudentInput{Name: "X", SectionID: "sec-a1"}); !errors.Is(err, accounts.ErrForbidden) {
		t.Errorf("foreign section: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.CreateStudent(ctx, schoolAdmin, StudentInput{Name: "Dup", SectionID: "sec-a1", StudentCode: "T-1"}); !errors.Is(err, database.ErrDuplicate) {
		t.Errorf("duplicate code: expected ErrDuplicate, got %v", err)
	}
}

func TestListStudents(t *testing.T) {
	store := newTestStore(t)
	store.Students.AddStudent(database.Student{ID: "s1", Name: "Zoë Kumar", SectionID: "sec-a1"}, []float32{1, 0})
	store.Students.AddStudent(database.Student{ID: "s2", Name: "Arjun", SectionID: "sec-a1"})
	store.Students.AddStudent(database.Student{ID: "s3", Name: "Zoe Rao", SectionID: "sec-a2"}, []float32{0, 1})
	store.Students.AddStudent(database.Student{ID: "s4", Name: "Bina", SectionID: "sec-b1"})
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   *database.User
		query   StudentQuery
		want    []string
		wantErr error
	}{
		{"gov admin sees all", govAdmin, StudentQuery{}, []string{"s2", "s4", "s3", "s1"}, nil},
		{"school admin scoped to school", schoolAdmin, StudentQuery{}, []string{"s2", "s3", "s1"}, nil},
		{"teacher pinned to section", teacher, StudentQuery{SectionID: "sec-a2"}, []string{"s2", "s1"}, nil},
		{"name filter ignores diacritics", schoolAdmin, StudentQuery{Query: "zoe"}, []string{"s3", "s1"}, nil},
		{"enrolled only", schoolAdmin, StudentQuery{SectionID: "sec-a1", Enrolled: true}, []string{"s1"}, nil},
		{"foreign section", schoolAdmin, StudentQuery{SectionID: "sec-b1"}, nil, accounts.ErrForbidden},
		{"missing section", govAdmin, StudentQuery{SectionID: "nope"}, nil, ErrSectionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ListStudents(ctx, tt.actor, tt.query)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ListStudents() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d students, want %d: %+v", len(got), len(tt.want), got)
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("students[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestEnroll_NewStudent(t *testing.T) {
	store := newTestStore(t)
	provider := &fakeProvider{vectors: map[string][]float32{
		"a": {1, 0, 0},
		"b": {0.9, 0.1, 0},
	}}
	svc := newTestService(store, provider, database.NewFaceIndex())

	res, err := svc.Enroll(context.Background(), schoolAdmin, EnrollInput{
		StudentInput: StudentInput{Name: "Asha", SectionID: "sec-a1"},
		Images:       [][]byte{[]byte("a"), []byte("b")},
	})
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if res.EmbeddingsCount != 2 || res.Student.EmbeddingCount != 2 {
		t.Errorf("embeddings = %d/%d, want 2", res.EmbeddingsCount, res.Student.EmbeddingCount)
	}
	if len(res.PossibleDuplicates) != 0 {
		t.Errorf("unexpected duplicates %+v", res.PossibleDuplicates)
	}
	if provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2", provider.calls)
	}

	list, _ := store.Students.ListWithEmbeddings(context.Background(), "sec-a1")
	if len(list) != 1 || len(list[0].Embeddings) != 2 {
		t.Fatalf("stored = %+v", list)
	}
	if list[0].Embeddings[1][0] != 0.9 {
		t.Error("embedding order not preserved")
	}
}

func TestEnroll_ExistingStudent(t *testing.T) {
	store := newTestStore(t)
	store.Students.AddStudent(database.Student{ID: "s1", Name: "Asha", StudentCode: "1", SectionID: "sec-a1"}, []float32{1, 0, 0})
	provider := &fakeProvider{vectors: map[string][]float32{"a": {1, 0, 0}}}
	svc := newTestService(store, provider, nil)

	res, err := svc.Enroll(context.Background(), schoolAdmin, EnrollInput{StudentID: "s1", Images: [][]byte{[]byte("a")}})
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if res.Student.ID != "s1" || res.EmbeddingsCount != 2 {
		t.Errorf("unexpected result %+v", res)
	}

	_, err = svc.Enroll(context.Background(), otherAdmin, EnrollInput{StudentID: "s1", Images: [][]byte{[]byte("a")}})
	if !errors.Is(err, accounts.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	_, err = svc.Enroll(context.Background(), schoolAdmin, EnrollInput{StudentID: "missing", Images: [][]byte{[]byte("a")}})
	if !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("expected ErrStudentNotFound, got %v", err)
	}
}

func TestEnroll_Failures(t *testing.T) {
	provider := &fakeProvider{
		vectors: map[string][]float32{"ok": {1, 0}},
		errs: map[string]error{
			"broken": embedding.ErrDecodeFailed,
			"down":   embedding.ErrModelUnavailable,
		},
	}

	tests := []struct {
		name    string
		images  []string
		wantErr error
	}{
		{"no images", nil, nil},
		{"too many images", []string{"ok", "ok", "ok", "ok", "ok", "ok"}, nil},
		{"no face", []string{"ok", "blank"}, embedding.ErrNoFaceDetected},
		{"decode failure", []string{"broken"}, embedding.ErrDecodeFailed},
		{"model unavailable", []string{"ok", "down"}, embedding.ErrModelUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			svc := newTestService(store, provider, nil)

			images := make([][]byte, 0, len(tt.images))
			for _, img := range tt.images {
				images = append(images, []byte(img))
			}
			_, err := svc.Enroll(context.Background(), schoolAdmin, EnrollInput{
				StudentInput: StudentInput{Name: "Asha", SectionID: "sec-a1"},
				Images:       images,
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr == nil {
				var verr *accounts.ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("expected ValidationError, got %v", err)
				}
			} else {
				var imgErr *ImageError
				if !errors.Is(err, tt.wantErr) || !errors.As(err, &imgErr) {
					t.Errorf("expected ImageError wrapping %v, got %v", tt.wantErr, err)
				}
			}

			students, _ := store.Students.List(context.Background(), database.StudentFilter{})
			if len(students) != 0 {
				t.Errorf("student stored despite failure: %+v", students)
			}
		})
	}
}

func TestEnroll_StoreFailureLeavesNoStudent(t *testing.T) {
	store := newTestStore(t)
	store.Students.AddEmbeddingsError = errors.New("disk full")
	provider := &fakeProvider{vectors: map[string][]float32{"a": {1, 0, 0}}}
	index := database.NewFaceIndex()
	svc := newTestService(store, provider, index)

	_, err := svc.Enroll(context.Background(), schoolAdmin, EnrollInput{
		StudentInput: StudentInput{Name: "Asha", SectionID: "sec-a1", StudentCode: "A-1"},
		Images:       [][]byte{[]byte("a")},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	students, _ := store.Students.List(context.Background(), database.StudentFilter{})
	if len(students) != 0 {
		t.Errorf("student row left behind: %+v", students)
	}
	if index.Count() != 0 {
		t.Errorf("index count = %d, want 0", index.Count())
	}

	// the same student code is free for a retry
	store.Students.AddEmbeddingsError = nil
	res, err := svc.Enroll(context.Background(), schoolAdmin, EnrollInput{
		StudentInput: StudentInput{Name: "Asha", SectionID: "sec-a1", StudentCode: "A-1"},
		Images:       [][]byte{[]byte("a")},
	})
	if err != nil {
		t.Fatalf("retry Enroll() error = %v", err)
	}
	if res.EmbeddingsCount != 1 {
		t.Errorf("embeddings = %d, want 1", res.EmbeddingsCount)
	}
}

func TestEnroll_ExistingStudentImageCap(t *testing.T) {
	store := newTestStore(t)
	store.Students.AddStudent(database.Student{ID: "s1", Name: "Asha", StudentCode: "1", SectionID: "sec-a1"},
		[]float32{1, 0, 0}, []float32{0.9, 0.1, 0}, []float32{0.8, 0.2, 0}, []float32{0.7, 0.3, 0})
	provider := &fakeProvider{vectors: map[string][]float32{"a": {1, 0, 0}}}
	svc := newTestService(store, provider, nil)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, schoolAdmin, EnrollInput{StudentID: "s1", Images: [][]byte{[]byte("a"), []byte("a")}})
	var verr *accounts.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls)
	}

	res, err := svc.Enroll(ctx, schoolAdmin, EnrollInput{StudentID: "s1", Images: [][]byte{[]byte("a")}})
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if res.EmbeddingsCount != 5 {
		t.Errorf("embeddings = %d, want 5", res.EmbeddingsCount)
	}

	_, err = svc.Enroll(ctx, schoolAdmin, EnrollInput{StudentID: "s1", Images: [][]byte{[]byte("a")}})
	if !errors.As(err, &verr) {
		t.Errorf("full student: expected ValidationError, got %v", err)
	}
	st, _ := store.Students.Get(ctx, "s1")
	if st.EmbeddingCount != 5 {
		t.Errorf("stored embeddings = %d, want 5", st.EmbeddingCount)
	}
}

func TestEnroll_PossibleDuplicates(t *testing.T) {
	store := newTestStore(t)
	store.Students.AddStudent(database.Student{ID: "s1", Name: "Asha", StudentCode: "1", SectionID: "sec-a2"}, []float32{1, 0, 0})
	store.Students.AddStudent(database.Student{ID: "s2", Name: "Anu", StudentCode: "2", SectionID: "sec-a1", HasTwin: true, TwinGroupID: "tg"}, []float32{0.99, 0.05, 0})
	store.Students.AddStudent(database.Student{ID: "s3", Name: "Bina", StudentCode: "3", SectionID: "sec-b1"}, []float32{1, 0, 0})
	store.Students.AddStudent(database.Student{ID: "s4", Name: "Chitra", StudentCode: "4", SectionID: "sec-a1"}, []float32{0, 1, 0})

	index := database.NewFaceIndex()
	all, err := store.Students.AllEmbeddings(context.Background())
	if err != nil {
		t.Fatalf("AllEmbeddings() error = %v", err)
	}
	index.Build(all)

	provider := &fakeProvider{vectors: map[string][]float32{"a": {1, 0.01, 0}}}
	svc := newTestService(store, provider, index)

	res, err := svc.Enroll(context.Background(), schoolAdmin, EnrollInput{
		StudentInput: StudentInput{Name: "Anita", SectionID: "sec-a1", StudentCode: "5", HasTwin: true, TwinGroupID: "tg"},
		Images:       [][]byte{[]byte("a")},
	})
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if len(res.PossibleDuplicates) != 1 || res.PossibleDuplicates[0].StudentID != "s1" {
		t.Fatalf("PossibleDuplicates = %+v, want only s1", res.PossibleDuplicates)
	}
	if index.Count() != 5 {
		t.Errorf("index count = %d, want 5", index.Count())
	}
}
