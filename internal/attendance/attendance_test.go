package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/school-attendance/internal/accounts"
	"github.com/kozaktomas/school-attendance/internal/database"
	"github.com/kozaktomas/school-attendance/internal/database/mock"
	"github.com/kozaktomas/school-attendance/internal/embedding"
	"github.com/kozaktomas/school-attendance/internal/roster"
)

type fakeProvider struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeProvider) ExtractEmbedding(ctx context.Context, image []byte) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[string(image)]; ok {
		return v, nil
	}
	return nil, embedding.ErrNoFaceDetected
}

func (f *fakeProvider) Model() string { return "fake" }
func (f *fakeProvider) Close() error  { return nil }

var (
	teacher      = &database.User{ID: "t1", Role: database.RoleTeacher, SchoolID: "school-a", SectionID: "sec-1"}
	otherTeacher = &database.User{ID: "t2", Role: database.RoleTeacher, SchoolID: "school-a", SectionID: "sec-2"}
	admin        = &database.User{ID: "a1", Role: database.RoleSchoolAdmin, SchoolID: "school-a"}
	foreignAdmin = &database.User{ID: "a2", Role: database.RoleSchoolAdmin, SchoolID: "school-b"}
)

// newTestService seeds sec-1 with Asha, the twins Lava and Kusha, and an
// unenrolled student, all on orthogonal or near-identical vectors.
func newTestService(t *testing.T) (*Service, *mock.Store) {
	t.Helper()
	store := mock.NewStore()
	store.Sections.AddSection(database.Section{ID: "sec-1", SchoolID: "school-a", Name: "1A"})
	store.Sections.AddSection(database.Section{ID: "sec-2", SchoolID: "school-a", Name: "1B"})
	store.Students.AddStudent(database.Student{ID: "s-asha", Name: "Asha", SectionID: "sec-1"}, []float32{1, 0, 0})
	store.Students.AddStudent(database.Student{ID: "s-lava", Name: "Lava", SectionID: "sec-1", HasTwin: true, TwinGroupID: "tw"}, []float32{0, 1, 0})
	store.Students.AddStudent(database.Student{ID: "s-kusha", Name: "Kusha", SectionID: "sec-1", HasTwin: true, TwinGroupID: "tw"}, []float32{0, 0.99, 0.01})
	store.Students.AddStudent(database.Student{ID: "s-new", Name: "New", SectionID: "sec-1"})
	store.Students.AddStudent(database.Student{ID: "s-other", Name: "Other", SectionID: "sec-2"}, []float32{0, 0, 1})

	provider := &fakeProvider{vectors: map[string][]float32{
		"asha":     {1, 0, 0},
		"twin":     {0, 1, 0},
		"stranger": {0, 0, 1},
	}}
	svc := NewService(store.Sections, store.Students, store.Attendance, provider, Options{Threshold: 0.72, Timeout: time.Second})
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	return svc, store
}

func TestMark_Matched(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	res, err := svc.Mark(ctx, teacher, ScanInput{Image: []byte("asha")})
	if err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if res.Outcome != "matched" || res.StudentID != "s-asha" || res.Status != "Marked present: Asha" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Date != "2026-03-02" || res.SectionID != "sec-1" {
		t.Errorf("date/section = %s/%s", res.Date, res.SectionID)
	}

	ids, _ := store.Attendance.PresentStudentIDs(ctx, "sec-1", "2026-03-02")
	if len(ids) != 1 || ids[0] != "s-asha" {
		t.Errorf("present = %v", ids)
	}

	res, err = svc.Mark(ctx, teacher, ScanInput{Image: []byte("asha")})
	if err != nil {
		t.Fatalf("second Mark() error = %v", err)
	}
	if res.Outcome != "already_marked" || res.Status != "Already marked: Asha" {
		t.Errorf("second scan = %+v", res)
	}
	if store.Attendance.MarkCalls != 1 {
		t.Errorf("MarkPresent calls = %d, want 1", store.Attendance.MarkCalls)
	}
}

func TestMark_AlreadyMarkedByStorage(t *testing.T) {
	svc, store := newTestService(t)
	store.Attendance.MarkError = database.ErrAlreadyMarked

	res, err := svc.Mark(context.Background(), teacher, ScanInput{Image: []byte("asha")})
	if err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if res.Outcome != "already_marked" {
		t.Errorf("Outcome = %s, want already_marked", res.Outcome)
	}
}

func TestMark_NoMatch(t *testing.T) {
	svc, store := newTestService(t)

	res, err := svc.Mark(context.Background(), teacher, ScanInput{Image: []byte("stranger")})
	if err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if res.Outcome != "no_match" || res.Status != "No match: not a student from this section" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.TwinCandidates == nil {
		t.Error("TwinCandidates should be an empty slice")
	}
	if store.Attendance.MarkCalls != 0 {
		t.Error("nothing should be recorded")
	}
}

func TestMark_Twins(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Mark(ctx, teacher, ScanInput{Image: []byte("twin")})
	if err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if !res.TwinConflict || res.Outcome != "ambiguous_twins" || res.Status != "Twin conflict: confirm student" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.TwinCandidates) != 2 || res.TwinCandidates[0].ID != "s-kusha" || res.TwinCandidates[1].ID != "s-lava" {
		t.Errorf("TwinCandidates = %+v", res.TwinCandidates)
	}

	res, err = svc.Mark(ctx, teacher, ScanInput{Image: []byte("twin"), ConfirmedStudentID: "s-kusha"})
	if err != nil {
		t.Fatalf("confirm Mark() error = %v", err)
	}
	if res.Outcome != "matched" || res.StudentID != "s-kusha" {
		t.Fatalf("confirm = %+v", res)
	}

	// Kusha is present, so the next twin scan resolves to Lava by elimination.
	res, err = svc.Mark(ctx, teacher, ScanInput{Image: []byte("twin")})
	if err != nil {
		t.Fatalf("third Mark() error = %v", err)
	}
	if res.Outcome != "matched" || res.StudentID != "s-lava" {
		t.Errorf("elimination = %+v", res)
	}

	res, err = svc.Mark(ctx, teacher, ScanInput{Image: []byte("twin")})
	if err != nil {
		t.Fatalf("fourth Mark() error = %v", err)
	}
	if res.Outcome != "already_marked" {
		t.Errorf("both twins present = %+v", res)
	}
}

func TestMark_ConfirmOutsideSection(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Mark(context.Background(), teacher, ScanInput{Image: []byte("twin"), ConfirmedStudentID: "s-other"})
	if err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if res.Outcome != "no_match" {
		t.Errorf("Outcome = %s, want no_match", res.Outcome)
	}
}

func TestMark_ConfirmRequiresEnrolledTwin(t *testing.T) {
	tests := []struct {
		name      string
		image     string
		confirmed string
	}{
		{"unenrolled student", "asha", "s-new"},
		{"student without twin", "twin", "s-asha"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t)
			res, err := svc.Mark(context.Background(), teacher, ScanInput{Image: []byte(tt.image), ConfirmedStudentID: tt.confirmed})
			if err != nil {
				t.Fatalf("Mark() error = %v", err)
			}
			if res.Outcome != "no_match" || res.StudentID != "" {
				t.Errorf("got %+v, want no_match", res)
			}
			if store.Attendance.MarkCalls != 0 {
				t.Errorf("MarkPresent calls = %d, want 0", store.Attendance.MarkCalls)
			}
			present, _ := store.Attendance.PresentStudentIDs(context.Background(), "sec-1", "2026-03-02")
			if len(present) != 0 {
				t.Errorf("present = %v, want none", present)
			}
		})
	}
}

func TestMark_ConcurrentScansRecordOnce(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	results := make([]*ScanResult, 4)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Mark(ctx, teacher, ScanInput{Image: []byte("asha")})
			if err != nil {
				t.Errorf("Mark() error = %v", err)
				return
			}
			results[i] = res
		}()
	}
	wg.Wait()

	outcomes := map[string]int{}
	for _, res := range results {
		if res != nil {
			outcomes[res.Outcome]++
		}
	}
	if outcomes["matched"] != 1 || outcomes["already_marked"] != 3 {
		t.Errorf("outcomes = %v, want one matched and three already_marked", outcomes)
	}

	records, _ := store.Attendance.ListBySection(ctx, "sec-1", "2026-03-02")
	if len(records) != 1 || records[0].StudentID != "s-asha" {
		t.Errorf("want exactly one record for s-asha, got %+v", records)
	}
}

func TestMark_Errors(t *testing.T) {
	tests := []struct {
		name    string
		actor   *database.User
		input   ScanInput
		provErr error
		wantErr error
	}{
		{"teacher of another section", otherTeacher, ScanInput{SectionID: "sec-1", Image: []byte("asha")}, nil, accounts.ErrForbidden},
		{"admin of another school", foreignAdmin, ScanInput{SectionID: "sec-1", Image: []byte("asha")}, nil, accounts.ErrForbidden},
		{"missing section", admin, ScanInput{SectionID: "nope", Image: []byte("asha")}, nil, roster.ErrSectionNotFound},
		{"no face", teacher, ScanInput{Image: []byte("blank")}, nil, embedding.ErrNoFaceDetected},
		{"model down", teacher, ScanInput{Image: []byte("asha")}, embedding.ErrModelUnavailable, embedding.ErrModelUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			svc.provider.(*fakeProvider).err = tt.provErr
			_, err := svc.Mark(context.Background(), tt.actor, tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	svc, _ := newTestService(t)
	if _, err := svc.Mark(context.Background(), admin, ScanInput{Image: []byte("asha")}); err == nil {
		t.Error("admin without section_id: expected error")
	}
}

func TestPreview_DoesNotRecord(t *testing.T) {
	svc, store := newTestService(t)
	res, err := svc.Preview(context.Background(), admin, ScanInput{SectionID: "sec-1", Image: []byte("asha")})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if res.Outcome != "matched" {
		t.Errorf("Outcome = %s, want matched", res.Outcome)
	}
	if store.Attendance.MarkCalls != 0 {
		t.Error("Preview must not record attendance")
	}
}

func TestManualMark(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	rec, err := svc.ManualMark(ctx, admin, ManualInput{SectionID: "sec-1", StudentID: "s-asha", Status: "absent"})
	if err != nil {
		t.Fatalf("ManualMark() error = %v", err)
	}
	if rec.Status != database.StatusAbsent || rec.Date != "2026-03-02" {
		t.Errorf("unexpected record %+v", rec)
	}
	firstID := rec.ID

	rec, err = svc.ManualMark(ctx, admin, ManualInput{SectionID: "sec-1", StudentID: "s-asha", Status: "Present"})
	if err != nil {
		t.Fatalf("ManualMark() error = %v", err)
	}
	if rec.ID != firstID {
		t.Errorf("second mark created a new record: %s != %s", rec.ID, firstID)
	}
	records, _ := store.Attendance.ListBySection(ctx, "sec-1", "2026-03-02")
	if len(records) != 1 || records[0].Status != database.StatusPresent {
		t.Errorf("records = %+v", records)
	}

	tests := []struct {
		name  string
		input ManualInput
		check func(error) bool
	}{
		{"bad status", ManualInput{SectionID: "sec-1", StudentID: "s-asha", Status: "Late"}, isValidation},
		{"bad date", ManualInput{SectionID: "sec-1", StudentID: "s-asha", Status: "Present", Date: "02/03/2026"}, isValidation},
		{"student of another section", ManualInput{SectionID: "sec-1", StudentID: "s-other", Status: "Present"}, isValidation},
		{"missing student", ManualInput{SectionID: "sec-1", StudentID: "nope", Status: "Present"}, func(err error) bool { return errors.Is(err, roster.ErrStudentNotFound) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ManualMark(ctx, admin, tt.input)
			if !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func isValidation(err error) bool {
	var verr *accounts.ValidationError
	return errors.As(err, &verr)
}

func TestSummary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Mark(ctx, teacher, ScanInput{Image: []byte("asha")}); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if _, err := svc.ManualMark(ctx, teacher, ManualInput{StudentID: "s-lava", Status: "Absent"}); err != nil {
		t.Fatalf("ManualMark() error = %v", err)
	}

	sum, err := svc.Summary(ctx, teacher, "", "")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.Total != 4 || sum.PresentCount != 1 || sum.AbsentCount != 3 || sum.Date != "2026-03-02" {
		t.Errorf("unexpected summary %+v", sum)
	}
	if len(sum.Present) != 1 || sum.Present[0] != "s-asha" {
		t.Errorf("Present = %v", sum.Present)
	}

	sum, err = svc.Summary(ctx, admin, "sec-1", "2026-03-01")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.PresentCount != 0 || sum.Present == nil {
		t.Errorf("empty day summary = %+v", sum)
	}
}

func TestHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.ManualMark(ctx, admin, ManualInput{SectionID: "sec-1", StudentID: "s-asha", Status: "Present", Date: "2026-02-28"}); err != nil {
		t.Fatalf("ManualMark() error = %v", err)
	}

	tests := []struct {
		days     int
		wantDays int
	}{
		{0, 7},
		{3, 3},
		{365, 90},
	}
	for _, tt := range tests {
		h, err := svc.History(ctx, admin, "sec-1", tt.days)
		if err != nil {
			t.Fatalf("History(%d) error = %v", tt.days, err)
		}
		if h.Days != tt.wantDays || len(h.Counts) != tt.wantDays {
			t.Errorf("History(%d) days = %d, counts = %d, want %d", tt.days, h.Days, len(h.Counts), tt.wantDays)
		}
		if last := h.Counts[len(h.Counts)-1]; last.Date != "2026-03-02" {
			t.Errorf("last day = %s, want today", last.Date)
		}
	}

	h, _ := svc.History(ctx, admin, "sec-1", 3)
	if h.Counts[0].Date != "2026-02-28" || h.Counts[0].PresentCount != 1 {
		t.Errorf("first day = %+v", h.Counts[0])
	}
}
