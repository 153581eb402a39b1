package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/school-attendance/internal/accounts"
	"github.com/kozaktomas/school-attendance/internal/attendance"
	"github.com/kozaktomas/school-attendance/internal/config"
	"github.com/kozaktomas/school-attendance/internal/database"
	"github.com/kozaktomas/school-attendance/internal/database/mock"
	"github.com/kozaktomas/school-attendance/internal/embedding"
	"github.com/kozaktomas/school-attendance/internal/roster"
	"github.com/kozaktomas/school-attendance/internal/web/middleware"
)

var (
	govAdmin    = &database.User{ID: "gov", FullName: "Gov", Email: "gov@example.com", Role: database.RoleGovAdmin}
	schoolAdmin = &database.User{ID: "admin-a", FullName: "Principal A", Email: "principal@a.example", Role: database.RoleSchoolAdmin, SchoolID: "school-a"}
	teacherA    = &database.User{ID: "teacher-a", FullName: "Teacher A", Email: "teacher@a.example", Role: database.RoleTeacher, SchoolID: "school-a", SectionID: "sec-a1"}
	adminB      = &database.User{ID: "admin-b", FullName: "Principal B", Email: "principal@b.example", Role: database.RoleSchoolAdmin, SchoolID: "school-b"}
)

// fakeProvider maps image bytes to fixed vectors
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

// testEnv bundles the services behind the handlers with an in-memory store
type testEnv struct {
	store      *mock.Store
	provider   *fakeProvider
	accounts   *accounts.Service
	roster     *roster.Service
	attendance *attendance.Service
}

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Matching:  config.MatchingConfig{Threshold: 0.72, DuplicateThreshold: 0.9},
		Embedding: config.EmbeddingConfig{Timeout: time.Second},
		Auth:      config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
		School:    config.LoadSchoolPolicy(),
	}
}

// newTestEnv seeds two schools, three sections and the package level users
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()
	store := mock.NewStore()
	ctx := context.Background()

	for _, s := range []database.School{{ID: "school-a", Name: "School A"}, {ID: "school-b", Name: "School B"}} {
		if err := store.Schools.Create(ctx, &s); err != nil {
			t.Fatalf("seed school: %v", err)
		}
	}
	store.Sections.AddSection(database.Section{ID: "sec-a1", SchoolID: "school-a", Name: "1A"})
	store.Sections.AddSection(database.Section{ID: "sec-a2", SchoolID: "school-a", Name: "2A"})
	store.Sections.AddSection(database.Section{ID: "sec-b1", SchoolID: "school-b", Name: "1B"})
	for _, u := range []*database.User{govAdmin, schoolAdmin, teacherA, adminB} {
		store.Users.AddUser(*u)
	}

	provider := &fakeProvider{vectors: map[string][]float32{
		"asha": {1, 0, 0},
		"ravi": {0, 1, 0},
	}}
	enroller := roster.NewEnroller(provider, database.NewFaceIndex(), roster.EnrollOptionsFromConfig(cfg))

	return &testEnv{
		store:      store,
		provider:   provider,
		accounts:   accounts.NewService(store.Users, store.Schools, store.Sections, nil, cfg.School),
		roster:     roster.NewService(store.Schools, store.Sections, store.Students, enroller),
		attendance: attendance.NewService(store.Sections, store.Students, store.Attendance, provider, attendance.OptionsFromConfig(cfg)),
	}
}

// jsonRequest creates a request with a JSON body, authenticated as user when not nil
func jsonRequest(t *testing.T, method, path, body string, user *database.User) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return withUser(req, user)
}

// multipartRequest builds a multipart body with form fields and files
func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string][]string, user *database.User) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for field, contents := range files {
		for i, content := range contents {
			part, err := writer.CreateFormFile(field, field+string(rune('a'+i))+".jpg")
			if err != nil {
				t.Fatalf("create form file: %v", err)
			}
			part.Write([]byte(content))
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return withUser(req, user)
}

func withUser(req *http.Request, user *database.User) *http.Request {
	if user == nil {
		return req
	}
	return req.WithContext(middleware.SetUserInContext(req.Context(), user))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
