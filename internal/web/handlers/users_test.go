package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/school-attendance/internal/accounts"
	"github.com/kozaktomas/school-attendance/internal/database"
)

func TestUsersHandler_CreateTeacher(t *testing.T) {
	env := newTestEnv(t)
	handler := NewUsersHandler(env.accounts)

	body := `{"full_name": "Meena", "email": "Meena@a.example", "subject": "Math", "section_id": "sec-a2"}`
	recorder := httptest.NewRecorder()
	handler.CreateTeacher(recorder, jsonRequest(t, http.MethodPost, "/api/users/teachers", body, schoolAdmin))
	assertStatusCode(t, recorder, http.StatusCreated)

	var user database.User
	parseJSONResponse(t, recorder, &user)
	if user.Role != database.RoleTeacher || user.SchoolID != "school-a" || user.SectionID != "sec-a2" || user.Email != "meena@a.example" {
		t.Errorf("unexpected user %+v", user)
	}

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"duplicate email", body, http.StatusConflict, "Email already exists"},
		{"bad subject", `{"full_name": "X", "email": "x@a.example", "subject": "Astrology"}`, http.StatusBadRequest, "Invalid subject"},
		{"foreign section", `{"full_name": "X", "email": "x@a.example", "section_id": "sec-b1"}`, http.StatusBadRequest, "Invalid section for this school"},
		{"wrong role", `{"full_name": "X", "email": "x@a.example", "role": "CO_ADMIN"}`, http.StatusBadRequest, "role must be TEACHER for this endpoint"},
		{"missing email", `{"full_name": "X"}`, http.StatusBadRequest, "email is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.CreateTeacher(recorder, jsonRequest(t, http.MethodPost, "/api/users/teachers", tt.body, schoolAdmin))
			assertStatusCode(t, recorder, tt.status)
			assertJSONError(t, recorder, tt.message)
		})
	}
}

func TestUsersHandler_CreateCoAdmin(t *testing.T) {
	env := newTestEnv(t)
	handler := NewUsersHandler(env.accounts)

	recorder := httptest.NewRecorder()
	handler.CreateCoAdmin(recorder, jsonRequest(t, http.MethodPost, "/api/users/coadmins",
		`{"full_name": "Vice", "email": "vice@b.example", "school_id": "school-b"}`, govAdmin))
	assertStatusCode(t, recorder, http.StatusCreated)

	var user database.User
	parseJSONResponse(t, recorder, &user)
	if user.Role != database.RoleCoAdmin || user.SchoolID != "school-b" {
		t.Errorf("unexpected user %+v", user)
	}

	recorder = httptest.NewRecorder()
	handler.CreateCoAdmin(recorder, jsonRequest(t, http.MethodPost, "/api/users/coadmins",
		`{"full_name": "Vice", "email": "vice2@b.example"}`, govAdmin))
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "school_id required")
}

func TestUsersHandler_List(t *testing.T) {
	env := newTestEnv(t)
	handler := NewUsersHandler(env.accounts)
	env.store.Users.AddUser(database.User{ID: "admin-b2", FullName: "B2", Email: "b2@b.example", Role: database.RoleSchoolAdmin, SchoolID: "school-b"})

	tests := []struct {
		name   string
		path   string
		user   *database.User
		status int
		want   int
	}{
		{"gov admin all school admins", "/api/users?role=SCHOOL_ADMIN", govAdmin, http.StatusOK, 3},
		{"school admin scoped", "/api/users?role=SCHOOL_ADMIN", adminB, http.StatusOK, 2},
		{"teachers", "/api/users?role=TEACHER", schoolAdmin, http.StatusOK, 1},
		{"bad role", "/api/users?role=PRINCIPAL", govAdmin, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.List(recorder, jsonRequest(t, http.MethodGet, tt.path, "", tt.user))
			assertStatusCode(t, recorder, tt.status)
			if tt.status != http.StatusOK {
				return
			}
			var resp struct {
				Users []database.User `json:"users"`
			}
			parseJSONResponse(t, recorder, &resp)
			if len(resp.Users) != tt.want {
				t.Errorf("got %d users, want %d", len(resp.Users), tt.want)
			}
		})
	}
}

func TestUsersHandler_ResendCredentials(t *testing.T) {
	env := newTestEnv(t)
	handler := NewUsersHandler(env.accounts)

	recorder := httptest.NewRecorder()
	handler.ResendCredentials(recorder, jsonRequest(t, http.MethodPost, "/api/users/resend-credentials",
		`{"email": "teacher@a.example", "temp_password": "fresh-pass"}`, govAdmin))
	assertStatusCode(t, recorder, http.StatusOK)

	var res accounts.ResendResult
	parseJSONResponse(t, recorder, &res)
	if res.Email != "teacher@a.example" || res.Role != database.RoleTeacher || res.Sent {
		t.Errorf("unexpected result %+v", res)
	}
	if _, err := env.accounts.Authenticate(t.Context(), "teacher@a.example", "fresh-pass"); err != nil {
		t.Errorf("new password does not work: %v", err)
	}

	recorder = httptest.NewRecorder()
	handler.ResendCredentials(recorder, jsonRequest(t, http.MethodPost, "/api/users/resend-credentials",
		`{"email": "ghost@a.example"}`, govAdmin))
	assertStatusCode(t, recorder, http.StatusNotFound)
	assertJSONError(t, recorder, "User not found")
}
