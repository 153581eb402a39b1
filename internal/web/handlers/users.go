package handlers

import (
	"errors"
	"net/http"

	"github.com/kozaktomas/school-attendance/internal/accounts"
	"github.com/kozaktomas/school-attendance/internal/database"
)

// UsersHandler handles staff account endpoints
type UsersHandler struct {
	accounts *accounts.Service
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(svc *accounts.Service) *UsersHandler {
	return &UsersHandler{accounts: svc}
}

type createStaffRequest struct {
	FullName  string `json:"full_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Role      string `json:"role"`
	Phone     string `json:"phone"`
	SchoolID  string `json:"school_id"`
	Subject   string `json:"subject"`
	SectionID string `json:"section_id"`
	Password  string `json:"password"`
}

// CreateTeacher adds a TEACHER account
func (h *UsersHandler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	h.createStaff(w, r, database.RoleTeacher)
}

// CreateCoAdmin adds a CO_ADMIN account
func (h *UsersHandler) CreateCoAdmin(w http.ResponseWriter, r *http.Request) {
	h.createStaff(w, r, database.RoleCoAdmin)
}

func (h *UsersHandler) createStaff(w http.ResponseWriter, r *http.Request, role database.Role) {
	user := mustGetUser(w, r)
	if user == nil {
		return
	}
	var req createStaffRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Role != "" && database.Role(req.Role) != role {
		respondError(w, http.StatusBadRequest, "role must be "+string(role)+" for this endpoint")
		return
	}

	created, err := h.accounts.CreateStaff(r.Context(), user, accounts.StaffInput{
		FullName:  req.FullName,
		Email:     req.Email,
		Role:      role,
		Phone:     req.Phone,
		SchoolID:  req.SchoolID,
		Subject:   req.Subject,
		SectionID: req.SectionID,
		Password:  req.Password,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// List returns users of a role, scoped to the caller's school for school staff
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	user := mustGetUser(w, r)
	if user == nil {
		return
	}
	role, ok := database.ParseRole(r.URL.Query().Get("role"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid role")
		return
	}

	users, err := h.accounts.ListUsers(r.Context(), user, role)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if users == nil {
		users = []database.User{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": users})
}

type resendCredentialsRequest struct {
	Email        string `json:"email" validate:"required,email"`
	TempPassword string `json:"temp_password"`
}

// ResendCredentials resets a password and emails it again
func (h *UsersHandler) ResendCredentials(w http.ResponseWriter, r *http.Request) {
	var req resendCredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.accounts.ResendCredentials(r.Context(), req.Email, req.TempPassword)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
