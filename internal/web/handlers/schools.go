package handlers

import (
	"errors"
	"net/http"

	"github.com/kozaktomas/school-attendance/internal/accounts"
	"github.com/kozaktomas/school-attendance/internal/database"
)

// SchoolsHandler handles school endpoints
type SchoolsHandler struct {
	accounts *accounts.Service
	schools  database.SchoolReader
}

// NewSchoolsHandler creates a new schools handler
func NewSchoolsHandler(svc *accounts.Service, schools database.SchoolReader) *SchoolsHandler {
	return &SchoolsHandler{accounts: svc, schools: schools}
}

type createSchoolRequest struct {
	Name           string `json:"name" validate:"required"`
	AddressLine1   string `json:"address_line1"`
	City           string `json:"city"`
	State          string `json:"state"`
	Pincode        string `json:"pincode"`
	PrincipalName  string `json:"principal_name" validate:"required"`
	PrincipalEmail string `json:"principal_email" validate:"required,email"`
	PrincipalPhone string `json:"principal_phone"`
}

type createSchoolResponse struct {
	School    *database.School `json:"school"`
	Principal *database.User   `json:"principal"`
}

// Create stores a school and emails its principal a temporary password
func (h *SchoolsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSchoolRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	school, principal, err := h.accounts.CreateSchool(r.Context(), accounts.SchoolInput{
		Name:           req.Name,
		AddressLine1:   req.AddressLine1,
		City:           req.City,
		State:          req.State,
		Pincode:        req.Pincode,
		PrincipalName:  req.PrincipalName,
		PrincipalEmail: req.PrincipalEmail,
		PrincipalPhone: req.PrincipalPhone,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, createSchoolResponse{School: school, Principal: principal})
}

// List returns every school for government admins and the own school for school staff
func (h *SchoolsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := mustGetUser(w, r)
	if user == nil {
		return
	}

	if user.Role.IsSchoolStaff() {
		schools := []database.School{}
		if user.SchoolID != "" {
			school, err := h.schools.Get(r.Context(), user.SchoolID)
			if err != nil && !errors.Is(err, database.ErrNotFound) {
				respondServiceError(w, err)
				return
			}
			if school != nil {
				schools = append(schools, *school)
			}
		}
		respondJSON(w, http.StatusOK, schools)
		return
	}

	schools, err := h.schools.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if schools == nil {
		schools = []database.School{}
	}
	respondJSON(w, http.StatusOK, schools)
}

// My returns the caller's school
func (h *SchoolsHandler) My(w http.ResponseWriter, r *http.Request) {
	user := mustGetUser(w, r)
	if user == nil {
		return
	}
	if user.SchoolID == "" {
		respondError(w, http.StatusNotFound, "No school associated")
		return
	}
	school, err := h.schools.Get(r.Context(), user.SchoolID)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "School not found")
		return
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, school)
}
