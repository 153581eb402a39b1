package handlers

import (
	"errors"
	"net/http"

	"github.com/kozaktomas/school-attendance/internal/accounts"
	"github.com/kozaktomas/school-attendance/internal/database"
	"github.com/kozaktomas/school-attendance/internal/roster"
)

// SectionsHandler handles section endpoints
type SectionsHandler struct {
	roster *roster.Service
}

// NewSectionsHandler creates a new sections handler
func NewSectionsHandler(svc *roster.Service) *SectionsHandler {
	return &SectionsHandler{roster: svc}
}

type createSectionRequest struct {
	SchoolID string `json:"school_id"`
	Name     string `json:"name" validate:"required"`
	Grade    string `json:"grade"`
}

// Create adds a section
func (h *SectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := mustGetUser(w, r)
	if user == nil {
		return
	}
	var req createSectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sec, err := h.roster.CreateSection(r.Context(), user, roster.SectionInput{
		SchoolID: req.SchoolID,
		Name:     req.Name,
		Grade:    req.Grade,
	})
	if errors.Is(err, accounts.ErrForbidden) {
		respondError(w, http.StatusForbidden, "Cannot create section for another school")
		return
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sec)
}

// List returns the sections visible to the caller
func (h *SectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := mustGetUser(w, r)
	if user == nil {
		return
	}
	sections, err := h.roster.ListSections(r.Context(), user, r.URL.Query().Get("school_id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if sections == nil {
		sections = []database.Section{}
	}
	respondJSON(w, http.StatusOK, sections)
}
