package handlers

import (
	"errors"
	"net/http"

	"github.com/kozaktomas/school-attendance/internal/accounts"
	"github.com/kozaktomas/school-attendance/internal/database"
	"github.com/kozaktomas/school-attendance/internal/facematch"
	"github.com/kozaktomas/school-attendance/internal/roster"
)

// StudentsHandler handles student and enrollment endpoints
type StudentsHandler struct {
	roster *roster.Service
}

// NewStudentsHandler creates a new students handler
func NewStudentsHandler(svc *roster.Service) *StudentsHandler {
	return &StudentsHandler{roster: svc}
}

type createStudentRequest struct {
	Name         string `json:"name" validate:"required"`
	SectionID    string `json:"section_id" validate:"required"`
	StudentCode  string `json:"student_code"`
	RollNo       string `json:"roll_no"`
	ParentMobile string `json:"parent_mobile"`
	HasTwin      any    `json:"has_twin"`
	TwinGroupID  string `json:"twin_group_id"`
}

// Create adds a student without face data
func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := mustGetUser(w, r)
	if user == nil {
		return
	}
	var req createStudentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	st, err := h.roster.CreateStudent(r.Context(), user, roster.StudentInput{
		Name:         req.Name,
		SectionID:    req.SectionID,
		StudentCode:  req.StudentCode,
		RollNo:       req.RollNo,
		ParentMobile: req.ParentMobile,
		HasTwin:      facematch.ParseTwinFlag(req.HasTwin),
		TwinGroupID:  req.TwinGroupID,
	})
	if errors.Is(err, accounts.ErrForbidden) {
		respondError(w, http.StatusForbidden, "Cannot add student to another school's section")
		return
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, st)
}

type listStudentsQuery struct {
	SectionID string `schema:"section_id"`
	Query     string `schema:"q"`
	Enrolled  string `schema:"enrolled"`
}

// List returns students visible to the caller
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := mustGetUser(w, r)
	if user == nil {
		return
	}
	var q listStudentsQuery
	if !decodeValues(w, r.URL.Query(), &q) {
		return
	}

	students, err := h.roster.ListStudents(r.Context(), user, roster.StudentQuery{
		SectionID: q.SectionID,
		Query:     q.Query,
		Enrolled:  facematch.ParseTwinFlag(q.Enrolled),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if students == nil {
		students = []database.Student{}
	}
	respondJSON(w, http.StatusOK, students)
}

type enrollForm struct {
	StudentID    string `schema:"student_id"`
	Name         string `schema:"name" validate:"required_without=StudentID"`
	SectionID    string `schema:"section_id" validate:"required_without=StudentID"`
	StudentCode  string `schema:"student_code"`
	RollNo       string `schema:"roll_no"`
	ParentMobile string `schema:"parent_mobile"`
	HasTwin      string `schema:"has_twin"`
	TwinGroupID  string `schema:"twin_group_id"`
}

// Enroll creates a student from 1-5 face photos, or adds photos to an existing student
func (h *StudentsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	user := mustGetUser(w, r)
	if user == nil {
		return
	}
	if !parseMultipart(w, r) {
		return
	}
	var form enrollForm
	if !decodeValues(w, r.MultipartForm.Value, &form) {
		return
	}
	images, err := readUploads(r, "images", "image", "files")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.roster.Enroll(r.Context(), user, roster.EnrollInput{
		StudentInput: roster.StudentInput{
			Name:         form.Name,
			SectionID:    form.SectionID,
			StudentCode:  form.StudentCode,
			RollNo:       form.RollNo,
			ParentMobile: form.ParentMobile,
			HasTwin:      facematch.ParseTwinFlag(form.HasTwin),
			TwinGroupID:  form.TwinGroupID,
		},
		StudentID: form.StudentID,
		Images:    images,
	})
	if errors.Is(err, accounts.ErrForbidden) {
		respondError(w, http.StatusForbidden, "Cannot add student to another school's section")
		return
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}
