package handlers

import (
	"net/http"

	"github.com/kozaktomas/school-attendance/internal/attendance"
)

// AttendanceHandler handles attendance endpoints
type AttendanceHandler struct {
	attendance *attendance.Service
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(svc *attendance.Service) *AttendanceHandler {
	return &AttendanceHandler{attendance: svc}
}

type markForm struct {
	SectionID          string `schema:"section_id"`
	ConfirmedStudentID string `schema:"confirmed_student_id"`
}

// Mark matches a face photo against a section and records the student present
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	user := mustGetUser(w, r)
	if user == nil {
		return
	}
	if !parseMultipart(w, r) {
		return
	}
	var form markForm
	if !decodeValues(w, r.MultipartForm.Value, &form) {
		return
	}
	images, err := readUploads(r, "image", "file")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(images) != 1 {
		respondError(w, http.StatusBadRequest, "exactly one image is required")
		return
	}

	res, err := h.attendance.Mark(r.Context(), user, attendance.ScanInput{
		SectionID:          form.SectionID,
		Image:              images[0],
		ConfirmedStudentID: form.ConfirmedStudentID,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type manualMarkRequest struct {
	SectionID string `json:"section_id"`
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" default:"Present"`
	Date      string `json:"date"`
}

// ManualMark sets a student's status for a day
func (h *AttendanceHandler) ManualMark(w http.ResponseWriter, r *http.Request) {
	user := mustGetUser(w, r)
	if user == nil {
		return
	}
	var req manualMarkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	record, err := h.attendance.ManualMark(r.Context(), user, attendance.ManualInput{
		SectionID: req.SectionID,
		StudentID: req.StudentID,
		Status:    req.Status,
		Date:      req.Date,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

type summaryQuery struct {
	SectionID string `schema:"section_id"`
	Date      string `schema:"date"`
}

// Summary returns present and absent counts of a section on a day
func (h *AttendanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	user := mustGetUser(w, r)
	if user == nil {
		return
	}
	var q summaryQuery
	if !decodeValues(w, r.URL.Query(), &q) {
		return
	}

	sum, err := h.attendance.Summary(r.Context(), user, q.SectionID, q.Date)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

type historyQuery struct {
	SectionID string `schema:"section_id"`
	Days      int    `schema:"days" default:"7" validate:"gte=1"`
}

// History returns per-day present counts of a section
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	user := mustGetUser(w, r)
	if user == nil {
		return
	}
	var q historyQuery
	if !decodeValues(w, r.URL.Query(), &q) {
		return
	}

	hist, err := h.attendance.History(r.Context(), user, q.SectionID, q.Days)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, hist)
}
