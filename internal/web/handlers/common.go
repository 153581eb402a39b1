package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/kozaktomas/school-attendance/internal/accounts"
	"github.com/kozaktomas/school-attendance/internal/constants"
	"github.com/kozaktomas/school-attendance/internal/database"
	"github.com/kozaktomas/school-attendance/internal/embedding"
	"github.com/kozaktomas/school-attendance/internal/roster"
	"github.com/kozaktomas/school-attendance/internal/web/middleware"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

var (
	validate    = newValidator()
	formDecoder = newFormDecoder()
)

// newValidator reports fields by their json or form name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "schema"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// validationMessage turns the first validator failure into a client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errInvalidRequestBody
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_without":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	}
	return fe.Field() + " is invalid"
}

// finishRequest applies struct defaults and validation tags to a decoded request.
func finishRequest(w http.ResponseWriter, dst any) bool {
	if err := defaults.Set(dst); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to apply defaults")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// decodeJSON reads a JSON body into dst, then applies defaults and validation.
// It writes the error response and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return finishRequest(w, dst)
}

// decodeValues decodes query or form values into dst.
func decodeValues(w http.ResponseWriter, values url.Values, dst any) bool {
	if err := formDecoder.Decode(dst, values); err != nil {
		respondError(w, http.StatusBadRequest, "invalid parameters")
		return false
	}
	return finishRequest(w, dst)
}

// parseMultipart parses a multipart body bounded by MaxUploadBytes.
func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadBytes)
	if err := r.ParseMultipartForm(constants.MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return false
	}
	return true
}

// readUploads returns the contents of every file posted under one of fields.
func readUploads(r *http.Request, fields ...string) ([][]byte, error) {
	for _, field := range fields {
		headers := r.MultipartForm.File[field]
		if len(headers) == 0 {
			continue
		}
		files := make([][]byte, 0, len(headers))
		for _, fh := range headers {
			data, err := func() ([]byte, error) {
				f, err := fh.Open()
				if err != nil {
					return nil, fmt.Errorf("failed to open file: %s", fh.Filename)
				}
				defer f.Close()
				return io.ReadAll(f)
			}()
			if err != nil {
				return nil, err
			}
			files = append(files, data)
		}
		return files, nil
	}
	return nil, nil
}

// mustGetUser returns the authenticated user or writes 401.
func mustGetUser(w http.ResponseWriter, r *http.Request) *database.User {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
	}
	return user
}

// extractionError maps a face extraction failure to a status and message.
func extractionError(err error) (int, string, bool) {
	switch {
	case errors.Is(err, embedding.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Face extraction timed out", true
	case errors.Is(err, embedding.ErrNoFaceDetected):
		return http.StatusBadRequest, "No face detected", true
	case errors.Is(err, embedding.ErrDecodeFailed):
		return http.StatusBadRequest, "Invalid image", true
	case errors.Is(err, embedding.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "Face model unavailable", true
	}
	return 0, "", false
}

// respondServiceError maps service and storage errors to HTTP responses.
func respondServiceError(w http.ResponseWriter, err error) {
	var verr *accounts.ValidationError
	if errors.As(err, &verr) {
		respondError(w, http.StatusBadRequest, verr.Message)
		return
	}
	if status, msg, ok := extractionError(err); ok {
		var imgErr *roster.ImageError
		if errors.As(err, &imgErr) {
			msg = fmt.Sprintf("Image %d: %s", imgErr.Index, msg)
		}
		respondError(w, status, msg)
		return
	}

	switch {
	case errors.Is(err, accounts.ErrForbidden):
		respondError(w, http.StatusForbidden, "Not allowed")
	case errors.Is(err, accounts.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, roster.ErrSchoolNotFound):
		respondError(w, http.StatusNotFound, "School not found")
	case errors.Is(err, roster.ErrSectionNotFound):
		respondError(w, http.StatusNotFound, "Section not found")
	case errors.Is(err, roster.ErrStudentNotFound):
		respondError(w, http.StatusNotFound, "Student not found")
	case errors.Is(err, database.ErrDuplicateEmail):
		respondError(w, http.StatusConflict, "Email already exists")
	case errors.Is(err, database.ErrDuplicate):
		respondError(w, http.StatusConflict, "Already exists")
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	default:
		log.Printf("handlers: %s", sanitizeForLog(err.Error()))
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
