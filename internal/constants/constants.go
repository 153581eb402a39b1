// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// DefaultMatchThreshold is the minimum cosine similarity for accepting a scan as a
	// known student. Overridden by MATCH_THRESHOLD.
	DefaultMatchThreshold = 0.72

	// DefaultDuplicateThreshold is the minimum cosine similarity at which an enrollment
	// photo is reported as a possible duplicate of another student.
	DefaultDuplicateThreshold = 0.90

	// DuplicateSearchLimit is the number of neighbours fetched from the face index
	// when checking a new enrollment for duplicates.
	DuplicateSearchLimit = 10
)

// Embedding extraction constants
const (
	// DefaultEmbeddingTimeout bounds a single extraction call.
	DefaultEmbeddingTimeout = 5 * time.Second

	// DefaultEmbeddingRetries is the number of retries for transient embedding server errors.
	DefaultEmbeddingRetries = 2

	// MaxImageSize is the maximum dimension (width or height) sent to the embedding server
	MaxImageSize = 1024

	// MaxUploadBytes caps a multipart request body.
	MaxUploadBytes = 32 << 20
)

// Enrollment constants
const (
	// MinEnrollmentImages is the minimum number of photos per enrollment request
	MinEnrollmentImages = 1

	// MaxEnrollmentImages caps the photos per enrollment request and the embeddings stored per student
	MaxEnrollmentImages = 5

	// StudentCodeLength is the length of the generated student code prefix.
	StudentCodeLength = 8
)

// Account constants
const (
	// DefaultTokenTTL is the access token lifetime (ACCESS_TOKEN_EXPIRE_MINUTES default).
	DefaultTokenTTL = 720 * time.Minute

	// TempPasswordBytes is the number of random bytes in a generated temporary password.
	TempPasswordBytes = 8

	// ListLimit caps list endpoints.
	ListLimit = 1000
)

// Attendance history constants
const (
	// DefaultHistoryDays is the default window for the attendance history endpoint.
	DefaultHistoryDays = 7

	// MaxHistoryDays is the largest window the history endpoint accepts.
	MaxHistoryDays = 90

	// DateLayout is the wire format for attendance dates.
	DateLayout = "2006-01-02"
)
