// Package embedding turns face photos into embedding vectors.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrNoFaceDetected is returned when the photo contains no usable face.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrDecodeFailed is returned when the photo cannot be decoded.
	ErrDecodeFailed = errors.New("image decode failed")
	// ErrModelUnavailable is returned when the face model cannot be reached or loaded.
	ErrModelUnavailable = errors.New("face model unavailable")
	// ErrTimeout is returned by Extract when the extraction deadline passes.
	ErrTimeout = errors.New("face extraction timed out")
)

// Provider extracts a single face embedding from an image.
// Implementations are safe for concurrent use and must be closed by the owner.
type Provider interface {
	ExtractEmbedding(ctx context.Context, image []byte) ([]float32, error)
	// Model names the embedding model, stored next to each vector.
	Model() string
	Close() error
}
