package embedding

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubProvider struct {
	vec   []float32
	err   error
	delay time.Duration
}

func (s *stubProvider) ExtractEmbedding(ctx context.Context, image []byte) ([]float32, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.vec, s.err
}

func (s *stubProvider) Model() string { return "stub" }
func (s *stubProvider) Close() error  { return nil }

func TestExtract(t *testing.T) {
	vec, err := Extract(context.Background(), &stubProvider{vec: []float32{1, 2}}, nil, time.Second)
	if err != nil || len(vec) != 2 {
		t.Fatalf("Extract() = %v, %v", vec, err)
	}

	_, err = Extract(context.Background(), &stubProvider{err: ErrNoFaceDetected}, nil, time.Second)
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Errorf("expected ErrNoFaceDetected, got %v", err)
	}
}

func TestExtract_Timeout(t *testing.T) {
	_, err := Extract(context.Background(), &stubProvider{delay: time.Second}, nil, 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestExtract_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Extract(ctx, &stubProvider{delay: time.Second}, nil, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFailureReason(t *testing.T) {
	tests := map[error]string{
		ErrNoFaceDetected:   "no_face",
		ErrDecodeFailed:     "decode",
		ErrModelUnavailable: "model_unavailable",
		ErrTimeout:          "timeout",
		errors.New("x"):     "other",
	}
	for err, want := range tests {
		if got := failureReason(err); got != want {
			t.Errorf("failureReason(%v) = %q, want %q", err, got, want)
		}
	}
}
