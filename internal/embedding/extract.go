package embedding

import (
	"context"
	"errors"
	"time"
)

// Extract runs p with a per-call timeout and records metrics.
// A deadline hit by the timeout is reported as ErrTimeout; cancellation of the
// parent context is returned as is.
func Extract(ctx context.Context, p Provider, image []byte, timeout time.Duration) ([]float32, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	vec, err := p.ExtractEmbedding(callCtx, image)
	extractionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = ErrTimeout
		}
		extractionFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	return vec, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNoFaceDetected):
		return "no_face"
	case errors.Is(err, ErrDecodeFailed):
		return "decode"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	}
	return "other"
}
