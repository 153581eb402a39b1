//go:build !dlib

package embedding

import "github.com/kozaktomas/school-attendance/internal/config"

// New returns the embedding server client configured by cfg.
func New(cfg config.EmbeddingConfig) (Provider, error) {
	return NewClient(cfg.URL,
		WithRetries(cfg.Retries),
		WithMaxImageSize(cfg.MaxImageSize),
	), nil
}
