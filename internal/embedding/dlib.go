//go:build dlib

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/kozaktomas/school-attendance/internal/config"
)

// New loads the dlib models from cfg.ModelsDir and returns an in-process provider.
func New(cfg config.EmbeddingConfig) (Provider, error) {
	return NewDlibProvider(cfg.ModelsDir, cfg.MaxImageSize)
}

// DlibProvider extracts 128-dimensional descriptors in process through go-face.
type DlibProvider struct {
	rec          *face.Recognizer
	maxImageSize int
	mu           sync.Mutex // the recognizer is not safe for concurrent use
}

// NewDlibProvider loads shape_predictor_5_face_landmarks.dat and
// dlib_face_recognition_resnet_model_v1.dat from modelsDir.
func NewDlibProvider(modelsDir string, maxImageSize int) (*DlibProvider, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: load models from %s: %v", ErrModelUnavailable, modelsDir, err)
	}
	return &DlibProvider{rec: rec, maxImageSize: maxImageSize}, nil
}

// Model returns the dlib model name
func (p *DlibProvider) Model() string {
	return "dlib_resnet_v1"
}

// Close releases the recognizer
func (p *DlibProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec != nil {
		p.rec.Close()
		p.rec = nil
	}
	return nil
}

// ExtractEmbedding returns the descriptor of the largest detected face
func (p *DlibProvider) ExtractEmbedding(ctx context.Context, image []byte) ([]float32, error) {
	prepared, err := PrepareImage(image, p.maxImageSize)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec == nil {
		return nil, fmt.Errorf("%w: recognizer closed", ErrModelUnavailable)
	}

	faces, err := p.rec.Recognize(prepared)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	if len(faces) == 0 {
		return nil, ErrNoFaceDetected
	}

	best := 0
	for i, f := range faces {
		r := f.Rectangle
		b := faces[best].Rectangle
		if r.Dx()*r.Dy() > b.Dx()*b.Dy() {
			best = i
		}
	}

	desc := faces[best].Descriptor
	vec := make([]float32, len(desc))
	copy(vec, desc[:])
	return vec, nil
}
