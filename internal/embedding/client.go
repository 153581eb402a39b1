package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultServerURL = "http://localhost:8000"
	defaultModel     = "buffalo_l"
	retryBaseDelay   = 200 * time.Millisecond
)

// Client extracts face embeddings through the embedding server's /embed/face endpoint.
type Client struct {
	baseURL      string
	model        string
	retries      uint64
	maxImageSize int
	client       *http.Client

	mu sync.RWMutex // guards model
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetries sets how many times transient failures are retried.
func WithRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.retries = uint64(n)
		}
	}
}

// WithMaxImageSize sets the longest image side sent to the server.
func WithMaxImageSize(n int) ClientOption {
	return func(c *Client) { c.maxImageSize = n }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// NewClient creates a new embedding server client
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = defaultServerURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   defaultModel,
		retries: 2,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Model returns the model name reported by the server, or the default
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// Close releases idle connections
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// ExtractEmbedding returns the embedding of the most confidently detected face
func (c *Client) ExtractEmbedding(ctx context.Context, image []byte) ([]float32, error) {
	prepared, err := PrepareImage(image, c.maxImageSize)
	if err != nil {
		return nil, err
	}

	var resp *FaceResponse
	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(retryBaseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := c.detectFaces(ctx, prepared)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	if resp.Model != "" {
		c.mu.Lock()
		c.model = resp.Model
		c.mu.Unlock()
	}
	return bestFace(resp.Faces)
}

// bestFace picks the detection with the highest score
func bestFace(faces []FaceDetection) ([]float32, error) {
	best := -1
	for i, f := range faces {
		if len(f.Embedding) == 0 {
			continue
		}
		if best < 0 || f.DetScore > faces[best].DetScore {
			best = i
		}
	}
	if best < 0 {
		return nil, ErrNoFaceDetected
	}
	return faces[best].Embedding, nil
}

// detectFaces posts the image once. Transient failures are wrapped as retryable.
func (c *Client) detectFaces(ctx context.Context, image []byte) (*FaceResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="face.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed/face", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retry.RetryableError(fmt.Errorf("%w: %v", ErrModelUnavailable, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("%w: read response: %v", ErrModelUnavailable, err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: server rejected image: %s", ErrDecodeFailed, strings.TrimSpace(string(body)))
	case resp.StatusCode >= 500:
		return nil, retry.RetryableError(fmt.Errorf("%w: status %d", ErrModelUnavailable, resp.StatusCode))
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrModelUnavailable, resp.StatusCode)
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrModelUnavailable, err)
	}
	return &faceResp, nil
}

// IsExtractionError reports whether err is one of the typed extraction failures.
func IsExtractionError(err error) bool {
	return errors.Is(err, ErrNoFaceDetected) ||
		errors.Is(err, ErrDecodeFailed) ||
		errors.Is(err, ErrModelUnavailable)
}
