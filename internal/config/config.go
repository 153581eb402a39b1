package config

import (
	_ "embed"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/school-attendance/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed school.yaml
var schoolYAML []byte

type Config struct {
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Matching  MatchingConfig
	Auth      AuthConfig
	Brevo     BrevoConfig
	Seed      SeedConfig
	Web       WebConfig
	School    SchoolPolicy
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	URL          string        // defaults to http://localhost:8000
	Timeout      time.Duration // per-extraction timeout (default 5s)
	Retries      int           // retries on transient server errors (default 2)
	MaxImageSize int           // longest side sent to the server (default 1024)
	ModelsDir    string        // dlib model directory, used by builds with the dlib tag
}

type MatchingConfig struct {
	Threshold          float64 // minimum similarity for a match
	DuplicateThreshold float64 // minimum similarity for duplicate-enrollment warnings
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type BrevoConfig struct {
	APIKey      string
	SenderEmail string
	SenderName  string // defaults to "School Admin"
}

// Configured reports whether credential emails can be sent.
func (c *BrevoConfig) Configured() bool {
	return c.APIKey != "" && c.SenderEmail != ""
}

type SeedConfig struct {
	GovAdminEmail       string
	GovAdminName        string
	GovAdminPassword    string
	SchoolName          string
	SchoolAdminEmail    string
	SchoolAdminName     string
	SchoolAdminPassword string
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// SchoolPolicy is loaded from the embedded school.yaml.
type SchoolPolicy struct {
	Subjects   []string          `yaml:"subjects"`
	Enrollment EnrollmentPolicy  `yaml:"enrollment"`
	RoleNames  map[string]string `yaml:"role_names"`
}

type EnrollmentPolicy struct {
	MinImages int `yaml:"min_images"`
	MaxImages int `yaml:"max_images"`
}

// IsAllowedSubject reports whether a teacher subject is on the allowed list.
func (p *SchoolPolicy) IsAllowedSubject(subject string) bool {
	return slices.Contains(p.Subjects, subject)
}

// RoleName returns the human readable name of a role for emails.
func (p *SchoolPolicy) RoleName(role string) string {
	if name, ok := p.RoleNames[role]; ok {
		return name
	}
	return role
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float in (0, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envDuration accepts Go durations ("5s") or plain seconds ("5").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// splitOrigins parses a comma-separated origin list, ignoring blanks and "*".
func splitOrigins(raw string) []string {
	var origins []string
	for o := range strings.SplitSeq(raw, ",") {
		o = strings.TrimSpace(o)
		if o != "" && o != "*" {
			origins = append(origins, o)
		}
	}
	return origins
}

// LoadSchoolPolicy parses the embedded school.yaml.
func LoadSchoolPolicy() SchoolPolicy {
	var policy SchoolPolicy
	if err := yaml.Unmarshal(schoolYAML, &policy); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded school.yaml: " + err.Error())
	}
	if policy.Enrollment.MinImages <= 0 {
		policy.Enrollment.MinImages = constants.MinEnrollmentImages
	}
	if policy.Enrollment.MaxImages <= 0 {
		policy.Enrollment.MaxImages = constants.MaxEnrollmentImages
	}
	return policy
}

func Load() *Config {
	origins := os.Getenv("CORS_ORIGINS")
	if origins == "" {
		origins = os.Getenv("WEB_ALLOWED_ORIGINS")
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL:          os.Getenv("EMBEDDING_URL"),
			Timeout:      envDuration("EMBEDDING_TIMEOUT", constants.DefaultEmbeddingTimeout),
			Retries:      envInt("EMBEDDING_RETRIES", constants.DefaultEmbeddingRetries),
			MaxImageSize: envInt("EMBEDDING_MAX_IMAGE_SIZE", constants.MaxImageSize),
			ModelsDir:    envDefault("EMBEDDING_MODELS_DIR", "models"),
		},
		Matching: MatchingConfig{
			Threshold:          envFloat("MATCH_THRESHOLD", constants.DefaultMatchThreshold),
			DuplicateThreshold: envFloat("DUPLICATE_THRESHOLD", constants.DefaultDuplicateThreshold),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  time.Duration(envInt("ACCESS_TOKEN_EXPIRE_MINUTES", 720)) * time.Minute,
		},
		Brevo: BrevoConfig{
			APIKey:      os.Getenv("BREVO_API_KEY"),
			SenderEmail: os.Getenv("BREVO_SENDER_EMAIL"),
			SenderName:  envDefault("BREVO_SENDER_NAME", "School Admin"),
		},
		Seed: SeedConfig{
			GovAdminEmail:       os.Getenv("SEED_GOV_ADMIN_EMAIL"),
			GovAdminName:        envDefault("SEED_GOV_ADMIN_NAME", "Gov Admin"),
			GovAdminPassword:    os.Getenv("SEED_GOV_ADMIN_PASSWORD"),
			SchoolName:          os.Getenv("SEED_SCHOOL_NAME"),
			SchoolAdminEmail:    os.Getenv("SEED_SCHOOL_ADMIN_EMAIL"),
			SchoolAdminName:     envDefault("SEED_SCHOOL_ADMIN_NAME", "School Admin"),
			SchoolAdminPassword: os.Getenv("SEED_SCHOOL_ADMIN_PASSWORD"),
		},
		Web: WebConfig{
			Host:           envDefault("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: splitOrigins(origins),
		},
		School: LoadSchoolPolicy(),
	}
}
