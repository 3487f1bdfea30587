// Package config reads the service settings from PATHOLOGY_* environment
// variables. Logging (LOG_*), database (DATABASE_*) and SNOWFLAKE_NODE keep
// their own readers in pkg/.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/slide"
)

const Prefix = "PATHOLOGY"

// Record store backends.
const (
	StoreMemory = "memory"
	StoreSQL    = "sql"
	StoreRedis  = "redis"
)

type Config struct {
	Addr string `envconfig:"ADDR" default:"0.0.0.0:8431"`

	StoreDriver  string        `envconfig:"STORE_DRIVER" default:"sql"`
	StoreLatency time.Duration `envconfig:"STORE_LATENCY" default:"500ms"`
	RedisURL     string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	RedisPrefix  string        `envconfig:"REDIS_PREFIX" default:"pathology"`

	JWTSecret        string        `envconfig:"JWT_SECRET"`
	JWTIssuer        string        `envconfig:"JWT_ISSUER" default:"service-pathology"`
	SessionTTL       time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	BcryptCost       int           `envconfig:"BCRYPT_COST" default:"12"`
	DemoProvisioning bool          `envconfig:"DEMO_PROVISIONING" default:"false"`

	GeminiAPIKey  string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel   string        `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	GeminiBaseURL string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`
	GeminiTimeout time.Duration `envconfig:"GEMINI_TIMEOUT" default:"2m"`

	SlideDriver      string `envconfig:"SLIDE_DRIVER" default:"inline"`
	SlideFSRoot      string `envconfig:"SLIDE_FS_ROOT" default:"./data/slides"`
	SlideS3Bucket    string `envconfig:"SLIDE_S3_BUCKET"`
	SlideS3Region    string `envconfig:"SLIDE_S3_REGION" default:"us-east-1"`
	SlideS3Endpoint  string `envconfig:"SLIDE_S3_ENDPOINT"`
	SlideS3PathStyle bool   `envconfig:"SLIDE_S3_PATH_STYLE" default:"false"`
	SlideS3AccessKey string `envconfig:"SLIDE_S3_ACCESS_KEY"`
	SlideS3SecretKey string `envconfig:"SLIDE_S3_SECRET_KEY"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

// New parses the environment and validates the result.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting returns defaults suited to unit tests: in-memory store, no
// latency, inline slides and a fixed token secret.
func NewForTesting() *Config {
	return &Config{
		Addr:          "127.0.0.1:0",
		StoreDriver:   StoreMemory,
		RedisPrefix:   "pathology-test",
		JWTSecret:     "test-secret",
		JWTIssuer:     "service-pathology-test",
		SessionTTL:    time.Hour,
		BcryptCost:    4,
		GeminiModel:   "gemini-2.5-flash",
		GeminiTimeout: 5 * time.Second,
		SlideDriver:   string(slide.DriverInline),
	}
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreSQL, StoreRedis:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}
	if c.StoreLatency < 0 {
		return fmt.Errorf("STORE_LATENCY must not be negative")
	}
	switch slide.Driver(c.SlideDriver) {
	case slide.DriverInline, slide.DriverFS, slide.DriverMemory:
	case slide.DriverS3:
		if c.SlideS3Bucket == "" {
			return fmt.Errorf("SLIDE_S3_BUCKET required for s3 slide driver")
		}
	default:
		return fmt.Errorf("unsupported SLIDE_DRIVER: %s", c.SlideDriver)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST out of range: %d", c.BcryptCost)
	}
	return nil
}

// Slide returns the slide store settings.
func (c *Config) Slide() slide.Config {
	return slide.Config{
		Driver: slide.Driver(c.SlideDriver),
		FSRoot: c.SlideFSRoot,
		S3: slide.S3Config{
			Bucket:          c.SlideS3Bucket,
			Region:          c.SlideS3Region,
			Endpoint:        c.SlideS3Endpoint,
			PathStyle:       c.SlideS3PathStyle,
			AccessKeyID:     c.SlideS3AccessKey,
			SecretAccessKey: c.SlideS3SecretKey,
		},
	}
}
