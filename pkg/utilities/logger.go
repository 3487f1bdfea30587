package utilities

import (
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level string
	Dev   bool
	// File is an optional path; when set, JSON logs are also written to
	// daily-rotated files next to it (File.YYYYMMDD) with File as a symlink.
	File   string
	MaxAge time.Duration
}

// ConfigFromEnv reads minimal config from env vars.
func ConfigFromEnv() Config {
	dev := os.Getenv("LOG_DEV") == "1"
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		if dev {
			lvl = "debug"
		} else {
			lvl = "info"
		}
	}
	maxAge := 7 * 24 * time.Hour
	if v := os.Getenv("LOG_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			maxAge = d
		}
	}
	return Config{Level: lvl, Dev: dev, File: os.Getenv("LOG_FILE"), MaxAge: maxAge}
}

func levelFromString(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes and returns a *zap.Logger
func Init(cfg Config) (*zap.Logger, error) {
	return InitWithClock(cfg, clockwork.NewRealClock())
}

// InitWithClock is Init with an explicit clock driving file rotation.
func InitWithClock(cfg Config, clock clockwork.Clock) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level)
	if cfg.Dev && cfg.File == "" {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), lvl),
	}
	if cfg.File != "" {
		w, err := rotatingWriter(cfg, clock)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), lvl))
	}
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

func rotatingWriter(cfg Config, clock clockwork.Clock) (*rotatelogs.RotateLogs, error) {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	w, err := rotatelogs.New(
		cfg.File+".%Y%m%d",
		rotatelogs.WithLinkName(cfg.File),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithClock(clock),
	)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", cfg.File, err)
	}
	return w, nil
}
