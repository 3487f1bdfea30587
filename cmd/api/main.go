package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/account"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/analysis"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/config"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/history"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/recordstore"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/report"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/router"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/slide"
	"github.com/ovaphlow/pitchfork/service-pathology/pkg/database"
	"github.com/ovaphlow/pitchfork/service-pathology/pkg/utilities"
)

func main() {
	// best-effort: a missing .env falls back to the real environment
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	cfg, err := config.New()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	sugar.Infow("starting service-pathology",
		"addr", cfg.Addr,
		"store_driver", cfg.StoreDriver,
		"store_latency", cfg.StoreLatency,
		"slide_driver", cfg.SlideDriver,
		"gemini_model", cfg.GeminiModel,
		"gemini_key_present", cfg.GeminiAPIKey != "",
		"demo_provisioning", cfg.DemoProvisioning,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closer, err := openBackend(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalf("record store: %v", err)
	}
	defer closer.Close()
	store := recordstore.New(backend, recordstore.WithLatency(cfg.StoreLatency), recordstore.WithLogger(sugar.Named("recordstore")))

	slides, err := slide.Open(ctx, cfg.Slide())
	if err != nil {
		sugar.Fatalf("slide store: %v", err)
	}

	clock := clockwork.NewRealClock()
	if cfg.JWTSecret == "" {
		sugar.Warn("PATHOLOGY_JWT_SECRET not set; tokens will not survive a restart")
	}
	tokens, err := account.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.SessionTTL, clock)
	if err != nil {
		sugar.Fatalf("token issuer: %v", err)
	}
	dir := account.NewDirectory(store, tokens, account.BcryptHasher{Cost: cfg.BcryptCost}, clock, sugar.Named("account"))
	dir.DemoProvisioning = cfg.DemoProvisioning

	hist := history.NewManager(store, sugar.Named("history"))
	gemini := analysis.NewGemini(analysis.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
		Timeout: cfg.GeminiTimeout,
	})
	orch := analysis.NewOrchestrator(gemini, slides, hist, clock, sugar.Named("analysis"))

	handler := router.RegisterRoutes(sugar, router.Handlers{
		Account:  account.NewHandler(dir, sugar.Named("account")),
		History:  history.NewHandler(hist, sugar.Named("history")),
		Analysis: analysis.NewHandler(orch, slides, sugar.Named("analysis")),
		Report:   report.NewHandler(hist, clock, report.DefaultSavedWindow, sugar.Named("report")),
		Store:    store,
	})
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openBackend connects the record store backend selected by STORE_DRIVER.
func openBackend(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (recordstore.Backend, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		logger.Warn("using in-memory record store; data is lost on exit")
		return recordstore.NewMemoryBackend(), nopCloser{}, nil
	case config.StoreRedis:
		client, err := recordstore.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return recordstore.NewRedisBackend(client, cfg.RedisPrefix), client, nil
	default:
		dbCfg := database.ConfigFromEnv()
		db, err := database.Connect(dbCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		b := recordstore.NewSQLBackend(db)
		if err := b.EnsureTable(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Infow("sql record store ready", "driver", dbCfg.Driver)
		return b, db, nil
	}
}
