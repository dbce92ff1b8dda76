package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/screen3/screen3/internal/auth"
	"github.com/screen3/screen3/internal/database"
	"github.com/screen3/screen3/internal/email"
	"github.com/screen3/screen3/internal/events"
	"github.com/screen3/screen3/internal/geoip"
	"github.com/screen3/screen3/internal/notify"
	"github.com/screen3/screen3/internal/server"
	"github.com/screen3/screen3/internal/storage"
	"github.com/screen3/screen3/internal/video"
)

const (
	listenerTimeout = 30 * time.Second
	drainTimeout    = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	slog.SetDefault(newLogger(os.Stdout, os.Getenv("LOG_FORMAT")))

	if err := run(); err != nil {
		slog.Error("screen3 exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	port := getEnv("PORT", "8080")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(databaseURL); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	slog.Info("database migrations applied")

	var rdb *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		slog.Info("redis connected")
	} else {
		slog.Warn("REDIS_URL not set, pin login disabled")
	}

	allowedOrigins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	var store *storage.Storage
	if bucket := os.Getenv("S3_BUCKET"); bucket != "" {
		store, err = storage.New(ctx, storage.Config{
			Endpoint:     os.Getenv("S3_ENDPOINT"),
			PublicURL:    os.Getenv("S3_PUBLIC_URL"),
			Bucket:       bucket,
			AccessKey:    os.Getenv("S3_ACCESS_KEY"),
			SecretKey:    os.Getenv("S3_SECRET_KEY"),
			Region:       getEnv("S3_REGION", "nyc3"),
			UsePathStyle: getEnv("S3_PATH_STYLE", "false") == "true",
		})
		if err != nil {
			return fmt.Errorf("storage initialization failed: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("storage bucket check failed: %w", err)
		}
		if len(allowedOrigins) > 0 {
			if err := store.SetCORS(ctx, allowedOrigins); err != nil {
				slog.Warn("storage: failed to set bucket CORS", "error", err)
			}
		}
		slog.Info("storage bucket ready", "bucket", bucket)
	} else {
		slog.Warn("S3_BUCKET not set, thumbnails disabled")
	}

	locator, err := geoip.Open(os.Getenv("GEOIP_DB_PATH"))
	if err != nil {
		slog.Warn("geoip: lookups disabled", "error", err)
	}
	defer locator.Close()

	mailer := email.New(email.Config{
		BaseURL:           os.Getenv("LISTMONK_URL"),
		Username:          getEnv("LISTMONK_USER", "admin"),
		Password:          os.Getenv("LISTMONK_PASSWORD"),
		PinTemplateID:     int(getEnvInt64("LISTMONK_PIN_TEMPLATE_ID", 0)),
		WelcomeTemplateID: int(getEnvInt64("LISTMONK_WELCOME_TEMPLATE_ID", 0)),
	})

	emitter := events.NewEmitter(listenerTimeout)
	notify.Register(emitter, mailer)
	emitter.Listen(events.VideoStoredName, events.ListenerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.VideoStored); ok {
			slog.Info("video stored", "video_id", ev.VideoID, "creator_id", ev.CreatorID)
		}
		return nil
	}))

	pipeline := video.NewPipeline(pipelineConfig(db, store))

	srvCfg := server.Config{
		DB:             db.Pool,
		Pinger:         db,
		JWTSecret:      jwtSecret,
		BaseURL:        getEnv("BASE_URL", "http://localhost:"+port),
		AllowedOrigins: allowedOrigins,
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 500*1024*1024),
		TempVideoDir:   getEnv("TEMP_VIDEO_DIR", "resources/tmp/videos"),
		Publisher:      emitter,
		Pipeline:       pipeline,
	}
	if locator.Enabled() {
		srvCfg.Locator = locator
	}
	if rdb != nil {
		srvCfg.PinStore = auth.NewRedisPinStore(rdb)
		srvCfg.Redis = server.PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("screen3 listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-shutdownCh:
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()
	if err := pipeline.Wait(drainCtx); err != nil {
		slog.Warn("pipeline: cancelling unfinished branches", "error", err)
	}
	pipeline.Close()
	if err := emitter.Wait(drainCtx); err != nil {
		slog.Warn("events: listeners still running at exit", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func pipelineConfig(db *database.DB, store *storage.Storage) video.PipelineConfig {
	cfg := video.PipelineConfig{
		Videos:  video.NewStore(db.Pool),
		TempDir: getEnv("TEMP_VIDEO_DIR", "resources/tmp/videos"),
	}
	if store != nil {
		cfg.Storage = store
	}

	if media := video.NewFFmpeg(); media.Available() {
		cfg.Media = media
	} else {
		slog.Warn("ffmpeg not found, media branches disabled")
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		ai := video.NewAIClient(os.Getenv("OPENAI_BASE_URL"), key, os.Getenv("OPENAI_SUMMARY_MODEL"))
		cfg.Transcriber = ai
		cfg.Summarizer = ai
	} else {
		slog.Warn("OPENAI_API_KEY not set, transcription disabled")
	}

	if id, secret := os.Getenv("THETA_ID"), os.Getenv("THETA_SECRET"); id != "" && secret != "" {
		cfg.Transcoder = video.NewThetaClient(os.Getenv("THETA_BASE_URL"), id, secret)
	} else {
		slog.Warn("THETA_ID/THETA_SECRET not set, transcoding disabled")
	}
	return cfg
}

func newLogger(w io.Writer, format string) *slog.Logger {
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, nil))
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
