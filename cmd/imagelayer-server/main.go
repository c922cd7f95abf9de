package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/tendant/imagelayer/pkg/imagelayer"
	"github.com/tendant/imagelayer/pkg/imagelayer/api"
	"github.com/tendant/imagelayer/pkg/imagelayer/config"
	"github.com/tendant/imagelayer/pkg/imagelayer/scene"
	"github.com/tendant/imagelayer/pkg/imagelayer/scenefile"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithFile(os.Getenv("IMAGELAYER_CONFIG_FILE")), config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := cfg.BuildRepository(ctx)
	if err != nil {
		return fmt.Errorf("failed to build repository: %w", err)
	}
	defer closeRepo()

	blobs, err := cfg.BuildBlobStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to build blob store: %w", err)
	}

	s, err := setupScene(ctx, cfg, repo, blobs, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: newRouter(cfg, s, blobs, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Image layer server starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"scene_id", s.ID(),
			"layers", len(s.Layers()),
			"database", cfg.DatabaseType(),
			"storage", cfg.StorageType(),
			"duration_policy", cfg.Policy())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exiting")
	return nil
}

// setupScene imports the configured scene file, if any, and loads the scene
// to serve
func setupScene(ctx context.Context, cfg *config.Config, repo imagelayer.Repository, blobs imagelayer.BlobStore, logger *slog.Logger) (*scene.Scene, error) {
	sceneID := cfg.SceneUUID()

	if cfg.SceneFile != "" {
		f, err := scenefile.Load(cfg.SceneFile)
		if err != nil {
			return nil, err
		}
		if sceneID != uuid.Nil {
			f.SceneID = sceneID
		}
		sceneID, err = f.Import(ctx, repo, blobs)
		if err != nil {
			return nil, fmt.Errorf("failed to import scene file: %w", err)
		}
		logger.Info("Scene file imported", "file", cfg.SceneFile, "scene_id", sceneID, "layers", len(f.Layers))
	}

	if sceneID == uuid.Nil {
		return nil, errors.New("IMAGELAYER_SCENE_ID or IMAGELAYER_SCENE_FILE is required")
	}

	return scene.Load(ctx, sceneID, repo, blobs,
		scene.WithLayerOptions(cfg.LayerOptions(logger)...),
		scene.WithLogger(logger),
	)
}

func newRouter(cfg *config.Config, s *scene.Scene, blobs imagelayer.BlobStore, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]any{
			"status":   "ok",
			"scene_id": s.ID().String(),
			"layers":   len(s.Layers()),
			"env":      cfg.Environment,
		})
	})

	handler := api.NewLayerHandler(s, api.NewContentLibrary(),
		api.WithBlobStore(blobs),
		api.WithLogger(logger),
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)
	r.Mount("/api/v1", handler.Routes())

	return r
}
