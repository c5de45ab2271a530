// Package server assembles the reference upload server: session registry,
// chunk store, token issuer and the HTTP router.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/logging"
	"github.com/dmitrijs2005/relaypacs/internal/server/auth"
	"github.com/dmitrijs2005/relaypacs/internal/server/chunkstore"
	"github.com/dmitrijs2005/relaypacs/internal/server/config"
	"github.com/dmitrijs2005/relaypacs/internal/server/httpapi"
	"github.com/dmitrijs2005/relaypacs/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/relaypacs/internal/server/services"
	"github.com/gin-gonic/gin"
)

const (
	shutdownTimeout = 10 * time.Second
	cleanupInterval = time.Hour
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	repomanager repomanager.RepositoryManager
	uploads     *services.UploadService
	handler     http.Handler
}

func newRepositoryManager(ctx context.Context, cfg *config.Config) (repomanager.RepositoryManager, error) {
	if cfg.DatabaseDSN == "" {
		return repomanager.NewInMemoryRepositoryManager(), nil
	}
	return repomanager.NewPostgresRepositoryManager(ctx, cfg.DatabaseDSN)
}

func newChunkStore(ctx context.Context, cfg *config.Config) (chunkstore.Store, error) {
	switch cfg.ChunkStore {
	case "fs":
		return chunkstore.NewFSStore(cfg.DataDir)
	case "s3":
		return chunkstore.NewS3Store(ctx, chunkstore.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3BaseEndpoint,
		})
	default:
		return nil, fmt.Errorf("unknown chunk store %q", cfg.ChunkStore)
	}
}

func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	chunks, err := newChunkStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("chunk store init error: %w", err)
	}

	rm, err := newRepositoryManager(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	issuer := auth.NewIssuer([]byte(cfg.SecretKey), cfg.AccessTokenTTL, cfg.UploadTokenTTL)
	us := services.NewUserService(rm, issuer)
	if err := us.Seed(ctx, cfg.Users); err != nil {
		rm.Close()
		return nil, err
	}
	ups := services.NewUploadService(rm, chunks, issuer, cfg, logger.With("component", "uploads"))

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(httpapi.NewHandler(ups, us), issuer, logger.With("component", "http"))

	return &App{config: cfg, logger: logger, repomanager: rm, uploads: ups, handler: router}, nil
}

// Handler returns the HTTP handler serving the upload protocol.
func (app *App) Handler() http.Handler { return app.handler }

func (app *App) runCleanup(ctx context.Context) {
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			app.uploads.CleanupExpired(ctx)
		}
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// closes the repositories.
func (app *App) Run(ctx context.Context) error {
	defer app.repomanager.Close()

	listen, err := net.Listen("tcp", app.config.HTTPAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: app.handler, ReadHeaderTimeout: 10 * time.Second}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		app.runCleanup(ctx)
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			app.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())
	err = srv.Serve(listen)
	wg.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
