package microauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/tinyauth/microauth/internal/microauth/audit"
	"github.com/tinyauth/microauth/internal/microauth/biz"
	"github.com/tinyauth/microauth/internal/microauth/middleware"
	"github.com/tinyauth/microauth/internal/microauth/router"
	"github.com/tinyauth/microauth/internal/microauth/store"
	"github.com/tinyauth/microauth/pkg/cache"
	redisopts "github.com/tinyauth/microauth/pkg/component/redis"
)

// Run starts the service with the given options and blocks until shutdown.
func Run(opts *Options) error {
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infof("starting microauth in %s mode", opts.Mode)

	factory, err := store.NewFactory(opts.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := factory.Close(); err != nil {
			logger.Warnf("store close: %v", err)
		}
	}()
	if err := factory.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	emitter, err := audit.NewEmitter(opts.AuditWorkers)
	if err != nil {
		return fmt.Errorf("failed to start audit pool: %w", err)
	}
	defer emitter.Close()

	svc, err := buildServices(opts, factory, emitter)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.WithRequestID(), gin.Recovery())
	router.Register(engine, svc)

	srv := &http.Server{
		Addr:    opts.Addr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Infof("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Infof("server stopped")
	return nil
}

// buildServices wires the business layer for the configured mode.
func buildServices(opts *Options, factory store.Factory, emitter *audit.Emitter) (*router.Services, error) {
	resolver := biz.NewResolver(factory, []byte(opts.SessionSecret))
	authorizer := biz.NewAuthorizer(resolver)

	var client biz.Client
	switch opts.Mode {
	case ModeProxy:
		decisionCache, err := buildCache(opts)
		if err != nil {
			return nil, err
		}
		httpClient := &http.Client{Timeout: opts.UpstreamTimeout}
		client = biz.NewProxyClient(opts.Upstream, httpClient, decisionCache, opts.CacheTTL)
	default:
		client = biz.NewLocalClient(resolver, authorizer)
	}

	return &router.Services{
		Store:    factory,
		Client:   client,
		Resolver: resolver,
		Tokens:   biz.NewTokenService(resolver, []byte(opts.SessionSecret), opts.TokenTTL),
		Signing:  biz.NewSigningService(factory, []byte(opts.RootSecret)),
		Audit:    emitter,
	}, nil
}

func buildCache(opts *Options) (cache.Cache, error) {
	if opts.CacheBackend == "redis" {
		client, err := redisopts.New(context.Background(), opts.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		return cache.NewRedisCache(client, "microauth:decision:", opts.CacheTTL), nil
	}
	return cache.NewMemoryCache(
		cache.WithDefaultTTL(opts.CacheTTL),
		cache.WithMaxEntries(opts.CacheMaxEntries),
	), nil
}
