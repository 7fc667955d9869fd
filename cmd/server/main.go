package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"tunehub/internal/config"
	apphttp "tunehub/internal/http"
	"tunehub/internal/password"
	"tunehub/internal/repository/sqldb"
	"tunehub/internal/service"
	"tunehub/internal/session"
	"tunehub/internal/token"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	configureLogger(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := sqldb.Open(sqldb.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Name:            cfg.Database.Name,
		SSLCA:           cfg.Database.SSLCA,
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqldb.NewUserRepository(db, dialect)
	initCtx, cancelInit := context.WithTimeout(ctx, 30*time.Second)
	if err := userRepo.Init(initCtx); err != nil {
		cancelInit()
		logger.Fatalf("init user repository: %v", err)
	}
	cancelInit()
	logger.Infof("using %s database", dialect.Name)

	store, closeStore, err := buildSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup session store: %v", err)
	}
	defer closeStore()

	cookie, err := session.NewCookie([]byte(cfg.Session.Secret), session.CookieOptions{
		Name:     cfg.Session.CookieName,
		MaxAge:   cfg.Session.TTL,
		Secure:   cfg.Session.Secure,
		SameSite: parseSameSite(cfg.Session.SameSite),
	})
	if err != nil {
		logger.Fatalf("setup session cookie: %v", err)
	}

	tokenKey, err := cfg.TokenKey()
	if err != nil {
		logger.Fatalf("setup token key: %v", err)
	}

	authService := service.NewAuthService(
		userRepo,
		store,
		password.NewBcryptHasher(cfg.Auth.BcryptCost),
		token.NewIssuer(tokenKey, cfg.Auth.TokenTTL),
		service.Options{
			SessionTTL:  cfg.Session.TTL,
			CallTimeout: cfg.Auth.CallTimeout,
			Logger:      logger,
		},
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(authService, cookie, apphttp.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func configureLogger(logger *logrus.Logger, cfg config.Config) {
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func buildSessionStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (session.Store, func(), error) {
	if cfg.Session.Store == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Auth.CallTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Infof("using redis session store at %s", cfg.Redis.Addr)
		return session.NewRedisStore(client, cfg.Redis.Prefix), func() { _ = client.Close() }, nil
	}

	logger.Warn("using in-memory session store; sessions are lost on restart and not shared between instances")
	store := session.NewMemoryStore()
	store.StartSweeper(ctx, time.Minute)
	return store, store.Close, nil
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
