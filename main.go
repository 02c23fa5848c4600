package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-board/api"
	"prism-board/board"
	"prism-board/client"
	"prism-board/storage"
)

func main() {
	logger := log.New()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	var rc *redis.Client
	if conn := os.Getenv("REDIS_CONNECTION_STRING"); conn != "" {
		rc = redis.NewClient(parseRedisOptions(conn))
		defer rc.Close()
	}

	store, err := newTaskStore(logger, rc)
	if err != nil {
		log.Fatalf("task store: %v", err)
	}

	opts, err := loadBoardOptions(os.Getenv("BOARD_CONFIG_FILE"), logger)
	if err != nil {
		log.Fatalf("board config: %v", err)
	}
	sessions := board.NewSessions(store, opts)
	defer sessions.Close()

	var deduper api.Deduper
	if rc != nil {
		deduper = api.NewRedisDeduper(rc, envDur("DEDUPER_TTL", 24*time.Hour))
	}

	auth, err := newAuth()
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	def := api.DefaultSenderConfig()
	sender := api.NewSender(api.SenderConfig{
		Workers:        envInt("SENDER_WORKERS", def.Workers),
		Buffer:         envInt("SENDER_BUFFER", def.Buffer),
		HandoffTimeout: envDur("SENDER_HANDOFF_TIMEOUT", def.HandoffTimeout),
	}, deduper, logger)
	defer sender.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Decompress())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	api.NewServer(sessions, auth, sender, deduper, logger).Register(e)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := listenAddr()
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()
	logger.Infof("board server listening on %s", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown failed")
	}
}

// newTaskStore selects the remote store named by TASK_STORE and wraps it in
// the Redis read-through cache when a client is configured.
func newTaskStore(logger *log.Logger, rc *redis.Client) (board.TaskStore, error) {
	var base board.TaskStore
	switch kind := envString("TASK_STORE", "http"); kind {
	case "http":
		baseURL := os.Getenv("TASK_API_URL")
		if baseURL == "" {
			return nil, errors.New("missing TASK_API_URL")
		}
		c := client.New(baseURL, os.Getenv("TASK_API_TOKEN"))
		c.HTTP.Timeout = envDur("TASK_API_TIMEOUT", client.DefaultTimeout)
		base = c
	case "azure":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		tasksTable := os.Getenv("TASKS_TABLE")
		if connStr == "" || tasksTable == "" {
			return nil, errors.New("missing storage config")
		}
		s, err := storage.New(connStr, tasksTable, os.Getenv("TASK_EVENTS_QUEUE"), logger)
		if err != nil {
			return nil, err
		}
		base = s
	default:
		return nil, fmt.Errorf("unknown TASK_STORE %q", kind)
	}
	if rc == nil {
		return base, nil
	}
	return storage.NewCache(base, rc, envDur("TASKS_CACHE_TTL", 5*time.Minute)), nil
}

// newAuth uses LOCAL_AUTH_SECRET when set, otherwise the Auth0 JWKS.
func newAuth() (*api.Auth, error) {
	if secret := os.Getenv("LOCAL_AUTH_SECRET"); secret != "" {
		return api.NewLocalAuth([]byte(secret)), nil
	}
	audience := os.Getenv("AUTH0_AUDIENCE")
	domain := os.Getenv("AUTH0_DOMAIN")
	if audience == "" || domain == "" {
		return nil, errors.New("missing Auth0 config")
	}
	jwks, err := keyfunc.Get(fmt.Sprintf("https://%s/.well-known/jwks.json", domain), keyfunc.Options{
		RefreshInterval: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, audience, "https://"+domain+"/", envDur("JWKS_CACHE_TTL", 0)), nil
}
