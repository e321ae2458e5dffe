package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/mohammad-safakhou/ragserve/config"
	"github.com/mohammad-safakhou/ragserve/internal/query"
	"github.com/mohammad-safakhou/ragserve/internal/queue/streams"
	"github.com/mohammad-safakhou/ragserve/internal/rag"
	"github.com/mohammad-safakhou/ragserve/internal/store"
	"github.com/mohammad-safakhou/ragserve/provider"
)

// Run wires the store, pipeline and lifecycle manager together and
// serves the HTTP API until the listener stops.
func Run(cfg *appconfig.Config, addr string) error {
	e := newEcho()

	ctx := context.Background()

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		log.Printf("migrate: %v (continuing; schema may already be current)", err)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	llm, err := provider.NewProvider(cfg.LLM, cfg.Retrieval.EmbeddingModel)
	if err != nil {
		return err
	}

	pipeLogger := log.New(log.Writer(), "[RAG] ", log.LstdFlags)
	pipeline := &rag.Pipeline{
		Retriever: &rag.Retriever{Store: st, Embedder: llm},
		Generator: llm,
		TopK:      cfg.Retrieval.TopK,
		Logger:    pipeLogger,
	}

	manager := &query.Manager{
		Store:    st,
		Pipeline: pipeline,
		MaxChars: cfg.Query.MaxChars,
		Logger:   log.New(log.Writer(), "[QUERY] ", log.LstdFlags),
	}

	// A configured worker stream switches submissions to async mode.
	if cfg.Query.WorkerStream != "" {
		if err := cfg.Storage.Redis.Validate(); err != nil {
			return err
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
		manager.Dispatcher = &query.StreamDispatcher{
			Publisher: streams.NewPublisher(rdb),
			Stream:    cfg.Query.WorkerStream,
		}
		log.Printf("async mode enabled, dispatching to stream %s", cfg.Query.WorkerStream)
	} else {
		log.Printf("no worker stream configured, queries run synchronously")
	}

	startJanitor(ctx, st, cfg.Query.PurgeInterval)

	h := &QueriesHandler{Manager: manager, PageSize: cfg.Query.PageSize, Logger: log.Default()}
	h.Register(e)

	if addr == "" {
		addr = cfg.General.Listen
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// startJanitor periodically deletes records whose ttl has passed. This
// stands in for the managed store's native item expiry.
func startJanitor(ctx context.Context, st *store.Store, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	logger := log.New(log.Writer(), "[JANITOR] ", log.LstdFlags)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := st.PurgeExpired(ctx, time.Now())
				if err != nil {
					logger.Printf("purge expired: %v", err)
					continue
				}
				if n > 0 {
					logger.Printf("purged %d expired queries", n)
				}
			}
		}
	}()
}
