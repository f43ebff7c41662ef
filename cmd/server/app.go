package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"debatesite/config"
	"debatesite/db"
	"debatesite/internal/debate"
	"debatesite/metrics"
	"debatesite/middlewares"
	"debatesite/routes"
	"debatesite/services"
	"debatesite/utils"
	"debatesite/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// app holds every long-lived component of the server.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store       db.Store
	rdb         *redis.Client
	stream      *debate.RedisStream
	promReg     *prometheus.Registry
	collector   *metrics.Collector
	registry    *websocket.Registry
	manager     *debate.Manager
	matchmaker  *services.MatchmakingService
	ratings     *services.RatingService
	api         *routes.API
	wsHandler   *websocket.Handler
	servers     []*http.Server
	backgrounds sync.WaitGroup
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: log}

	store, err := db.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	a.store = store
	if err := db.Seed(ctx, store, log); err != nil {
		store.Close(ctx)
		return nil, err
	}

	utils.SetJWTSecret(cfg.JWT.Secret)

	a.promReg = prometheus.NewRegistry()
	a.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollector(a.promReg)

	a.registry = websocket.NewRegistry(a.collector, log)
	a.ratings = services.NewRatingService(store, nil, log)

	opts := []debate.Option{
		debate.WithMetrics(a.collector),
		debate.WithResultHook(a.ratings.Apply),
	}
	if cfg.Redis.Addr != "" {
		rdb, err := debate.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			store.Close(ctx)
			return nil, err
		}
		a.rdb = rdb
		a.stream = debate.NewRedisStream(rdb, 1024, log)
		opts = append(opts, debate.WithEventSink(a.stream))
	}
	if cfg.Gemini.APIKey != "" {
		judge, err := services.NewGeminiJudge(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Timeout, log)
		if err != nil {
			log.Warn("gemini judge unavailable, completed debates end in a draw", "error", err)
		} else {
			opts = append(opts, debate.WithAdjudicator(judge))
		}
	}

	a.manager = debate.NewManager(cfg.Debate, store, a.registry, log, opts...)
	a.matchmaker = services.NewMatchmakingService(cfg.Matchmaking, a.manager, store, a.registry, a.collector, log)
	a.wsHandler = websocket.NewHandler(cfg.WebSocket, a.registry, a.matchmaker, a.ratings, a.manager, a.collector, log)

	var events routes.EventReader
	if a.stream != nil {
		events = a.stream
	}
	a.api = routes.NewAPI(a.matchmaker, a.registry, a.manager, store, events, log)
	return a, nil
}

func (a *app) newEngine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middlewares.RequestLogger(a.logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	return router
}

// engines returns the websocket engine and the status engine. In combined
// mode they are the same engine.
func (a *app) engines() (*gin.Engine, *gin.Engine) {
	var auth gin.HandlerFunc
	if utils.JWTEnabled() {
		auth = middlewares.AuthMiddleware()
	}

	ws := a.newEngine()
	ws.GET("/ws", a.wsHandler.ServeWS)

	status := ws
	if a.cfg.Server.Mode == config.ModeSeparate {
		status = a.newEngine()
	}
	a.api.Register(status, auth)
	status.GET("/metrics", gin.WrapH(metrics.Handler(a.promReg)))
	return ws, status
}

func (a *app) newServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(port)),
		Handler:           handler,
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}
}

// run serves until ctx is cancelled, then shuts every component down in
// dependency order.
func (a *app) run(ctx context.Context) error {
	ws, status := a.engines()
	a.servers = []*http.Server{a.newServer(a.cfg.Server.Port, ws)}
	if a.cfg.Server.Mode == config.ModeSeparate {
		a.servers = append(a.servers, a.newServer(a.cfg.Server.StatusPort, status))
	}

	streamCtx, stopStream := context.WithCancel(context.Background())
	defer stopStream()
	if a.stream != nil {
		a.backgrounds.Add(1)
		go func() {
			defer a.backgrounds.Done()
			a.stream.Run(streamCtx)
		}()
	}

	matchCtx, stopMatching := context.WithCancel(ctx)
	defer stopMatching()
	matchDone := make(chan error, 1)
	go func() { matchDone <- a.matchmaker.Run(matchCtx) }()

	serveErr := make(chan error, len(a.servers))
	for _, srv := range a.servers {
		go func(srv *http.Server) {
			a.logger.Info("http server listening", "addr", srv.Addr, "mode", a.cfg.Server.Mode)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case runErr = <-serveErr:
		a.logger.Error("server failed", "error", runErr)
	}

	stopMatching()
	if err := <-matchDone; err != nil {
		a.logger.Warn("matchmaker stopped with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.manager.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("sessions did not finish in time", "error", err)
	}
	a.registry.Close()
	for _, srv := range a.servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http server shutdown failed", "addr", srv.Addr, "error", err)
		}
	}

	stopStream()
	a.backgrounds.Wait()
	a.close(shutdownCtx)
	a.logger.Info("server stopped")
	return runErr
}

func (a *app) close(ctx context.Context) {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if err := a.store.Close(ctx); err != nil {
		a.logger.Warn("failed to close record store", "error", err)
	}
}
