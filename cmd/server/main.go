// Package main runs the overlay backend: the session broadcast hub, the
// external event adapters, and the dashboard HTTP API, with graceful shutdown.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lumen-overlay/backend/config"
	"github.com/lumen-overlay/backend/internal/middleware"
	"github.com/lumen-overlay/backend/internal/overlay"
	"github.com/lumen-overlay/backend/internal/paint"
	"github.com/lumen-overlay/backend/internal/realtime"
	"github.com/lumen-overlay/backend/internal/session"
	"github.com/lumen-overlay/backend/internal/snapshot"
	"github.com/lumen-overlay/backend/internal/tts"
	"github.com/lumen-overlay/backend/internal/twitch"
	"github.com/lumen-overlay/backend/pkg/database"
	"github.com/lumen-overlay/backend/pkg/redis"
	"github.com/lumen-overlay/backend/pkg/response"
	"github.com/lumen-overlay/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			BackgroundsBucket:    cfg.AWS.BackgroundsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("background storage disabled", zap.Error(err))
		}
	}

	// Broadcast fabric
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Persistence
	snapRepo := snapshot.NewRepository(pool)
	saver := snapshot.NewSaver(snapRepo, hub, cfg.Snapshot.SaveQuietPeriod, logger)

	// Sessions
	tokens := session.NewTokenService(cfg.Token.Secret, cfg.Token.ExpireHours)
	sessionRepo := session.NewRepository(pool)
	sessionHandler := session.NewHandler(sessionRepo, tokens, logger)

	// Region-fill engine
	engine := paint.NewEngine(cfg.Paint.Cooldown)
	paints := paint.NewManager(engine, snapRepo, hub, logger)

	// Announcement queue
	speech := tts.NewCoordinator(tts.NewBroadcastPlayer(hub), cfg.TTS.MaxQueue, cfg.TTS.CharsPerSecond, cfg.TTS.FallbackMargin, logger)

	// External event adapters
	chat := twitch.NewChatAdapter(cfg.Twitch.ChatURL, hub, paints, logger)
	follows := twitch.NewFollowAdapter(
		cfg.Twitch.HelixBaseURL, cfg.Twitch.ClientID, cfg.Twitch.AppToken,
		cfg.Twitch.PollInterval, hub, twitch.NewRedisCursorStore(rdb.Client), logger)

	// Control-side mutations write through the debounced saver.
	hub.SetMutationSink(func(sessionKey, topic string, payload json.RawMessage) {
		saver.Mark(sessionKey, topic, payload)
	})
	hub.SetPaintCommandHandler(func(sessionKey, user string, regionID int, colorToken string) {
		paints.ApplyCommand(context.Background(), sessionKey, paints.ActiveTemplate(sessionKey), user,
			paint.Command{RegionID: regionID, Color: paint.NormalizeColor(colorToken)})
	})
	hub.SetTTSCompleteHandler(speech.Complete)
	// Adapters are session-scoped: the last connection leaving tears them down.
	hub.SetSessionEmptyHandler(func(sessionKey string) {
		chat.Stop(sessionKey)
		follows.Stop(sessionKey)
	})

	validateJoin := func(ctx context.Context, sessionKey, role, token string) error {
		ok, err := sessionRepo.Exists(ctx, sessionKey)
		if err != nil {
			return fmt.Errorf("session lookup: %w", err)
		}
		if !ok {
			return errors.New("unknown session")
		}
		if role == realtime.RoleControl {
			return tokens.Validate(token, sessionKey)
		}
		return nil
	}
	loadSnapshot := func(ctx context.Context, sessionKey string) (json.RawMessage, error) {
		snap, err := snapRepo.Load(ctx, sessionKey)
		if errors.Is(err, snapshot.ErrNotFound) {
			return json.RawMessage("{}"), nil
		}
		if err != nil {
			return nil, err
		}
		return json.Marshal(snap)
	}

	overlayHandler := overlay.NewHandler(sessionRepo, snapRepo, saver, paints, chat, follows, speech, hub, s3Client, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Sessions (public: the dashboard creates its session on first visit)
	router.POST("/sessions", sessionHandler.Create)
	router.GET("/sessions/:key", sessionHandler.Get)

	// Render bootstrap (session key is the only credential render surfaces hold)
	router.GET("/overlay/:key/snapshot", overlayHandler.GetSnapshot)
	router.GET("/overlay/:key/paint/:template", overlayHandler.GetPaintState)

	// Control API (control token required)
	control := router.Group("/overlay/:key")
	control.Use(middleware.ControlToken(tokens))
	{
		control.PUT("/snapshot", overlayHandler.SaveSnapshot)
		control.PUT("/paint/:template/activate", overlayHandler.SetActiveTemplate)
		control.POST("/paint/:template/reset", overlayHandler.ResetPaint)
		control.POST("/paint/:template/fill-all", overlayHandler.FillAllPaint)
		control.POST("/monitor", overlayHandler.StartMonitor)
		control.GET("/monitor", overlayHandler.MonitorStatus)
		control.DELETE("/monitor", overlayHandler.StopMonitor)
		control.POST("/background/upload-url", overlayHandler.BackgroundUploadURL)
		control.POST("/tts", overlayHandler.EnqueueTTS)
	}

	// WebSocket (join directive authenticates; no Authorization header)
	router.GET("/ws", realtime.ServeWs(hub, logger, validateJoin, loadSnapshot, cfg.Snapshot.LoadTimeout))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	chat.StopAll()
	follows.StopAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
