package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abdul977/whimsical-idea-keeper/Config"
	"github.com/abdul977/whimsical-idea-keeper/Route"
	"github.com/abdul977/whimsical-idea-keeper/database"
	"github.com/abdul977/whimsical-idea-keeper/service/Audio"
	"github.com/abdul977/whimsical-idea-keeper/service/Auth"
	"github.com/abdul977/whimsical-idea-keeper/service/Collaborator"
	"github.com/abdul977/whimsical-idea-keeper/service/Note"
	"github.com/abdul977/whimsical-idea-keeper/service/Outbound"
	"github.com/abdul977/whimsical-idea-keeper/service/Presence"
	"github.com/abdul977/whimsical-idea-keeper/service/Reasoning"
	"github.com/abdul977/whimsical-idea-keeper/service/Search"
)

const (
	shutdownTimeout        = 10 * time.Second
	revocationCleanupEvery = 10 * time.Minute
	recorderCleanupEvery   = time.Minute
)

// serve 组装所有服务并运行到收到退出信号
func serve(parent context.Context, cfg *Config.Config, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(cfg.DatabaseURL, cfg.Debug, logger)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	redisClient := database.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	index, err := Search.NewBleveIndex(logger)
	if err != nil {
		return err
	}
	defer index.Close()
	if err := index.Rebuild(ctx, db); err != nil {
		return err
	}

	users, err := Auth.NewUserService(db, logger)
	if err != nil {
		return err
	}
	tokens, err := Auth.NewTokenManager(cfg.SecretKey, cfg.TokenTTL())
	if err != nil {
		return err
	}
	revoked := Auth.NewRevocationStore(redisClient)
	if mem, ok := revoked.(*Auth.MemoryRevocationStore); ok {
		mem.StartCleanupTask(ctx, revocationCleanupEvery)
	}

	notes, err := Note.NewNoteService(db, index, logger)
	if err != nil {
		return err
	}
	collaborators, err := Collaborator.NewCollaboratorService(db, notes, users, logger)
	if err != nil {
		return err
	}

	prompts, err := Reasoning.NewPromptManager(cfg.PromptConfigPath, logger)
	if err != nil {
		return err
	}
	go func() {
		if err := prompts.Watch(ctx); err != nil {
			logger.Warn("提示词热加载不可用", zap.Error(err))
		}
	}()

	policy := Outbound.New(cfg.AITimeout())
	var (
		chat        Reasoning.ChatCompleter
		transcriber Audio.TranscriptionClient
	)
	if cfg.AIAPIKey != "" {
		client := Reasoning.NewOpenAIClient(cfg.AIAPIKey, cfg.AIBaseURL)
		chat, transcriber = client, client
	}
	processor := Reasoning.Select(cfg.AIProcessor, chat, cfg.AIAPIKey, cfg.AIModel, prompts, policy, logger)
	logger.Info("AI 处理器", zap.String("strategy", processor.Name()))

	storage := Audio.NewDiskStorage(cfg.AudioDir, cfg.PublicBaseURL)
	recorders := Audio.NewRecorderRegistry(storage, logger)
	recorders.StartCleanupTask(ctx, recorderCleanupEvery, Audio.RecorderIdleTimeout)
	hub := Presence.NewHub(Presence.NewStore(redisClient), logger)
	defer hub.Close(context.Background())

	router := Route.SetupRouter(Route.Deps{
		Logger:         logger,
		AllowedOrigins: cfg.Origins(),
		SecureCookie:   !cfg.Debug,
		Users:          users,
		Sessions:       Auth.NewSessionService(tokens, revoked),
		Notes:          notes,
		Collaborators:  collaborators,
		Processor:      processor,
		Storage:        storage,
		Recorders:      recorders,
		Transcriber:    Audio.NewTranscriber(transcriber, cfg.AITranscriptionModel, storage, policy, logger),
		Hub:            hub,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("服务器启动中...", zap.String("addr", server.Addr), zap.String("version", version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("正在关闭服务器...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
