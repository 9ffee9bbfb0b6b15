package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"Skynet/middleware"
	"Skynet/pkg/cache"
	"Skynet/pkg/config"
	"Skynet/pkg/logger"
	"Skynet/pkg/metrics"
	svc "Skynet/pkg/services"
	"Skynet/pkg/store"
	"Skynet/routes"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New(logger.Config{
		Level:       config.LogLevel,
		Format:      config.LogFormat,
		File:        config.LogFile,
		Development: config.AppEnv == "development",
	})
	defer func() { _ = lg.Sync() }()

	if !config.HasCredentials() {
		// the server still starts; chat requests answer 500 until a key is set
		lg.Error("no API key configured for the LLM provider", zap.String("provider", config.LLMProvider))
	}

	st, err := store.Open(config.StoreDriver, config.StoreDSN)
	if err != nil {
		lg.Fatal("open store", zap.String("driver", config.StoreDriver), zap.Error(err))
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := svc.NewProvider(ctx)
	if err != nil {
		lg.Fatal("create llm provider", zap.Error(err))
	}

	cache.SetMaxItems(config.ChatCacheMaxItems)
	llm := svc.NewLLMService(provider, svc.ConfiguredLLM(cache.Default()), lg.Named("llm"))
	chats := svc.NewChatService(st, llm, svc.ChatOptions{
		HistoryMessages: config.LLMHistoryMessages,
		SystemPrompt:    config.LLMSystemPrompt,
	}, lg.Named("chat"))

	if config.MetricsEnabled {
		metrics.Init()
		if list, err := st.List(ctx); err == nil {
			metrics.ChatsStored.Set(float64(len(list)))
		}
	}

	middleware.SetRateLimitConfig(
		time.Duration(config.RateLimitWindowSeconds)*time.Second,
		config.RateLimitCapacity,
		config.ClientConcurrencyLimit,
	)
	middleware.SetDuplicateTTL(time.Duration(config.DuplicateWindowSeconds) * time.Second)

	if config.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLog(lg.Named("http")))

	// CORS configuration
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(config.CORSAllowOrigins) == 0 || config.CORSAllowOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = config.CORSAllowOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	routes.RegisterRoutes(r, chats, lg, routes.Options{
		StoreDriver:    config.StoreDriver,
		JWTSecret:      config.APIJWTSecret,
		MetricsEnabled: config.MetricsEnabled,
	})

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", config.AppEnv),
			zap.String("provider", provider.Name()), zap.String("store", config.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		lg.Error("shutdown", zap.Error(err))
	}
	lg.Info("shutdown complete")
}
