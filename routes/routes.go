package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"Skynet/middleware"
	svc "Skynet/pkg/services"
	chatRoutes "Skynet/routes/chat"
	systemRoutes "Skynet/routes/system"
	websocketRoutes "Skynet/routes/websocket"
)

type Options struct {
	StoreDriver    string
	JWTSecret      string
	MetricsEnabled bool
}

func RegisterRoutes(r *gin.Engine, chats *svc.ChatService, log *zap.Logger, opts Options) {
	systemRoutes.Register(r, chats, opts.StoreDriver, opts.MetricsEnabled)

	auth := middleware.Auth(opts.JWTSecret)
	websocketRoutes.Register(r, chats, log, auth)

	api := r.Group("/api")
	api.Use(auth)
	chatRoutes.Register(api, chats, log)
}
