package websocket

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"Skynet/controllers"
	"Skynet/middleware"
	svc "Skynet/pkg/services"
)

func Register(r *gin.Engine, chats *svc.ChatService, log *zap.Logger, auth gin.HandlerFunc) {
	r.GET("/ws/chat", auth, middleware.RateLimit(), controllers.ChatWS(chats, log))
}
