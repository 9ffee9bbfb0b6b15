package chat

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"Skynet/controllers"
	"Skynet/middleware"
	svc "Skynet/pkg/services"
)

// Register registers the chat routes under g (normally /api).
func Register(g *gin.RouterGroup, chats *svc.ChatService, log *zap.Logger) {
	// Basic rate limiting on chat POST endpoints
	g.POST("/chat", middleware.RateLimit(), controllers.SendMessage(chats))
	g.POST("/chat/stream", middleware.RateLimit(), controllers.SendMessageStream(chats, log))
	g.GET("/chats", controllers.ListChats(chats))
	g.GET("/chats/:id", controllers.GetChat(chats))
	g.DELETE("/chats/:id", controllers.DeleteChat(chats))
	g.DELETE("/chats", controllers.DeleteAllChats(chats))
}
