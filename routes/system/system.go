package system

import (
	"github.com/gin-gonic/gin"

	"Skynet/controllers"
	"Skynet/pkg/metrics"
	svc "Skynet/pkg/services"
)

// Register adds the unauthenticated service endpoints.
func Register(r *gin.Engine, chats *svc.ChatService, storeDriver string, withMetrics bool) {
	r.GET("/", controllers.Root())
	r.GET("/healthz", controllers.Health(chats, storeDriver))
	if withMetrics {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
}
