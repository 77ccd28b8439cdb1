package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/activity"
	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// NewServer builds the HTTP server: health, login, the REST API and the
// WebSocket endpoint. recorder may be nil.
func NewServer(gateway *core.Gateway, authService *auth.Service, recorder *activity.Recorder, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	api := NewAPIHandlers(authService, gateway.Hub(), recorder, logger)

	router.GET("/health", healthHandler)
	router.POST("/login", api.Login)

	apiGroup := router.Group("/api")
	apiGroup.POST("/login", api.Login)

	protected := apiGroup.Group("", AuthMiddleware(authService, logger))
	protected.GET("/online", api.Online)
	protected.GET("/rooms/:room/messages", api.RoomMessages)
	protected.GET("/stats", api.Stats)

	// The upgrade hijacks the connection, so /ws stays outside gin's writer.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(gateway, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
