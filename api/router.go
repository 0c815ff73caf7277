package api

import (
	"mediaproc/config"
	"mediaproc/task"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func SetupRouter(mgr *task.Manager, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	r.Use(TraceID(), Logging(logger), Recovery(logger))
	h := NewHandler(mgr, cfg, logger)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/upload", h.handleUpload)
		v1.POST("/process", h.handleProcess)
		v1.GET("/status/:taskId", h.handleStatus)
		v1.GET("/history", h.handleHistory)
		v1.GET("/download/:filename", h.handleDownload)
	}
	return r
}
