package routes

import (
    "github.com/gin-gonic/gin"

    "github.com/feichai0017/pdfshift/api/handlers"
    "github.com/feichai0017/pdfshift/api/middleware"
    "github.com/feichai0017/pdfshift/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger, allowedOrigins []string) {
    // 全局中间件
    r.Use(middleware.RequestID())
    r.Use(middleware.AccessLog(log))
    r.Use(middleware.CORS(allowedOrigins))

    // API 版本组
    v1 := r.Group("/api/v1")

    // 健康检查
    v1.GET("/health", h.Health.Check)

    // 文档处理路由组
    docs := v1.Group("/documents")
    {
        docs.POST("/compress", h.Document.CompressDocument)
        docs.POST("/process", h.Document.ProcessDocument)
        docs.POST("/batch", h.Document.ProcessBatch)
        docs.POST("/assess", h.Document.Assess)
        docs.GET("/status/:taskId", h.Document.GetStatus)
        docs.GET("/download/:taskId", h.Document.DownloadResult)
        docs.GET("/report/:taskId", h.Document.GetReport)
        docs.DELETE("/task/:taskId", h.Document.CancelTask)
    }
}
