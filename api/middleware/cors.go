package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdfshift/api/handlers"
)

// CORS allows origins; an empty list or "*" allows all.
func CORS(origins []string) gin.HandlerFunc {
	config := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", HeaderRequestID}
	// 浏览器需要读取压缩结果头
	config.ExposeHeaders = []string{
		"Content-Disposition",
		HeaderRequestID,
		handlers.HeaderOriginalSize,
		handlers.HeaderCompressedSize,
		handlers.HeaderCompressionStage,
		handlers.HeaderTargetReached,
		handlers.HeaderCompressionRatio,
	}
	config.MaxAge = 12 * time.Hour

	return cors.New(config)
}
