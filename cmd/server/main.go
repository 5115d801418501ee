package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdfshift/api/handlers"
	"github.com/feichai0017/pdfshift/api/routes"
	"github.com/feichai0017/pdfshift/config"
	"github.com/feichai0017/pdfshift/internal/service/document"
	"github.com/feichai0017/pdfshift/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := logger.NewLogger(
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
		logger.FromConfig(conf.Logger),
		logger.WithInitialField("service", "pdfshift-api"),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// init compression service
	svc, err := document.GetService(conf, log)
	if err != nil {
		log.Fatal("Failed to get compression service", logger.Error(err))
	}

	// init handlers
	gin.SetMode(conf.Server.Mode)
	h := handlers.NewHandlers(svc, log)
	r := gin.New()
	r.Use(gin.Recovery())
	// multipart 超出部分写入临时文件
	r.MaxMultipartMemory = 32 << 20
	routes.SetupRoutes(r, h, log, conf.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         conf.Server.Addr,
		Handler:      r,
		ReadTimeout:  conf.Server.ReadTimeout,
		WriteTimeout: conf.Server.WriteTimeout,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("addr", conf.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
