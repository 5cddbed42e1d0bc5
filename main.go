package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"dentascope/controllers"
	"dentascope/models"
	"dentascope/storage"
	"dentascope/utils"
)

// setupLogging Configure logrus from the log section of the config
func setupLogging(config *utils.Config) error {
	level, err := log.ParseLevel(config.Log.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	switch config.Log.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", config.Log.Format)
	}
	return nil
}

func main() {
	log.Info("Starting dentascope...")

	// Generate our config based on the config supplied
	// by the user in the flags
	configPath, debugMode, err := utils.ParseFlags()
	if err != nil {
		log.Fatal(err)
	}
	config, err := utils.NewConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := setupLogging(config); err != nil {
		log.Fatal(err)
	}

	// Debug mode enables gin-gonic debug mode
	if !debugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := models.ConnectDataBase(config)
	if err != nil {
		log.Fatal(err)
	}
	files, err := storage.NewFileStore(config.Storage.Root)
	if err != nil {
		log.Fatal(err)
	}

	r := controllers.NewRouter(db, files, config)

	addr := fmt.Sprintf(":%s", config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info(fmt.Sprintf("Listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with
	// a timeout of 5 seconds.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info("Server exiting")
}
