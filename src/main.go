package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"regexp"
	"syscall"
	"ticketshop/src/boot"
	"ticketshop/src/config"
	"ticketshop/src/lib"
	"ticketshop/src/types"
	"time"

	"github.com/covalenthq/lumberjack"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
)

func initLogger() {
	cwd, _ := os.Getwd()
	logDir := path.Join(cwd, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Printf("Could not create log directory: %s\n", err.Error())
		return
	}
	gin.ForceConsoleColor()

	f, err := os.Create(path.Join(logDir, "api.log"))
	if err == nil {
		gin.DefaultWriter = io.MultiWriter(f, os.Stdout)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   path.Join(logDir, "server.log"),
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	}))
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	if cfg.Env == string(types.Local) {
		return cors.Default()
	}
	cc := cors.DefaultConfig()
	cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "PATCH", "PUT", "DELETE", "HEAD")
	cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization")
	cc.AllowOriginFunc = func(origin string) bool {
		match, _ := regexp.MatchString("^"+regexp.QuoteMeta(cfg.AppHost)+"$", origin)
		return match
	}
	cc.AllowCredentials = true
	cc.AllowAllOrigins = false
	return cors.New(cc)
}

func main() {
	apiEnv := os.Getenv("API_ENV")
	if apiEnv == "local" {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil {
			panic(err)
		}
	}
	initLogger()
	cfg := config.LoadConfig()

	d := boot.InitDb()
	engine := boot.InitEngine(cfg, d)
	boot.InitScheduler(engine, clockwork.NewRealClock())
	defer lib.StopScheduler()

	router := setupRouter()
	router.Use(corsMiddleware(cfg))
	registerValidators(cfg.RFIDLength)
	router = maintenanceModeMiddleware(router)
	registerRoutes(router, engine, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %s", err)
		}
	}()
	log.Printf("Listening on :%s\n", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %s\n", err.Error())
	}
}
