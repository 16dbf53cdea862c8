package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"biblio-backend/internal/documents"
	"biblio-backend/internal/emprunts"
	"biblio-backend/internal/membres"
	"biblio-backend/internal/notifications"
	"biblio-backend/internal/platform/auth"
	"biblio-backend/internal/platform/db"
)

func main() {
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	if mode != "dev" && mode != "release" {
		fmt.Println("Usage: set mode to dev or release in config/config.yaml")
		return
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	if mode == "dev" {
		if err := db.Migrate(context.Background(), conn); err != nil {
			log.Fatal(err)
		}
		log.Printf("[INFO] schema up to date")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS for the dev frontend only
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	secret := []byte(cfg.JWTSecret)
	authSvc := auth.NewService(conn, secret)
	auth.RegisterRoutes(r.Group("/api/v1/auth"), authSvc)

	empruntSvc := emprunts.NewService(conn)

	api := r.Group("/api/v1")
	api.Use(auth.RequireAuth(secret))
	documents.RegisterRoutes(api, documents.NewService(conn))
	membres.RegisterRoutes(api, membres.NewService(conn))
	emprunts.RegisterRoutes(api, empruntSvc)
	notifications.RegisterRoutes(api, notifications.NewService(conn))

	scanCtx, stopScan := context.WithCancel(context.Background())
	defer stopScan()
	if interval := time.Duration(cfg.Scanner.Interval); interval > 0 {
		log.Printf("[INFO] overdue scan every %s", interval)
		go empruntSvc.StartOverdueTicker(scanCtx, interval)
	}

	srv := &http.Server{
		Addr:    ":8443",
		Handler: r,
	}

	go func() {
		var err error
		if cfg.Certificate.Cert != "" && cfg.Certificate.Key != "" {
			certFile := fmt.Sprintf("config/tls/%s/%s", mode, cfg.Certificate.Cert)
			keyFile := fmt.Sprintf("config/tls/%s/%s", mode, cfg.Certificate.Key)
			log.Println("[INFO] listening on https://0.0.0.0:8443")
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Println("[INFO] listening on http://0.0.0.0:8443")
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	stopScan()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
