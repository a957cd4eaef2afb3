package main

import (
	"context"
	"net/http"
	"time"

	"typesync/config"
	"typesync/config/database"
	"typesync/internal/auth"
	"typesync/internal/document/service"
	"typesync/pkg/logger"
	"typesync/router"
	"typesync/socket"
	"typesync/store"

	"github.com/lib/pq"
)

func main() {
	logger.Init()
	defer logger.Log.Sync()

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		logger.Sugar.Fatal("JWT_SECRET environment variable not set.")
	}

	var st store.Store
	switch cfg.StoreBackend {
	case "postgres":
		connStr := cfg.ConnString()
		db := database.Connect(connStr)
		defer db.Close()

		listener := pq.NewListener(connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Sugar.Errorf("Listener event %v: %v", ev, err)
			}
		})
		pg := store.NewPostgres(db, listener)
		defer pg.Close()

		if err := pg.EnsureSchema(context.Background()); err != nil {
			logger.Sugar.Fatalf("Failed to ensure store schema: %v", err)
		}
		st = pg
	case "memory":
		logger.Sugar.Info("Using in-memory store; data will not survive a restart")
		st = store.NewMemory()
	default:
		logger.Sugar.Fatalf("Unknown STORE backend %q", cfg.StoreBackend)
	}

	docs := service.NewDocumentService(st)
	authSvc := auth.NewService(st, []byte(cfg.JWTSecret))

	hub := socket.NewHub(st, docs)
	go hub.Run()

	handler := router.Setup([]byte(cfg.JWTSecret), docs, authSvc, hub)

	logger.Sugar.Infof("TypeSync backend listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		logger.Sugar.Fatalf("Server stopped: %v", err)
	}
}
