package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"marketchat/internal/chat/handler"
	"marketchat/internal/chat/repository"
	"marketchat/internal/chat/service"
	"marketchat/internal/common"
	"marketchat/internal/config"
	"marketchat/internal/dbmongo"
	"marketchat/internal/dbmysql"
	"marketchat/internal/legacy"
	"marketchat/internal/metrics"
	"marketchat/internal/migrate"
	"marketchat/internal/policy"
	"marketchat/internal/realtime"
)

var (
	// Version is injected via -ldflags "-X main.Version=..."
	Version = "dev"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "c", "./config.yml", "config file path")
	flag.Parse()

	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}
	log.Info("msg-svc starting", zap.String("version", Version), zap.String("addr", cfg.Server.Addr))

	metrics.Register()

	db, err := dbmysql.NewMySQL(cfg)
	if err != nil {
		log.Fatal("mysql init failed", zap.Error(err))
	}

	repo := repository.NewChatRepository(db)
	gate := policy.NewGate(cfg.Policy, log)
	hub := realtime.NewHub()
	bus := realtime.NewBus(hub, repo, cfg.Realtime.TypingExpiry, cfg.Realtime.PresenceDebounce, log)
	chatService := service.NewChatService(repo, gate, bus, log)

	// The legacy source is optional: without it the process serves current
	// traffic and simply has nothing to migrate.
	if cfg.Migration.RunOnStartup {
		if mc, err := dbmongo.NewMongoConnection(cfg); err != nil {
			log.Warn("legacy source unavailable, startup migration skipped", zap.Error(err))
		} else {
			engine := migrate.NewEngine(dbmongo.NewLegacySource(mc, cfg), repo, log)
			go func() {
				defer mc.Close(context.Background())
				engine.MigrateAll(context.Background())
			}()
		}
	}

	chatHandler := handler.NewChatHandler(chatService, log)
	wsHandler := handler.NewWSHandler(chatService, bus, cfg.Realtime.SendQueueSize, cfg.Realtime.WriteTimeout, log)

	v1 := legacy.NewV1Adapter(chatService, legacy.StateFromConfig("v1", cfg.Deprecation.V1), log)
	v2 := legacy.NewV2Adapter(chatService, legacy.StateFromConfig("v2", cfg.Deprecation.V2), log)
	v3 := legacy.NewV3Adapter(chatService, legacy.StateFromConfig("v3", cfg.Deprecation.V3), log)

	auth := common.AuthMiddleware([]byte(cfg.Auth.JWTSecret))

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	legacy.RegisterRedirects(r)

	api4 := r.PathPrefix("/api/v4").Subrouter()
	api4.Use(auth)
	chatHandler.Register(api4)

	api1 := r.PathPrefix("/api/v1").Subrouter()
	api1.Use(auth)
	v1.Register(api1)

	api2 := r.PathPrefix("/api/v2").Subrouter()
	api2.Use(auth)
	v2.Register(api2)

	api3 := r.PathPrefix("/api/v3").Subrouter()
	api3.Use(auth)
	v3.Register(api3)

	r.Handle("/ws", auth(wsHandler))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      0, // websocket sessions outlive any write timeout
	}

	go func() {
		log.Info("msg-svc listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
	log.Info("stopped")
}
