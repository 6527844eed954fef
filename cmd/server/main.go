package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"project-canvas-hub/internal/audit"
	auditrepo "project-canvas-hub/internal/audit/repository"
	"project-canvas-hub/internal/canvas/service"
	"project-canvas-hub/internal/config"
	"project-canvas-hub/internal/db"
	"project-canvas-hub/internal/db/migrate"
	healthhandler "project-canvas-hub/internal/health/handler"
	"project-canvas-hub/internal/history"
	historyrepo "project-canvas-hub/internal/history/repository"
	"project-canvas-hub/internal/hub"
	hubhandler "project-canvas-hub/internal/hub/handler"
	projectrepo "project-canvas-hub/internal/project/repository"
	"project-canvas-hub/internal/security"
	"project-canvas-hub/internal/server"
	"project-canvas-hub/internal/server/interceptors"
	"project-canvas-hub/internal/telemetry"
	telemetryotel "project-canvas-hub/internal/telemetry/otel"
	"project-canvas-hub/internal/telemetry/producer"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Storage: memory keeps everything in process and accepts any project id.
	var (
		database    *sql.DB
		historyRepo historyrepo.Repository = historyrepo.NewMemoryRepository()
		auditRepo   auditrepo.Repository   = auditrepo.NewMemoryRepository()
		projects    service.ProjectChecker
		pinger      healthhandler.Pinger
	)
	if cfg.StoreDriver != config.DriverMemory {
		dsn := cfg.DatabaseURL
		if cfg.StoreDriver == config.DriverSQLite {
			dsn = cfg.SQLitePath
		}
		var dialect db.Dialect
		database, dialect, err = db.Open(cfg.StoreDriver, dsn)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer database.Close()
		// Postgres is migrated out of band with cmd/migrate; a local SQLite file is brought up to date here.
		if cfg.StoreDriver == config.DriverSQLite {
			if err := migrate.Run(cfg.StoreDriver, dsn, "up"); err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
		historyRepo = historyrepo.NewSQLRepository(database, dialect)
		auditRepo = auditrepo.NewSQLRepository(database, dialect)
		projects = projectrepo.NewSQLRepository(database, dialect)
		pinger = database
	}
	log.Printf("store: %s", cfg.StoreDriver)

	var tokens *security.TokenProvider
	if cfg.AuthEnabled() {
		tokens, err = security.NewTokenProviderFromPEM("", cfg.JWTPublicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
		if err != nil {
			log.Fatalf("jwt: %v", err)
		}
		log.Println("auth: bearer access tokens required")
	}

	ctx := context.Background()
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Env, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		log.Printf("telemetry: kafka topic %s", cfg.TelemetryKafkaTopic)
	}
	events := telemetry.Multi(emitters...)

	auditLogger := audit.NewLogger(auditRepo, interceptors.ClientIP)
	gate := security.Gate{Token: cfg.OpenClawToken, AllowRemote: cfg.OpenClawAllowRemote}
	if gate.AllowRemote {
		log.Println("gate: remote connections allowed")
	}

	registry := hub.NewRegistry(cfg.SendTimeout())
	ledger := history.NewLedger(historyRepo, cfg.LedgerMaxRetries)
	canvas := service.NewCanvasService(ledger, registry, projects, auditLogger, events)
	health := healthhandler.NewServer(pinger)

	grpcServer := server.NewGRPCServer(server.Deps{
		Canvas:       canvas,
		HealthPinger: pinger,
		Gate:         gate,
		Tokens:       tokens,
		AuditLogger:  auditLogger,
		Events:       events,
		MaxRecvBytes: int(cfg.MaxSnapshotBytes),
	})
	wsHandler := hubhandler.NewHandler(gate, registry, canvas, tokens, auditLogger, events, hubhandler.Options{
		Conn: hub.ConnOptions{
			SendBuffer:   cfg.HubSendBuffer,
			PingInterval: cfg.PingInterval(),
			ReadLimit:    cfg.MaxSnapshotBytes,
		},
	})
	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewHTTPHandler(server.HTTPDeps{
			Canvas:       canvas,
			Hub:          wsHandler,
			Health:       health,
			AuditRepo:    auditRepo,
			Gate:         gate,
			Tokens:       tokens,
			AuditLogger:  auditLogger,
			MaxBodyBytes: cfg.MaxSnapshotBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("serve grpc: %v", err)
		}
	}()
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; closing the registry ends them.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	registry.Close()
	grpcServer.GracefulStop()

	// let in-flight EmitAsync calls finish before closing their sinks
	time.Sleep(telemetry.ShutdownDrainDuration)
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("telemetry: kafka close: %v", err)
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("server stopped")
}
