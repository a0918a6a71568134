package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"veritasai-be/internal/bootstrap"
	"veritasai-be/internal/config"
	"veritasai-be/internal/server"
	"veritasai-be/internal/tracer"
	"veritasai-be/pkg/database"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg := config.Load()

	shutdownTracer := tracer.InitTracer(cfg.Otel)
	defer shutdownTracer(context.Background())

	// 2. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection, database.Options{Verbose: !cfg.App.IsProduction()})
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(gormDB, cfg)
	if err != nil {
		log.Panicf("Unable to build container: %v", err)
	}
	defer container.Close()

	// 4. Start Background Services
	if err := container.Start(ctx); err != nil {
		log.Panicf("Unable to start background services: %v", err)
	}

	// 5. Fail or requeue documents a previous run left behind
	if _, err := container.DocumentService.RecoverStale(ctx); err != nil {
		log.Printf("[WARN] Stale document recovery failed: %v", err)
	}

	// 6. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// 7. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
