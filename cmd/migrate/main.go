package main

import (
	"log"

	"veritasai-be/internal/bootstrap"
	"veritasai-be/internal/config"
	"veritasai-be/pkg/database"
)

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, database.Options{})
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting GORM migration...")
	if err := bootstrap.Migrate(db, bootstrap.EmbeddingDimension(cfg.Ai)); err != nil {
		log.Fatalf("Error: Migration failed: %v", err)
	}
	log.Println("Success: Database migration completed.")
}
