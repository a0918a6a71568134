package bootstrap

import (
	"fmt"
	"log"

	"veritasai-be/internal/config"
	"veritasai-be/internal/model"
	"veritasai-be/pkg/database"
	"veritasai-be/pkg/llm/factory"

	"gorm.io/gorm"
)

const messageScopeConstraint = "chk_chat_messages_scope"

// Migrate installs the vector extension, migrates every table and adds the
// constraints AutoMigrate cannot express. A positive dimension pins the
// chunk embedding column to vector(dimension). It is idempotent.
func Migrate(db *gorm.DB, dimension int) error {
	log.Println("Step 1: Setting up extensions...")
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		log.Printf("Warn: Failed to create pgcrypto: %v. Continuing...", err)
	}
	if err := database.EnsureVectorExtension(db); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	log.Println("Step 2: Running AutoMigrate...")
	models := []interface{}{
		&model.Document{},
		&model.DocumentChunk{},
		&model.ChatSession{},
		&model.ChatMessage{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	log.Println("Step 3: Adding constraints...")
	postMigrationSQL := []string{
		// a message belongs to a session or a document, never both
		fmt.Sprintf(`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%[1]s') THEN
		    ALTER TABLE chat_messages ADD CONSTRAINT %[1]s CHECK ((session_id IS NULL) <> (document_id IS NULL));
		  END IF;
		END $$;`, messageScopeConstraint),

		`CREATE INDEX IF NOT EXISTS idx_documents_user_hash ON documents (user_id, file_hash) WHERE deleted_at IS NULL`,
	}
	if dimension > 0 {
		// fails when stored chunks have another dimension
		postMigrationSQL = append(postMigrationSQL, fmt.Sprintf(`DO $$ BEGIN
		  IF (SELECT format_type(atttypid, atttypmod) FROM pg_attribute
		      WHERE attrelid = 'document_chunks'::regclass AND attname = 'embedding') <> 'vector(%[1]d)' THEN
		    ALTER TABLE document_chunks ALTER COLUMN embedding TYPE vector(%[1]d);
		  END IF;
		END $$;`, dimension))
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("post migration: %w", err)
		}
	}
	return nil
}

// EmbeddingDimension resolves the vector size of the configured embedding
// model, or 0 when it is unknown.
func EmbeddingDimension(cfg config.AIConfig) int {
	resolved, err := factory.NewRegistry(cfg.ProviderOverrides(), 0).Resolve(cfg.EmbeddingProvider)
	if err != nil {
		return 0
	}
	return resolved.Dimension
}
