package cli

import (
	"context"
	"errors"
	"fmt"

	"veritasai-be/internal/bootstrap"
	"veritasai-be/internal/config"
	"veritasai-be/internal/entity"
	"veritasai-be/internal/repository/specification"
	"veritasai-be/internal/repository/unitofwork"
	"veritasai-be/internal/service"
	"veritasai-be/pkg/database"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:   "veritasctl",
	Short: "Operate the VeritasAI backend",
	Long: `veritasctl runs maintenance tasks against the VeritasAI database and
services: schema migration, re-processing documents, token count backfill
and folder ingestion.`,
	SilenceUsage: true,
}

// DocumentLookup loads a document regardless of owner.
type DocumentLookup interface {
	FindDocument(ctx context.Context, id uuid.UUID) (*entity.Document, error)
}

// Services is the slice of the backend the commands drive.
type Services struct {
	Ingestion   service.IIngestionService
	Documents   service.IDocumentService
	Models      service.IModelService
	Maintenance service.IMaintenanceService
	Formats     service.FormatChecker
	Lookup      DocumentLookup
}

var (
	// openDB and loadServices are replaced in tests.
	openDB = func(cfg *config.Config) (*gorm.DB, error) {
		if cfg.Database.Connection == "" {
			return nil, errors.New("DB_CONNECTION_STRING is not set")
		}
		return database.NewGormDBFromDSN(cfg.Database.Connection, database.Options{})
	}

	loadServices = func(ctx context.Context) (*Services, func(), error) {
		cfg := config.Load()
		db, err := openDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		c, err := bootstrap.NewContainer(db, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("build container: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			c.Close()
			return nil, nil, err
		}
		return &Services{
			Ingestion:   c.IngestionService,
			Documents:   c.DocumentService,
			Models:      c.ModelService,
			Maintenance: c.Maintenance,
			Formats:     c.Formats,
			Lookup:      uowLookup{factory: c.UowFactory},
		}, c.Close, nil
	}
)

type uowLookup struct {
	factory unitofwork.RepositoryFactory
}

func (l uowLookup) FindDocument(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	return l.factory.NewUnitOfWork(ctx).DocumentRepository().FindOne(ctx, specification.ByID{ID: id})
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// withServices wires the backend for the duration of one command.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, s *Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, closeFn, err := loadServices(ctx)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(ctx, s)
}
