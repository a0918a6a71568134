package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"veritasai-be/internal/config"
	"veritasai-be/internal/dto"
	"veritasai-be/internal/entity"
	"veritasai-be/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeIngestion struct {
	processed []uuid.UUID
	err       error
}

func (f *fakeIngestion) Process(_ context.Context, id uuid.UUID) error {
	f.processed = append(f.processed, id)
	return f.err
}

type fakeLookup map[uuid.UUID]*entity.Document

func (f fakeLookup) FindDocument(_ context.Context, id uuid.UUID) (*entity.Document, error) {
	return f[id], nil
}

type fakeModels struct {
	asked  string
	models []*dto.ModelResponse
}

func (f *fakeModels) ListProviders(context.Context) ([]*dto.ProviderResponse, error) {
	return nil, nil
}

func (f *fakeModels) ListModels(_ context.Context, provider string) ([]*dto.ModelResponse, error) {
	f.asked = provider
	return f.models, nil
}

type fakeMaintenance struct {
	updated int
	err     error
}

func (f *fakeMaintenance) BackfillTokenCounts(context.Context) (int, error) {
	return f.updated, f.err
}

type fakeDocuments struct {
	service.IDocumentService
	result *dto.RecoveryResult
}

func (f *fakeDocuments) RecoverStale(context.Context) (*dto.RecoveryResult, error) {
	return f.result, nil
}

// setupTestServices swaps the service loader and returns a restore func.
func setupTestServices(s *Services) func() {
	orig := loadServices
	loadServices = func(context.Context) (*Services, func(), error) {
		return s, nil, nil
	}
	return func() { loadServices = orig }
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}

	assert.Contains(t, names, "process-document")
	assert.Contains(t, names, "backfill-token-counts")
	assert.Contains(t, names, "recover-stale")
	assert.Contains(t, names, "migrate")
	assert.Contains(t, names, "models")
	assert.Contains(t, names, "watch")
}

func TestProcessDocumentCmd(t *testing.T) {
	id := uuid.New()
	failure := "extraction failed: empty document"

	tests := []struct {
		name    string
		args    []string
		doc     *entity.Document
		procErr error
		wantErr string
		wantOut []string
	}{
		{
			name:    "requires one arg",
			args:    []string{"process-document"},
			wantErr: "accepts 1 arg(s)",
		},
		{
			name:    "rejects bad id",
			args:    []string{"process-document", "nope"},
			wantErr: "invalid document id",
		},
		{
			name:    "prints completed status",
			args:    []string{"process-document", id.String()},
			doc:     &entity.Document{Id: id, Name: "report.pdf", Status: entity.DocumentStatusCompleted, NumChunks: 12},
			wantOut: []string{"report.pdf", "completed", "12"},
		},
		{
			name:    "prints recorded failure",
			args:    []string{"process-document", id.String()},
			doc:     &entity.Document{Id: id, Name: "blank.txt", Status: entity.DocumentStatusFailed, ErrorMessage: &failure},
			wantOut: []string{"failed", failure},
		},
		{
			name:    "missing document",
			args:    []string{"process-document", id.String()},
			wantErr: "not found",
		},
		{
			name:    "pipeline error",
			args:    []string{"process-document", id.String()},
			procErr: errors.New("db down"),
			wantErr: "db down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingestion := &fakeIngestion{err: tt.procErr}
			lookup := fakeLookup{}
			if tt.doc != nil {
				lookup[tt.doc.Id] = tt.doc
			}
			defer setupTestServices(&Services{Ingestion: ingestion, Lookup: lookup})()

			out, err := execute(t, tt.args...)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []uuid.UUID{id}, ingestion.processed)
			for _, want := range tt.wantOut {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestBackfillCmd(t *testing.T) {
	t.Run("reports count", func(t *testing.T) {
		defer setupTestServices(&Services{Maintenance: &fakeMaintenance{updated: 42}})()

		out, err := execute(t, "backfill-token-counts")

		require.NoError(t, err)
		assert.Contains(t, out, "Updated 42 chunks.")
	})

	t.Run("propagates error", func(t *testing.T) {
		defer setupTestServices(&Services{Maintenance: &fakeMaintenance{err: errors.New("locked")}})()

		_, err := execute(t, "backfill-token-counts")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "locked")
	})
}

func TestRecoverStaleCmd(t *testing.T) {
	defer setupTestServices(&Services{Documents: &fakeDocuments{result: &dto.RecoveryResult{Failed: 2, Requeued: 1}}})()

	out, err := execute(t, "recover-stale")

	require.NoError(t, err)
	assert.Contains(t, out, "Marked 2 failed, requeued 1.")
}

func TestModelsCmd(t *testing.T) {
	models := &fakeModels{models: []*dto.ModelResponse{
		{Id: "llama3.2", Provider: "ollama", Capabilities: []string{"chat"}},
		{Id: "nomic-embed-text", Provider: "ollama", Capabilities: []string{"embedding"}},
	}}
	defer setupTestServices(&Services{Models: models})()

	t.Run("default provider", func(t *testing.T) {
		out, err := execute(t, "models")

		require.NoError(t, err)
		assert.Equal(t, "", models.asked)
		assert.Contains(t, out, "PROVIDER")
		assert.Contains(t, out, "llama3.2")
		assert.Contains(t, out, "embedding")
	})

	t.Run("named provider", func(t *testing.T) {
		_, err := execute(t, "models", "ollama")

		require.NoError(t, err)
		assert.Equal(t, "ollama", models.asked)
	})

	t.Run("too many args", func(t *testing.T) {
		_, err := execute(t, "models", "a", "b")

		require.Error(t, err)
	})
}

func TestWatchCmd_RequiresUser(t *testing.T) {
	_, err := execute(t, "watch", t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "user" not set`)
}

func TestMigrateCmd(t *testing.T) {
	origOpen, origMigrate := openDB, migrate
	defer func() { openDB, migrate = origOpen, origMigrate }()

	t.Run("runs migration", func(t *testing.T) {
		t.Setenv("EMBEDDING_PROVIDER", "ollama")
		t.Setenv("EMBEDDING_DIMENSION", "")
		called := false
		dimension := -1
		openDB = func(*config.Config) (*gorm.DB, error) { return &gorm.DB{}, nil }
		migrate = func(_ *gorm.DB, dim int) error {
			called = true
			dimension = dim
			return nil
		}

		out, err := execute(t, "migrate")

		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, 768, dimension)
		assert.Contains(t, out, "migration completed")
	})

	t.Run("connection failure", func(t *testing.T) {
		openDB = func(*config.Config) (*gorm.DB, error) { return nil, errors.New("refused") }

		_, err := execute(t, "migrate")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "refused")
	})
}
