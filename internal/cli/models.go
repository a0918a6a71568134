package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"veritasai-be/internal/bootstrap"
	"veritasai-be/internal/config"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List models offered by a provider",
	Long:  `Lists the models of the given provider, or of the default chat provider when none is named.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModels,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	provider := ""
	if len(args) == 1 {
		provider = args[0]
	}

	return withServices(cmd, func(ctx context.Context, s *Services) error {
		models, err := s.Models.ListModels(ctx, provider)
		if err != nil {
			return err
		}
		if len(models) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No models found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tMODEL\tCAPABILITIES")
		for _, m := range models {
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.Provider, m.Id, strings.Join(m.Capabilities, ","))
		}
		return w.Flush()
	})
}

var migrate = bootstrap.Migrate

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if err := migrate(db, bootstrap.EmbeddingDimension(cfg.Ai)); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Database migration completed.")
	return nil
}
