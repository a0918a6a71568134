package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var processDocumentCmd = &cobra.Command{
	Use:   "process-document [doc-id]",
	Short: "Run the ingestion pipeline for one document",
	Long: `Extracts, chunks and embeds a stored document in the foreground,
then prints the resulting status. Failed documents can be retried this way.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcessDocument,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill-token-counts",
	Short: "Fill in token counts for chunks stored without one",
	Args:  cobra.NoArgs,
	RunE:  runBackfill,
}

var recoverStaleCmd = &cobra.Command{
	Use:   "recover-stale",
	Short: "Fail or requeue documents stuck in pending or processing",
	Args:  cobra.NoArgs,
	RunE:  runRecoverStale,
}

func init() {
	rootCmd.AddCommand(processDocumentCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(recoverStaleCmd)
}

func runProcessDocument(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document id %q", args[0])
	}

	return withServices(cmd, func(ctx context.Context, s *Services) error {
		if err := s.Ingestion.Process(ctx, id); err != nil {
			return err
		}
		doc, err := s.Lookup.FindDocument(ctx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("document %s not found", id)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Document: %s\n", doc.Name)
		fmt.Fprintf(out, "Status:   %s\n", doc.Status)
		fmt.Fprintf(out, "Chunks:   %d\n", doc.NumChunks)
		if doc.ErrorMessage != nil {
			fmt.Fprintf(out, "Error:    %s\n", *doc.ErrorMessage)
		}
		return nil
	})
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(ctx context.Context, s *Services) error {
		n, err := s.Maintenance.BackfillTokenCounts(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %d chunks.\n", n)
		return nil
	})
}

func runRecoverStale(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(ctx context.Context, s *Services) error {
		res, err := s.Documents.RecoverStale(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Marked %d failed, requeued %d.\n", res.Failed, res.Requeued)
		return nil
	})
}
