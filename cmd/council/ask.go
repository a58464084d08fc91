package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-council/pkg/council"
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Run one deliberation and print the result as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().Bool("no-rag", false, "skip knowledge-base retrieval")
	askCmd.Flags().String("madhab", "", "consult only members of this perspective plus universal members")
	askCmd.Flags().Int("top-k", 0, "number of passages to retrieve (default from config)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	app, logger, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Shutdown(context.Background())

	ctx := cmd.Context()
	if err := app.Init(ctx); err != nil {
		return err
	}

	noRAG, _ := cmd.Flags().GetBool("no-rag")
	madhab, _ := cmd.Flags().GetString("madhab")
	topK, _ := cmd.Flags().GetInt("top-k")

	result, err := app.Council().Deliberate(ctx, council.Request{
		Query:       strings.Join(args, " "),
		UseContext:  !noRAG,
		Perspective: madhab,
		TopK:        topK,
	})
	if err != nil {
		return err
	}

	if err := app.Storage().SaveDeliberation(ctx, result); err != nil {
		logger.Error("failed to persist deliberation",
			slog.String("deliberation_id", result.ID),
			slog.String("error", err.Error()))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
