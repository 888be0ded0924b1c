// Package cli implements docboxctl, the operator command line for the
// classifier, the Shadow Router and the configured store.
package cli

import (
	"context"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Knowmad79/Docbox2026/internal/config"
	"github.com/Knowmad79/Docbox2026/internal/llm"
	"github.com/Knowmad79/Docbox2026/internal/service/shadow"
	"github.com/Knowmad79/Docbox2026/internal/storage/backend"
	"github.com/Knowmad79/Docbox2026/internal/vectorizer"
)

// LLMFactory builds the model client the configuration selects.
type LLMFactory func(cfg config.Config, logger *slog.Logger) llm.Client

// env is shared by every subcommand. It is filled in by the root command's
// PersistentPreRunE, so subcommands can rely on cfg and logger.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	newLLM LLMFactory
}

// RootCmd returns the docboxctl command tree. newLLM may be nil, in which
// case every model call takes the rule path.
func RootCmd(version string, newLLM LLMFactory) *cobra.Command {
	e := &env{newLLM: newLLM}

	root := &cobra.Command{
		Use:     "docboxctl",
		Short:   "DocBox operator CLI",
		Version: version,
		Long: `docboxctl classifies and vectorizes messages locally and manages the
state vectors in the configured store (DATABASE_URL, else DOCBOX_SQLITE_PATH).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			e.cfg = cfg

			level := slog.LevelWarn
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level = slog.LevelDebug
			}
			e.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(classifyCmd(e))
	root.AddCommand(vectorizeCmd(e))
	root.AddCommand(migrateCmd(e))
	root.AddCommand(sweepCmd(e))
	root.AddCommand(deckCmd(e))
	root.AddCommand(transitionCmd(e))
	return root
}

func (e *env) llmClient() llm.Client {
	if e.newLLM == nil {
		return llm.Noop{}
	}
	return e.newLLM(e.cfg, e.logger)
}

func (e *env) storeConfig() backend.Config {
	return backend.Config{DatabaseURL: e.cfg.DatabaseURL, SQLitePath: e.cfg.SQLitePath}
}

func (e *env) openStore(ctx context.Context) (backend.Store, error) {
	return backend.Open(ctx, e.storeConfig(), e.logger)
}

// shadowService is enough for deck, sweep and transition. None of them
// vectorizes or fetches, so no model or mailbox is wired.
func (e *env) shadowService(store backend.Store) *shadow.Service {
	return shadow.New(store, vectorizer.New(nil, vectorizer.WithLogger(e.logger)), nil, shadow.Options{
		Logger: e.logger,
	})
}
