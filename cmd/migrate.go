package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-engine/internal/callback"
	"github.com/sells-group/enrichment-engine/internal/resultstore"
)

// migrateCmd applies every store's schema migrations up front. Unlike the
// teacher's geo schema, none of this engine's stores need a standalone
// Migrate function: apicache, llmcache, resultstore, and callback's status
// store each migrate themselves on open (see their NewSQLite/NewPostgres
// constructors). This command exists so a deploy can apply schema changes
// and verify connectivity before serve starts accepting traffic, without
// spinning up the LLM/HTTP clients buildEnv otherwise constructs.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending store schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		apiStore, err := buildAPICacheStore(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		defer apiStore.Close() //nolint:errcheck

		llmStore, err := buildLLMCacheStore(cfg.Cache)
		if err != nil {
			return err
		}
		defer llmStore.Close() //nolint:errcheck

		resultBackend, err := resultstore.NewSQLiteBackend(cfg.ResultStore.DatabaseURL)
		if err != nil {
			return err
		}
		defer resultBackend.Close() //nolint:errcheck

		statusStore, err := callback.NewSQLiteStatusStore(cfg.Cache.DatabaseURL)
		if err != nil {
			return err
		}
		defer statusStore.Close() //nolint:errcheck

		zap.L().Info("all store migrations applied successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
