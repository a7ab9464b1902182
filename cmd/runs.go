package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored enrichment results",
	Long:  "Commands for viewing and replaying a stored result's terminal callback payload.",
}

var runsShowCmd = &cobra.Command{
	Use:   "show <account-id> <enrichment-type>",
	Short: "Show the stored terminal callback payload for an account/enrichment_type pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		env, err := buildEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		leadID, _ := cmd.Flags().GetString("lead-id")
		event, err := env.ResultStore.Get(ctx, args[0], leadID, args[1])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(event)
	},
}

var runsResendCmd = &cobra.Command{
	Use:   "resend <account-id> <enrichment-type>",
	Short: "Replay a stored result through the callback handler without recomputation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		env, err := buildEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		leadID, _ := cmd.Flags().GetString("lead-id")
		emitter := handlerEmitter{handler: env.CallbackHandler}
		if err := env.ResultStore.Resend(ctx, args[0], leadID, args[1], emitter.Emit); err != nil {
			return eris.Wrap(err, "runs resend")
		}
		return nil
	},
}

func init() {
	runsShowCmd.Flags().String("lead-id", "", "lead entity ID, if the result is keyed by lead rather than account")
	runsResendCmd.Flags().String("lead-id", "", "lead entity ID, if the result is keyed by lead rather than account")

	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsResendCmd)
	rootCmd.AddCommand(runsCmd)
}
