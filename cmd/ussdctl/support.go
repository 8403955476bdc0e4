package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/ussd-gateway-go/internal/audit"
	"github.com/openclaw/ussd-gateway-go/internal/metrics"
	"github.com/openclaw/ussd-gateway-go/internal/model"
	"github.com/openclaw/ussd-gateway-go/internal/repository"
	"github.com/openclaw/ussd-gateway-go/internal/service"
	"github.com/openclaw/ussd-gateway-go/internal/util"
)

const trailMaxEntries = 500

var trailCmd = &cobra.Command{
	Use:   "trail <session-id>",
	Short: "Replay the audit trail of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := repository.NewAuditRepository(db.DB).Query(cmd.Context(), model.AuditFilter{
			SessionID: args[0],
			Limit:     trailMaxEntries,
		})
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("no audit entries for session %s", args[0])
		}

		replay := audit.Replay(args[0], entries)
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(replay)
		}

		out := cmd.OutOrStdout()
		for _, step := range replay.Steps {
			fmt.Fprintf(out, "%3d  %s  %-14s %-20s %q\n",
				step.Step, step.At.Format("15:04:05"), step.Kind, step.Menu, step.Input)
		}
		fmt.Fprintln(out, replay.Flow)
		return nil
	},
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <phone>",
	Short: "Lift every active block on a phone number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phone := args[0]
		if !util.IsValidPhone(phone) {
			return fmt.Errorf("invalid phone number %q", phone)
		}

		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		security := service.NewSecurityService(
			repository.NewBlockRepository(db.DB),
			repository.NewFailedAttemptRepository(db.DB),
			nil,
			metrics.New(),
		)
		n, err := security.Unblock(cmd.Context(), phone)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "lifted %d block(s) on %s\n", n, util.MaskPhone(phone))
		return nil
	},
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key <admin-api-key>",
	Short: "Print the bcrypt hash to use as ADMIN_API_KEY_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args[0]) < 16 {
			return fmt.Errorf("admin API key must be at least 16 characters")
		}
		hash, err := util.HashPassword(args[0])
		if err != nil {
			return fmt.Errorf("hash key: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	trailCmd.Flags().Bool("json", false, "print the replay as JSON")
	rootCmd.AddCommand(trailCmd, unblockCmd, hashKeyCmd)
}
