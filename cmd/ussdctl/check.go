package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/ussd-gateway-go/internal/definition"
	"github.com/openclaw/ussd-gateway-go/internal/repository"
)

var checkCmd = &cobra.Command{
	Use:   "check [flow-file]",
	Short: "Check flow definitions for broken menu links",
	Long: `Checks every app in a YAML flow file, or in the database when no file is
given, for missing entry menus, dangling next-menu pointers, unknown API
names and malformed options. Exits non-zero when a problem is found.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundles, source, err := loadBundles(cmd.Context(), args)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		problems := definition.CheckAll(bundles)
		for _, p := range problems {
			fmt.Fprintln(out, p.String())
		}
		if len(problems) > 0 {
			return fmt.Errorf("%s: %d problem(s) in %d app(s)", source, len(problems), len(bundles))
		}
		fmt.Fprintf(out, "%s: %d app(s) OK\n", source, len(bundles))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func loadBundles(ctx context.Context, args []string) ([]definition.Bundle, string, error) {
	if len(args) == 1 {
		store, err := definition.LoadFile(args[0])
		if err != nil {
			return nil, "", err
		}
		return store.Bundles(), args[0], nil
	}

	db, err := openDB(ctx)
	if err != nil {
		return nil, "", err
	}
	defer db.Close()

	bundles, err := definition.LoadBundles(ctx, repository.NewDefinitionRepository(db.DB))
	if err != nil {
		return nil, "", err
	}
	return bundles, "database", nil
}
