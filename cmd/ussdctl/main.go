// Command ussdctl operates a USSD gateway deployment: schema migrations,
// flow definition checks and support tasks against the gateway database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openclaw/ussd-gateway-go/internal/database"
)

var databaseURL string

var rootCmd = &cobra.Command{
	Use:           "ussdctl",
	Short:         "Operate a USSD gateway deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if databaseURL == "" {
			databaseURL = os.Getenv("DATABASE_URL")
		}
	},
}

func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to $DATABASE_URL)")
}

func openDB(ctx context.Context) (*database.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("no database: set --database-url or DATABASE_URL")
	}
	return database.Connect(ctx, databaseURL)
}
