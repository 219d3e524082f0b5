package cmd

import (
	"fmt"

	"github.com/solatis/labelkeeper/internal/core/api"
	"github.com/solatis/labelkeeper/internal/core/broadcast"
	"github.com/solatis/labelkeeper/internal/core/db"
	"github.com/solatis/labelkeeper/internal/core/metrics"
	"github.com/solatis/labelkeeper/internal/rules"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the demo user and demo rules",
	Long: `Creates demo_user with the Chocolate price band rules (Green < 2,
Yellow 2-5, Red >= 5) and the company rule. Does nothing if demo_user
already has rules.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	database, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.RequireMigrated(cmd.Context(), database); err != nil {
		return err
	}
	store, err := db.NewStore(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	// No audit directory: seeding never processes payloads.
	service, err := api.NewLabelService(store, rules.NewEngine(), broadcast.NewHub(), metrics.New(), "")
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	n, err := service.SeedDemo(cmd.Context())
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s already has rules, nothing to do\n", api.DemoUserID)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %d demo rules for %s\n", n, api.DemoUserID)
	return nil
}
