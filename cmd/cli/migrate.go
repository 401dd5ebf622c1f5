package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sho7650/social-bridge/internal/storage"
)

type migratable interface {
	Migrations() (*storage.MigrationManager, error)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [target-version]",
	Short: "Show schema migrations, or migrate the store to a target version",
	Long: `Without arguments, list the schema migrations and whether each is applied.
Opening the store always brings it to the latest version first; a lower
target version rolls migrations back.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db := cfg.Global.Database
	store, err := storage.Open(db.Driver, db.Path, db.URL)
	if err != nil {
		return err
	}
	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	m, ok := store.(migratable)
	if !ok {
		return fmt.Errorf("driver %s does not expose migrations", db.Driver)
	}
	mm, err := m.Migrations()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		target, err := strconv.Atoi(args[0])
		if err != nil || target < 0 || target > mm.LatestVersion() {
			return fmt.Errorf("target version must be between 0 and %d", mm.LatestVersion())
		}
		if err := mm.MigrateToVersion(ctx, mm.Migrations(), target); err != nil {
			return err
		}
	}

	applied, err := mm.ListAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	appliedAt := make(map[int]storage.Migration, len(applied))
	for _, a := range applied {
		appliedAt[a.Version] = a
	}

	out := cmd.OutOrStdout()
	for _, mig := range mm.Migrations() {
		state := "pending"
		if a, ok := appliedAt[mig.Version]; ok {
			state = "applied " + humanize.Time(a.AppliedAt)
		}
		fmt.Fprintf(out, "%3d  %-28s %s\n", mig.Version, mig.Name, state)
	}
	return nil
}
