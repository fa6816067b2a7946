// Package cmd is the enforcer-cli command tree, grounded on the teacher's
// music/cmd/zone.go cobra.Command shape and its columnize tabular output.
package cmd

import (
	"context"
	"fmt"

	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/johanix/keyenforcer/internal/config"
	"github.com/johanix/keyenforcer/internal/model"
	"github.com/johanix/keyenforcer/internal/store"
	"github.com/johanix/keyenforcer/internal/store/pgstore"
	"github.com/johanix/keyenforcer/internal/store/sqlitestore"
	"github.com/johanix/keyenforcer/internal/zoneupdate"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "enforcer-cli",
	Short: "operator interface to the key and signing policy enforcer",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to enforcer configuration file")
	rootCmd.AddCommand(
		dsCommand("ds-submit", "mark a KSK's DS record ready for the parent", zoneupdate.DSSubmit),
		dsCommand("ds-seen", "confirm the parent has published the DS record", zoneupdate.DSSeen),
		dsCommand("ds-retract", "mark a DS record for removal from the parent", zoneupdate.DSRetract),
		dsCommand("ds-gone", "confirm the parent has removed the DS record", zoneupdate.DSGone),
		zoneListCmd,
	)
}

// Execute runs the command tree and returns any error for main to report.
func Execute() error {
	return rootCmd.Execute()
}

type dsOp func(ctx context.Context, db store.Store, keyDataID model.ID) error

func dsCommand(use, short string, op dsOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <key-data-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			db, err := openStoreFromConfig()
			if err != nil {
				return err
			}
			defer db.Close()
			return op(c.Context(), db, model.ID(args[0]))
		},
	}
}

var zoneListCmd = &cobra.Command{
	Use:   "zone-list",
	Short: "list zones known to the enforcer",
	RunE: func(c *cobra.Command, args []string) error {
		db, err := openStoreFromConfig()
		if err != nil {
			return err
		}
		defer db.Close()

		it, err := db.Read(c.Context(), store.TableZone, nil, store.IsNotNull("id"), nil)
		if err != nil {
			return err
		}
		defer it.Close()

		lines := []string{"ID | NAME | POLICY | STATUS"}
		for it.Next() {
			row := it.Row()
			id, _ := row["id"].AsText()
			name, _ := row["name"].AsText()
			policyID, _ := row["policyId"].AsText()
			lines = append(lines, fmt.Sprintf("%s | %s | %s | %s", id, name, policyID, "ok"))
		}
		if err := it.Err(); err != nil {
			return err
		}
		fmt.Println(columnize.SimpleFormat(lines))
		return nil
	},
}

func openStoreFromConfig() (store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	switch cfg.Store.Backend {
	case "sqlite":
		return sqlitestore.Open(ctx, cfg.Store.DSN, nil)
	case "postgres":
		return pgstore.Open(ctx, cfg.Store.DSN, nil)
	default:
		return nil, fmt.Errorf("enforcer-cli: unknown store backend %q", cfg.Store.Backend)
	}
}
