package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobmate/swipe-service/internal/config"
	"jobmate/swipe-service/internal/db"
	"jobmate/swipe-service/internal/store/sqlite"
)

func (a *app) newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue job postings once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}
			defer st.Close()

			pub, rdb, err := openEvents(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}
			if rdb != nil {
				defer rdb.Close()
			}

			ids, err := newService(st, pub, a.cfg, a.log).ExpireJobs(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d posting(s)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().String("store", "", "store driver: postgres, sqlite or memory (overrides config)")
	a.bindFlag(cmd, "store.driver", "store")
	return cmd
}

func (a *app) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema to the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			switch a.cfg.Store.Driver {
			case config.DriverPostgres:
				pool, err := db.NewPostgresPool(ctx, a.cfg.Store.DatabaseURL, db.PoolOptions{MaxConns: 1})
				if err != nil {
					return err
				}
				defer pool.Close()
				if err := db.Migrate(ctx, pool, a.log); err != nil {
					return err
				}
			case config.DriverSQLite:
				st, err := sqlite.Open(ctx, a.cfg.Store.SQLitePath, a.log)
				if err != nil {
					return err
				}
				st.Close()
			default:
				return fmt.Errorf("store driver %q has no schema to migrate", a.cfg.Store.Driver)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", a.cfg.Store.Driver)
			return nil
		},
	}
}
