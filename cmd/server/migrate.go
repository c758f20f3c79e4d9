package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geocms/lab-reservation/internal/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing database tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.Open(cmd.Context(), a.cfg.DB)
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := database.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			a.log.Info("schema applied", zap.Int("statements", n))
			return nil
		},
	}
}
