package main // Entry point package

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geocms/lab-reservation/internal/config"
	"github.com/geocms/lab-reservation/internal/logging"
)

// app holds what every subcommand needs.  It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	cfg *config.Config
	log *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	root := &cobra.Command{
		Use:               "geocms",
		Short:             "Faculty lab reservation service",
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		Run: func(cmd *cobra.Command, _ []string) { _ = cmd.Help() },
	}
	root.SetContext(ctx)
	root.AddCommand(newServeCmd(a), newMigrateCmd(a), newConsumeCmd(a), newSweepCmd(a))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.App.Production(), cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.cfg = cfg
	a.log = log.With(zap.String("cmd", cmd.Name()), zap.String("env", cfg.App.Env))
	return nil
}
