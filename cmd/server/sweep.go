package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geocms/lab-reservation/internal/config"
	"github.com/geocms/lab-reservation/internal/database"
	"github.com/geocms/lab-reservation/internal/middleware"
	"github.com/geocms/lab-reservation/internal/repository"
	"github.com/geocms/lab-reservation/internal/service"
)

func newSweepCmd(a *app) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Complete elapsed reservations and purge stale refresh tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.sweep(cmd.Context(), once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")
	return cmd
}

func (a *app) sweep(ctx context.Context, once bool) error {
	loc, err := a.cfg.App.Location()
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, a.cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	var views service.ViewInvalidator
	if rdb := config.NewRedisClient(ctx, a.cfg.Redis); rdb != nil {
		defer rdb.Close()
		views = middleware.NewResponseCache(a.cfg.Cache, rdb, a.log)
	}
	svc := service.NewReservationService(repository.NewReservationRepo(db), nil, a.log, service.ReservationOptions{
		Location: loc,
		Views:    views,
	})

	tokens := repository.NewTokenRepo(db)

	run := func() {
		rctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if _, err := svc.SweepCompleted(rctx); err != nil {
			a.log.Error("sweep failed", zap.Error(err))
		}
		// Keep a day of history for revoked tokens.
		n, err := tokens.PurgeExpired(rctx, time.Now().UTC().Add(-24*time.Hour))
		if err != nil {
			a.log.Error("token purge failed", zap.Error(err))
		} else if n > 0 {
			a.log.Info("purged refresh tokens", zap.Int64("count", n))
		}
	}
	if once {
		run()
		return nil
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(a.cfg.Sweep.Schedule, run); err != nil {
		return err
	}
	a.log.Info("sweeper started", zap.String("schedule", a.cfg.Sweep.Schedule))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
