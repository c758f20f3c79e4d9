package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geocms/lab-reservation/internal/config"
	"github.com/geocms/lab-reservation/internal/database"
	"github.com/geocms/lab-reservation/internal/handler"
	"github.com/geocms/lab-reservation/internal/middleware"
	"github.com/geocms/lab-reservation/internal/queue"
	"github.com/geocms/lab-reservation/internal/repository"
	"github.com/geocms/lab-reservation/internal/router"
	"github.com/geocms/lab-reservation/internal/service"
	"github.com/geocms/lab-reservation/internal/telemetry"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  func(cmd *cobra.Command, _ []string) error { return a.serve(cmd.Context()) },
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	shutdownTrace, err := telemetry.Setup(cfg.Trace.Enabled, cfg.Trace.ServiceName, cfg.App.Env, os.Stdout)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTrace(context.Background()) }()

	loc, err := cfg.App.Location()
	if err != nil {
		return err
	}

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := config.NewRedisClient(ctx, cfg.Redis)
	if rdb == nil {
		log.Warn("redis unavailable; response cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}
	cache := middleware.NewResponseCache(cfg.Cache, rdb, log)
	limit := middleware.NewTokenBucket(cfg.RateLimit, rdb, log)

	var notifier service.Notifier
	if cfg.Rabbit.Enabled {
		notifier = queue.NewPublisher(cfg.Rabbit.URL, cfg.Rabbit.Exchange, log)
	}

	labRepo := repository.NewLabRepo(db)
	resRepo := repository.NewReservationRepo(db)

	reservations := service.NewReservationService(resRepo, notifier, log, service.ReservationOptions{
		EnforceCapacity: cfg.Reservations.EnforceCapacity,
		Location:        loc,
		ApprovalRetries: cfg.Reservations.ApprovalRetries,
		RetryBackoff:    cfg.Reservations.RetryBackoff,
		Views:           cache,
	})
	labs := service.NewLabService(labRepo, cache, log)
	timetables := service.NewTimetableService(labRepo, repository.NewTimetableRepo(db), resRepo, cache,
		log, loc, cfg.Reservations.MaxTimetableDays)
	userRepo := repository.NewUserRepo(db)
	issues := service.NewIssueService(repository.NewIssueRepo(db), labRepo, userRepo, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.AccessLog(log))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg.Auth, userRepo, repository.NewTokenRepo(db), log), cfg.Auth.JWTSecret)
	router.RegisterLabs(e, handler.NewLabHandler(labs, log), handler.NewTimetableHandler(timetables, log), cache, cfg.Auth.JWTSecret)
	router.RegisterReservations(e, handler.NewReservationHandler(reservations, log), limit, cfg.Auth.JWTSecret)
	router.RegisterIssues(e, handler.NewIssueHandler(issues, log), limit, cfg.Auth.JWTSecret)

	addr := ":" + cfg.App.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}
