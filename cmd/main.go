package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hunter-volkman/image-emailer/internal/api"
	"github.com/hunter-volkman/image-emailer/internal/bucket"
	"github.com/hunter-volkman/image-emailer/internal/camera"
	"github.com/hunter-volkman/image-emailer/internal/clock"
	"github.com/hunter-volkman/image-emailer/internal/command"
	"github.com/hunter-volkman/image-emailer/internal/config"
	"github.com/hunter-volkman/image-emailer/internal/database"
	"github.com/hunter-volkman/image-emailer/internal/imaging"
	"github.com/hunter-volkman/image-emailer/internal/lock"
	"github.com/hunter-volkman/image-emailer/internal/logging"
	"github.com/hunter-volkman/image-emailer/internal/mailer"
	"github.com/hunter-volkman/image-emailer/internal/notify"
	"github.com/hunter-volkman/image-emailer/internal/report"
	"github.com/hunter-volkman/image-emailer/internal/scheduler"
	"github.com/hunter-volkman/image-emailer/internal/state"
	"github.com/hunter-volkman/image-emailer/internal/storage"
)

// lockStaleAfter is how long a waiter tolerates a held action lock before
// warning about the slow holder.
const lockStaleAfter = 5 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	clk, err := clock.New(cfg.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid reporting timezone")
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close(db)

	store, err := storage.New(cfg.Storage.BaseDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare image storage")
	}

	repo := bucket.NewRepository(db)

	stateStore := state.NewStore(store.StatePath(), clk.Location())
	if err := stateStore.Load(); err != nil {
		logger.Fatal().Err(err).Msg("failed to load scheduler state")
	}

	actionLock := lock.New(store.LockPath(), lockStaleAfter, logger)

	cam := camera.NewHTTPCamera(cfg.Camera.URL, time.Duration(cfg.Camera.TimeoutSeconds)*time.Second)
	proc := imaging.NewProcessor(imaging.CropRegion{
		Top:    cfg.Crop.Top,
		Left:   cfg.Crop.Left,
		Width:  cfg.Crop.Width,
		Height: cfg.Crop.Height,
	})
	smtp := mailer.NewSMTPMailer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.From,
		cfg.SMTP.Password,
		time.Duration(cfg.SMTP.TimeoutSeconds)*time.Second,
	)

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Alert.Slack.Token != "" {
		notifier = notify.NewSlackNotifier(cfg.Alert.Slack.Token, cfg.Alert.Slack.Channel)
	}

	reports := report.NewBuilder(repo, store, cfg.Report.Recipients, cfg.Report.Location, cfg.Report.Animated, logger)

	sched := scheduler.New(scheduler.Deps{
		Config:   cfg,
		Clock:    clk,
		State:    stateStore,
		Bucket:   repo,
		Lock:     actionLock,
		Store:    store,
		Camera:   cam,
		Proc:     proc,
		Reports:  reports,
		Mailer:   smtp,
		Notifier: notifier,
		Log:      logger,
	})

	ctx := context.Background()
	if err := sched.Startup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("startup reconciliation failed")
	}

	// Initial tick catches up anything that came due while the process was
	// down; afterwards cron wakes the scheduler at every minute boundary.
	sched.Tick(ctx)

	runner := cron.New(cron.WithLocation(clk.Location()))
	if _, err := runner.AddFunc("* * * * *", func() {
		sched.Tick(context.Background())
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule tick")
	}
	runner.Start()

	handler := command.NewHandler(clk, stateStore, repo, actionLock, reports, smtp, cfg.Report.Recipients, logger)
	server := api.NewServer(handler, stateStore, cfg.Server.Secret)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil {
			logger.Fatal().Err(err).Msg("command API server stopped")
		}
	}()

	logger.Info().
		Int("port", cfg.Server.Port).
		Str("timezone", clk.Location().String()).
		Msg("image-emailer daemon started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	<-runner.Stop().Done()
}
