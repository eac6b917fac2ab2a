// Package app wires the CarePing modules together: store, channels,
// check-in engine, delivery orchestrator, inbound router, scheduler, and
// the admin API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karunahq/CarePing/internal/api"
	"github.com/karunahq/CarePing/internal/channel"
	"github.com/karunahq/CarePing/internal/checkin"
	"github.com/karunahq/CarePing/internal/content"
	"github.com/karunahq/CarePing/internal/delivery"
	"github.com/karunahq/CarePing/internal/email"
	"github.com/karunahq/CarePing/internal/models"
	"github.com/karunahq/CarePing/internal/router"
	"github.com/karunahq/CarePing/internal/scheduler"
	"github.com/karunahq/CarePing/internal/sms"
	"github.com/karunahq/CarePing/internal/store"
	"github.com/karunahq/CarePing/internal/telegram"
	"github.com/karunahq/CarePing/internal/whatsapp"
)

// Maintenance schedules
const (
	// rescheduleCron runs the daily scheduling pass at midnight local time.
	rescheduleCron = "0 0 * * *"
	// sweepCron runs the stale check-in sweep every 30 minutes.
	sweepCron = "*/30 * * * *"
	// checkInMaxIdle is how long a check-in conversation may sit idle
	// before the sweep expires it.
	checkInMaxIdle = 30 * time.Minute
)

// Config selects which modules to bring up and with what options.
type Config struct {
	StoreOpts []store.Option
	APIOpts   []api.Option

	DeliveryConfig delivery.Config
	ChannelConfigs []models.ChannelConfig
	SchedulerOpts  []scheduler.Option

	WhatsAppEnabled bool
	WhatsAppOpts    []whatsapp.Option

	TelegramEnabled bool
	TelegramOpts    []telegram.Option

	SMSEnabled bool
	SMSOpts    []sms.Option

	EmailEnabled bool
	EmailOpts    []email.Option
}

// Run wires everything together and blocks until SIGINT or SIGTERM.
func Run(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(cfg.StoreOpts)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	registry := channel.NewRegistry()
	if cfg.WhatsAppEnabled {
		if err := registry.Register(whatsapp.New(cfg.WhatsAppOpts...)); err != nil {
			return err
		}
	}
	if cfg.TelegramEnabled {
		if err := registry.Register(telegram.New(cfg.TelegramOpts...)); err != nil {
			return err
		}
	}
	if cfg.SMSEnabled {
		if err := registry.Register(sms.New(cfg.SMSOpts...)); err != nil {
			return err
		}
	}
	if cfg.EmailEnabled {
		if err := registry.Register(email.New(cfg.EmailOpts...)); err != nil {
			return err
		}
	}
	if registry.Len() == 0 {
		return fmt.Errorf("no channels enabled; enable at least one of whatsapp, telegram, sms, email")
	}

	engine := checkin.NewEngine(st)
	provider := content.NewStaticProvider()
	orch := delivery.New(cfg.DeliveryConfig, registry, st, provider, engine)
	for _, tuning := range cfg.ChannelConfigs {
		orch.SetChannelConfig(tuning)
	}
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start delivery orchestrator: %w", err)
	}
	defer orch.Stop()

	rt := router.New(registry, st, engine, orch)
	rt.Start(ctx)
	defer rt.Stop()

	sched := scheduler.New(st, orch, cfg.SchedulerOpts...)
	sched.Start(ctx)
	defer sched.Stop()

	if err := sched.ScheduleAll(); err != nil {
		slog.Warn("Initial scheduling pass failed", "error", err)
	}

	cron := scheduler.NewCron()
	defer cron.Stop()
	if err := cron.AddJob(rescheduleCron, func() {
		if err := sched.ScheduleAll(); err != nil {
			slog.Error("Daily scheduling pass failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to register reschedule cron: %w", err)
	}
	if err := cron.AddJob(sweepCron, func() {
		if n := engine.ExpireInactive(checkInMaxIdle); n > 0 {
			slog.Info("Expired stale check-in conversations", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("failed to register sweep cron: %w", err)
	}

	server := api.NewServer(orch, sched, cfg.APIOpts...)
	server.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			slog.Warn("Admin API shutdown failed", "error", err)
		}
	}()

	slog.Info("CarePing running", "channels", registry.Names())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Shutting down on signal", "signal", sig.String())
	cancel()
	return nil
}

// openStore builds the store implementation matching the configured DSN.
func openStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		return store.NewPostgresStore(opts...)
	}
	return store.NewSQLiteStore(opts...)
}
