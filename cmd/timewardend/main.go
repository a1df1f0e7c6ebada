package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/pflag"

	"github.com/SoarinFerret/TimeWarden/internal/actuator"
	"github.com/SoarinFerret/TimeWarden/internal/auth"
	"github.com/SoarinFerret/TimeWarden/internal/clock"
	"github.com/SoarinFerret/TimeWarden/internal/config"
	"github.com/SoarinFerret/TimeWarden/internal/db"
	"github.com/SoarinFerret/TimeWarden/internal/heartbeat"
	"github.com/SoarinFerret/TimeWarden/internal/ipc"
	"github.com/SoarinFerret/TimeWarden/internal/loginctl"
	"github.com/SoarinFerret/TimeWarden/internal/seal"
	"github.com/SoarinFerret/TimeWarden/internal/state"
	"github.com/SoarinFerret/TimeWarden/internal/store"
	"github.com/SoarinFerret/TimeWarden/internal/store/sqlite"
)

const appName = "TimeWarden"

func main() {
	var (
		configPath string
		verbose    bool
	)
	pflag.StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the configuration file")
	pflag.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pflag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(configPath, logger); err != nil {
		logger.Error("timewardend failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	logger.Info("Using config file", "path", configPath)
	cfg, err := config.LoadConfigFromFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	profiles, err := cfg.ProfileList()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sealer, err := seal.LoadOrCreate(cfg.Daemon.KeyFile)
	if err != nil {
		return fmt.Errorf("load store key: %w", err)
	}
	conn, err := db.Open(ctx, cfg.Daemon.Database)
	if err != nil {
		return err
	}
	defer conn.Close()
	dbWriter := db.NewWorker(conn)
	defer dbWriter.Close()

	clk := clock.Real()
	st := sqlite.New(conn, dbWriter, sealer)
	writer := store.NewWriter(st, clk, logger.With("component", "store"))

	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer bus.Close()

	lockScreen := cfg.Daemon.LockScreen == nil || *cfg.Daemon.LockScreen
	act := actuator.New(
		actuator.NewLogind(bus),
		actuator.NewDesktop(bus, appName),
		ipc.NewEmitter(bus),
		writer,
		logger.With("component", "actuator"),
		lockScreen,
	)
	authenticator := auth.NewAuthenticator(cfg.Admins, clk, cfg.Daemon.OverrideAttemptsPerMin, auth.DefaultBurst)

	mgr := state.New(state.Options{
		Store:        st,
		Persister:    writer,
		Actuator:     act,
		Auth:         authenticator,
		Tracker:      heartbeat.NewTracker(cfg.Daemon.HeartbeatTimeout.D()),
		Clock:        clk,
		Logger:       logger.With("component", "state"),
		Policy:       cfg.Policy(),
		TickInterval: cfg.Daemon.TickInterval.D(),
		MaxOverride:  cfg.Daemon.MaxOverride.D(),
		BootID:       clock.BootID(),
	})
	if err := mgr.SyncProfiles(ctx, profiles); err != nil {
		logger.Warn("Some profiles could not be loaded", "error", err)
	}

	if err := ipc.Serve(bus, ipc.NewEngine(mgr, logger.With("component", "ipc"))); err != nil {
		return err
	}
	logger.Info("D-Bus service ready", "name", ipc.ServiceName)

	// The writer outlives the manager so that the last snapshots and audit
	// events are flushed.
	writerCtx, stopWriter := context.WithCancel(context.Background())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writer.Run(writerCtx)
	}()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Monitoring dbus for session changes...")
		if err := loginctl.Watch(ctx, mgr, logger.With("component", "loginctl")); err != nil {
			logger.Error("logind watcher error", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		reload(ctx, configPath, mgr, authenticator, logger)
	}()

	if err := mgr.Run(ctx); err != nil {
		logger.Error("enforcement loop error", "error", err)
	}
	cancel()
	wg.Wait()

	stopWriter()
	select {
	case <-writerDone:
	case <-time.After(10 * time.Second):
		logger.Warn("Timed out flushing store", "pending", writer.Pending())
	}
	logger.Info("Shutdown complete")
	return nil
}

// reload re-reads profiles and admins on SIGHUP. Daemon settings need a
// restart.
func reload(ctx context.Context, path string, mgr *state.Manager, a *auth.Authenticator, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}
		cfg, err := config.LoadConfigFromFile(path)
		if err != nil {
			logger.Error("Reload failed, keeping current configuration", "error", err)
			continue
		}
		profiles, err := cfg.ProfileList()
		if err != nil {
			logger.Error("Reload failed, keeping current configuration", "error", err)
			continue
		}
		a.SetAdmins(cfg.Admins)
		if err := mgr.SyncProfiles(ctx, profiles); err != nil {
			logger.Warn("Some profiles could not be reloaded", "error", err)
		}
		logger.Info("Configuration reloaded", "profiles", len(profiles))
	}
}
