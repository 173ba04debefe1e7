package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/warden/internal/config"
	"github.com/zjrosen/warden/internal/engine"
	"github.com/zjrosen/warden/internal/infrastructure/sqlite"
	"github.com/zjrosen/warden/internal/launch"
	"github.com/zjrosen/warden/internal/log"
	"github.com/zjrosen/warden/internal/tracing"
	"github.com/zjrosen/warden/internal/transport"
	"github.com/zjrosen/warden/internal/watcher"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the warden daemon",
	Long: `Run the orchestration daemon. It opens the warden database, restores
the fleet's runtime state, and supervises profiles until stopped.

Example:
  warden daemon                  # Use the configured database
  warden daemon --db fleet.db    # Override the database path`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(_ *cobra.Command, _ []string) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logPath := cfg.LogPath
	if logPath == "" {
		logPath = "warden.log"
	}
	cleanup, err := log.Init(logPath)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer cleanup()
	if !debugFlag {
		log.SetMinLevel(log.LevelInfo)
	}

	log.Info(log.CatConfig, "warden daemon starting", "version", version)

	tracingCfg := cfg.Tracing
	if tracingCfg.FilePath == "" {
		tracingCfg.FilePath = config.DefaultTracesFilePath()
	}
	provider, err := tracing.NewProvider(tracing.Config{
		Enabled:      tracingCfg.Enabled,
		Exporter:     tracingCfg.Exporter,
		FilePath:     tracingCfg.FilePath,
		OTLPEndpoint: tracingCfg.OTLPEndpoint,
		SampleRate:   tracingCfg.SampleRate,
		ServiceName:  "warden",
	})
	if err != nil {
		return fmt.Errorf("creating trace provider: %w", err)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}
	if dbPath == "" {
		return fmt.Errorf("no database path: set db_path or WARDEN_DB_PATH")
	}
	db, err := sqlite.NewDB(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	// The dispatcher feeds the engine, the launcher pushes child output
	// into the dispatcher, and the engine owns the launcher. The closure
	// breaks the cycle; eng is assigned before Start lets a frame through.
	var eng *engine.Engine
	dispatcher := transport.NewDispatcher(transport.HandlerFunc(func(ctx context.Context, frame transport.Frame) {
		eng.HandleFrame(ctx, frame)
	}))
	launcher := launch.WithDefaults(launch.NewExecLauncher(dispatcher), launch.HostDefaults{
		Executable: cfg.Launcher.Executable,
		Args:       cfg.Launcher.Args,
		GamePath:   cfg.Launcher.GamePath,
	})

	eng, err = engine.NewEngine(engine.Config{
		Profiles:  db.ProfileRepository(),
		KeyPools:  db.KeyPoolRepository(),
		Schedules: db.ScheduleRepository(),
		Settings:  db.SettingsRepository(),
		Launcher:  launcher,
		Tracer:    provider.Tracer(),
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher.Start(ctx)
	eng.Run(ctx)

	var watchers []*watcher.Watcher
	if cfg.AutoRefresh {
		watchers = startWatchers(ctx, eng, dbPath)
	}
	defer func() {
		for _, w := range watchers {
			_ = w.Stop()
		}
	}()

	if settings, err := eng.Settings(); err == nil && settings.AutoStart {
		log.SafeGo("auto-start", func() {
			if err := eng.StartAll(ctx); err != nil {
				log.ErrorErr(log.CatEngine, "auto-start failed", err)
			}
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("warden daemon running (db: %s)\n", dbPath)
	fmt.Println("Press Ctrl+C to stop")

	sig := <-sigCh
	fmt.Printf("\nReceived %s, shutting down...\n", sig)
	log.Info(log.CatEngine, "shutdown signal received", "signal", sig.String())

	timeout := time.Duration(cfg.Daemon.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	// Cancel first so the scheduler cannot relaunch profiles mid-stop.
	cancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.ErrorErr(log.CatEngine, "error stopping profiles", err)
	}
	dispatcher.Stop()
	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.ErrorErr(log.CatConfig, "error flushing traces", err)
	}

	fmt.Println("Daemon stopped")
	return nil
}

// startWatchers wires external-change detection: edits to the database
// or the loaded config file republish fresh snapshots to subscribers.
func startWatchers(ctx context.Context, eng *engine.Engine, dbPath string) []*watcher.Watcher {
	var watchers []*watcher.Watcher

	watch := func(path, kind string) {
		w, err := watcher.New(watcher.DefaultConfig(path))
		if err != nil {
			log.ErrorErr(log.CatWatcher, "watcher setup failed", err, "path", path)
			return
		}
		changes, err := w.Start()
		if err != nil {
			log.ErrorErr(log.CatWatcher, "watcher start failed", err, "path", path)
			return
		}
		watchers = append(watchers, w)
		log.SafeGo("watch-"+kind, func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-changes:
					if err := eng.Reload(ctx, kind); err != nil {
						log.ErrorErr(log.CatWatcher, "reload failed", err, "kind", kind)
					}
				}
			}
		})
	}

	watch(dbPath, "database")
	if path := viper.ConfigFileUsed(); path != "" {
		watch(path, "config")
	}
	return watchers
}
