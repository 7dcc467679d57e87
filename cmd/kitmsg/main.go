package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"kitmsg/internal/bus"
	"kitmsg/internal/channel"
	"kitmsg/internal/config"
	"kitmsg/internal/manager"
	"kitmsg/internal/message"
	"kitmsg/internal/metrics"
	"kitmsg/internal/registry"
	"kitmsg/internal/store"
	"kitmsg/internal/timeline"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "kitmsg",
		Short: "kitmsg: message routing between web clients and a host application",
		Long:  "kitmsg routes custom messages from web clients to typed handlers and publishes their responses back.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.kitmsg/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(configCmd())
	root.AddCommand(paramsCmd())
	root.AddCommand(idsCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(daemonCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadOrDefaults loads the config file, falling back to defaults when it is
// missing so commands work before `kitmsg init`.
func loadOrDefaults() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not loaded, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
		cfg.Store.DBPath = config.ExpandPath(cfg.Store.DBPath)
	}
	return cfg
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			dataDir := filepath.Dir(config.ExpandPath(cfg.Store.DBPath))
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "data", dataDir)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	return cmd
}

// newLogger builds the process logger from the general config section.
// The returned closer releases the log file, if any.
func newLogger(cfg config.GeneralConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = f
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the message router (websocket bridge + dispatch loop)",
		Long:  "Starts the bus, the custom message manager and every enabled channel. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, logCloser, err := newLogger(cfg.General)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params, err := store.Open(cfg.Store.Driver, cfg.Store.DBPath, logger)
	if err != nil {
		return fmt.Errorf("parameter store: %w", err)
	}
	defer params.Close()

	var recorder metrics.Recorder = metrics.Noop{}
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		recorder = collector
	}

	eventBus := bus.NewBus(bus.Options{
		Registry:   registry.New(logger),
		Metrics:    recorder,
		Logger:     logger,
		MaxHistory: cfg.Bus.HistorySize,
	})
	defer eventBus.Close()

	tl, err := timeline.NewSimulated(cfg.Timeline.StartSeconds, cfg.Timeline.EndSeconds)
	if err != nil {
		return fmt.Errorf("timeline: %w", err)
	}

	mgr, err := manager.New(manager.Config{
		Transport: eventBus,
		Timeline:  tl,
		Store:     params,
		Metrics:   recorder,
		Logger:    logger,
		Version:   cfg.General.AppVersion,
	})
	if err != nil {
		return err
	}
	if err := mgr.Initialize(); err != nil {
		return err
	}

	queue := bus.NewQueue(eventBus, cfg.Bus.QueueSize,
		time.Duration(cfg.Bus.EnqueueTimeoutSeconds)*time.Second, logger)
	dispatchDone := startDispatch(ctx, queue)

	done := make(chan struct{}, 2)
	running := 0

	if cfg.Bridge.Enabled {
		wsCfg := channel.WSConfig{
			Host:           cfg.Bridge.Host,
			Port:           cfg.Bridge.Port,
			Path:           cfg.Bridge.Path,
			AllowedOrigins: cfg.Bridge.AllowedOrigins,
			Queue:          queue,
			Outbound:       eventBus,
			History:        eventBus,
			Logger:         logger.With("channel", "websocket"),
		}
		if collector != nil {
			wsCfg.Metrics = collector.Handler()
		}
		bridge := channel.NewWebSocketBridge(wsCfg)
		running++
		go func() {
			defer func() { done <- struct{}{} }()
			if err := bridge.Start(ctx); err != nil {
				logger.Error("websocket bridge error", "err", err)
			}
		}()
	} else {
		logger.Info("websocket bridge disabled")
	}

	if cfg.NATS.Enabled {
		relay := channel.NewNATSRelay(channel.NATSConfig{
			URL:      cfg.NATS.URL,
			Prefix:   cfg.NATS.Prefix,
			Token:    cfg.NATS.Token,
			Inbound:  message.InboundTypes(),
			Queue:    queue,
			Outbound: eventBus,
			Logger:   logger.With("channel", "nats"),
		})
		running++
		go func() {
			defer func() { done <- struct{}{} }()
			if err := relay.Start(ctx); err != nil {
				logger.Error("nats relay error", "err", err)
			}
		}()
	}

	logger.Info("kitmsg started. Press Ctrl+C to stop.",
		"version", version,
		"subscriptions", mgr.Subscriptions(),
		"store", cfg.Store.Driver,
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()
	for ; running > 0; running-- {
		select {
		case <-done:
		case <-timer.C:
			logger.Warn("shutdown timed out, forcing exit")
			return fmt.Errorf("shutdown timed out")
		}
	}

	// Handlers are only revoked once no dispatch is in flight.
	select {
	case <-dispatchDone:
	case <-timer.C:
		logger.Warn("dispatch loop did not stop, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}

	queue.Close()
	if err := mgr.Shutdown(); err != nil {
		logger.Warn("unsubscribe errors during shutdown", "err", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// startDispatch runs the queue's dispatch loop in the background. The
// returned channel is closed once the loop has returned, which is after any
// in-flight delivery completes.
func startDispatch(ctx context.Context, queue *bus.Queue) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := queue.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("dispatch loop stopped", "err", err)
		}
	}()
	return done
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. bridge.port)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. store.driver memory)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func paramsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Inspect parameters stored by setParameter",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openSQLite()
			if err != nil {
				return err
			}
			defer db.Close()

			list, err := db.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No parameters stored.")
				return nil
			}
			for _, p := range list {
				fmt.Printf("%-30s %-20s %s\n", store.KeyPrefix+p.Name, formatValue(p.Value), humanize.Time(p.UpdatedAt))
			}
			return nil
		},
	})

	var limit int
	history := &cobra.Command{
		Use:   "history [name]",
		Short: "Show recorded values for one parameter, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openSQLite()
			if err != nil {
				return err
			}
			defer db.Close()

			list, err := db.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, p := range list {
				fmt.Printf("%s  %s\n", p.UpdatedAt.Format(time.RFC3339), formatValue(p.Value))
			}
			return nil
		},
	}
	history.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries")
	cmd.AddCommand(history)

	return cmd
}

// openSQLite opens the configured parameter database. Inspection only
// makes sense for the sqlite driver.
func openSQLite() (*store.SQLite, error) {
	cfg := loadOrDefaults()
	if cfg.Store.Driver != "sqlite" {
		return nil, fmt.Errorf("store driver is %q; parameters are only persisted with sqlite", cfg.Store.Driver)
	}
	silent := slog.New(slog.NewTextHandler(io.Discard, nil))
	return store.NewSQLite(cfg.Store.DBPath, silent)
}

func formatValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func idsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ids",
		Short: "Print the event identifier of every message name",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("inbound:")
			for _, name := range message.InboundTypes() {
				fmt.Printf("  %-28s %#016x\n", name, uint64(registry.IDFor(name)))
			}
			fmt.Println("outbound:")
			for _, name := range message.OutboundTypes() {
				fmt.Printf("  %-28s %#016x\n", name, uint64(registry.IDFor(name)))
			}
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the kitmsg version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kitmsg %s\n", version)
		},
	}
}
