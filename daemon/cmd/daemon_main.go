// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package cmd wires lispd's cobra command and viper configuration, the same
// InitGlobalFlags(logger, cmd, vp)-shaped bootstrap daemon_main.go has always
// used, scaled down to lispd's much smaller configuration surface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lispmob/lispd/pkg/config"
	"github.com/lispmob/lispd/pkg/daemon"
	"github.com/lispmob/lispd/pkg/logfields"
)

const (
	// fatalSleep is the duration lispd sleeps before exiting after a fatal
	// startup error, giving the last log line time to reach its sink before
	// the process (and, under a supervisor, its restart backoff) takes over.
	fatalSleep = 2 * time.Second

	defaultStatusSocket = "/var/run/lispd.sock"
)

var bootstrapTimestamp = time.Now()

// InitGlobalFlags registers every lispd flag against cmd and binds it into
// vp, so flags and a config file both resolve through the same viper.Viper
// before config.Load unmarshals it. Environment variables are not bound.
func InitGlobalFlags(logger *slog.Logger, cmd *cobra.Command, vp *viper.Viper) {
	flags := cmd.Flags()

	flags.String("config-file", "", "Path to lispd's YAML configuration file")
	flags.String("device-mode", "xtr", "Device personality (xtr, mn, ms, rtr)")
	flags.StringSlice("eid-prefixes", nil, "EID prefixes this device is authoritative for")
	flags.StringSlice("map-resolvers", nil, "Map-resolver addresses to query")
	flags.StringSlice("rtrs", nil, "Re-encapsulating tunnel router addresses")
	flags.StringSlice("interfaces", nil, "Network interfaces list (stored in the config; link and address changes are watched on every interface)")
	flags.Int("debug-level", 0, "Debug verbosity (0 disables debug logging)")
	flags.String("log-file", "", "Path to write logs to (default stderr)")
	flags.Int("mtu", 1500, "Maximum transmission unit for encapsulated control traffic")
	flags.String("pid-file", "/var/run/lispd.pid", "Path to lispd's PID file")
	flags.String("status-socket", defaultStatusSocket, "Unix-domain socket path for the diagnostics server")

	for _, name := range []string{
		"config-file", "device-mode", "eid-prefixes", "map-resolvers", "rtrs",
		"interfaces", "debug-level", "log-file", "mtu", "pid-file", "status-socket",
	} {
		if err := vp.BindPFlag(name, flags.Lookup(name)); err != nil {
			fatal(logger, "BindPFlag failed", logfields.Error, err)
		}
	}
}

// NewDaemonCommand builds the lispd root command: parse flags/config, start
// the daemon, and block until an interrupt or terminate signal arrives.
func NewDaemonCommand(logger *slog.Logger) *cobra.Command {
	vp := viper.New()

	cmd := &cobra.Command{
		Use:   "lispd",
		Short: "LISP control-plane daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), logger, vp)
		},
	}

	InitGlobalFlags(logger, cmd, vp)
	return cmd
}

func runDaemon(ctx context.Context, logger *slog.Logger, vp *viper.Viper) error {
	if cfgFile := vp.GetString("config-file"); cfgFile != "" {
		vp.SetConfigFile(cfgFile)
		if err := vp.ReadInConfig(); err != nil {
			return fmt.Errorf("cmd: reading config file %s: %w", cfgFile, err)
		}
		logger.Info("loaded configuration file", logfields.ConfigFile, cfgFile)
	}

	cfg, err := config.Load(vp)
	if err != nil {
		return fmt.Errorf("cmd: %w", err)
	}

	level := slog.LevelInfo
	if cfg.DebugLevel > 0 {
		level = slog.LevelDebug
	}
	logOut := os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("cmd: opening log file %s: %w", cfg.LogFile, err)
		}
		defer f.Close()
		logOut = f
	}
	logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	if err := writePIDFile(cfg.PIDFile); err != nil {
		return fmt.Errorf("cmd: %w", err)
	}
	defer os.Remove(cfg.PIDFile)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("cmd: constructing daemon: %w", err)
	}
	d.RegisterMetrics(prometheus.DefaultRegisterer)

	statusSocket := vp.GetString("status-socket")
	if statusSocket == "" {
		statusSocket = defaultStatusSocket
	}
	if err := d.ServeStatus(statusSocket); err != nil {
		return fmt.Errorf("cmd: starting status socket: %w", err)
	}

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := d.Start(runCtx); err != nil {
		return fmt.Errorf("cmd: starting daemon: %w", err)
	}
	logger.Info("lispd started",
		logfields.DeviceMode, cfg.Mode.String(),
		"bootstrapDuration", time.Since(bootstrapTimestamp).String(),
	)

	<-runCtx.Done()
	logger.Info("shutting down")
	d.Stop()
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

// fatal logs at error level and exits after fatalSleep, so a supervisor's
// restart backoff doesn't race the final log line reaching its sink.
func fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	time.Sleep(fatalSleep)
	os.Exit(1)
}
