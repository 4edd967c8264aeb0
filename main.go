package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"airwatch.klederson.com/internal/app"
	"airwatch.klederson.com/internal/config"
	"airwatch.klederson.com/internal/logging"
	"airwatch.klederson.com/internal/mode"
	"airwatch.klederson.com/internal/registry"
	"airwatch.klederson.com/internal/store"
	"airwatch.klederson.com/internal/ui"
)

var (
	flagConfig  string
	flagDemo    bool
	flagMonitor bool
	flagMode    string
	flagLogFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "airwatch",
		Short: "AIRWATCH - WiFi and BLE presence sensor",
		Long: `AIRWATCH passively listens to 802.11 management and data frames and BLE
advertisements, keeps bounded registries of networks, stations and
peripherals, and raises an alarm when known identities reappear.

Requires a monitor-mode WiFi interface and CAP_NET_RAW/CAP_NET_ADMIN.
Use --demo for synthetic traffic without radio hardware.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "airwatch.yaml", "Path to the configuration file")
	rootCmd.Flags().BoolVar(&flagDemo, "demo", false, "Run with synthetic traffic (no radios required)")
	rootCmd.Flags().BoolVar(&flagMonitor, "monitor", false, "Show the terminal dashboard")
	rootCmd.Flags().StringVar(&flagMode, "mode", "", "Override the start mode (off, capture, detect)")
	rootCmd.Flags().StringVar(&flagLogFile, "log-file", "airwatch.log", "Log destination while the dashboard is shown")

	dumpCmd := &cobra.Command{
		Use:   "dump [networks|stations|ble]",
		Short: "Print the persisted registries",
		Args:  cobra.MaximumNArgs(1),
		RunE:  dump,
	}
	rootCmd.AddCommand(dumpCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.File, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagMode != "" {
		m, err := mode.Parse(flagMode)
		if err != nil {
			return nil, err
		}
		cfg.Settings.Mode = m
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagMonitor && (cfg.Logging.Output == "" || cfg.Logging.Output == "stderr" || cfg.Logging.Output == "stdout") {
		cfg.Logging.Output = flagLogFile
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		s, err := app.New(app.Options{
			Config:     cfg,
			ConfigPath: flagConfig,
			Demo:       flagDemo,
			Log:        log,
		})
		if err != nil {
			if !flagDemo {
				fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
				fmt.Fprintln(os.Stderr, "Radio access requires elevated permissions.")
				fmt.Fprintln(os.Stderr, "Try one of:")
				fmt.Fprintln(os.Stderr, "  sudo ./airwatch")
				fmt.Fprintln(os.Stderr, "  sudo setcap cap_net_raw,cap_net_admin+eip ./airwatch")
				fmt.Fprintln(os.Stderr, "  ./airwatch --demo    (synthetic traffic, no hardware needed)")
			}
			return err
		}

		if flagMonitor {
			err = runMonitor(ctx, s)
		} else {
			err = s.Run(ctx)
		}
		if !errors.Is(err, app.ErrRestart) {
			return err
		}

		log.Info("restarting sensor")
		next, lerr := loadConfig()
		if lerr != nil {
			log.Warn("config reload failed, restarting with previous config", zap.Error(lerr))
			continue
		}
		next.Sensor.ID = cfg.Sensor.ID
		next.Logging = cfg.Logging
		cfg = next
	}
}

// runMonitor runs the sensor behind the dashboard. Quitting the dashboard
// stops the sensor; a sensor restart closes the dashboard so the caller can
// rebuild both.
func runMonitor(ctx context.Context, s *app.Sensor) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(
		app.NewMonitor(s),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithFPS(30),
	)

	errc := make(chan error, 1)
	go func() {
		errc <- s.Run(ctx)
		p.Quit()
	}()

	_, perr := p.Run()
	cancel()
	err := <-errc
	if err != nil {
		return err
	}
	if perr != nil && !errors.Is(perr, tea.ErrProgramKilled) {
		return perr
	}
	return nil
}

func dump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	kinds := registry.Kinds
	if len(args) == 1 {
		k, err := registry.ParseKind(args[0])
		if err != nil {
			return err
		}
		kinds = []registry.Kind{k}
	}

	db, err := store.Open(cfg.Store.Path, cfg.Store.BusyTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	set := registry.NewSet(cfg.Registry.Networks, cfg.Registry.Stations, cfg.Registry.Devices)
	if err := store.LoadAll(cmd.Context(), db, set); err != nil {
		return err
	}

	for _, k := range kinds {
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderTable(k, app.BuildRows(set, k)))
	}
	return nil
}
