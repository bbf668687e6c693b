package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"tinygo.org/x/bluetooth"

	"github.com/ameet2r/workout/internal/bt"
	"github.com/ameet2r/workout/internal/cache"
	"github.com/ameet2r/workout/internal/config"
	"github.com/ameet2r/workout/internal/console"
	"github.com/ameet2r/workout/internal/go_func_utils"
	"github.com/ameet2r/workout/internal/models"
	"github.com/ameet2r/workout/internal/sensor"
	"github.com/ameet2r/workout/internal/session"
	"github.com/ameet2r/workout/internal/store"
	"github.com/ameet2r/workout/internal/timer"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open a session in the terminal console",
		Long: `Open an active session in the terminal console.

Examples:
  workout-session run --session 6f1c...
  workout-session run --session 6f1c... --sensor-mock --sensor-mock-control :8090`,
		RunE: runSession,
	}
	cmd.Flags().String("session", "", "session id to open")
	cmd.Flags().Bool("sensor-mock", false, "use simulated heart rate straps")
	cmd.Flags().String("sensor-mock-control", "", "address for the mock strap control API")
	cmd.Flags().Duration("sensor-picker-timeout", 0, "how long to scan for a heart rate monitor")
	cmd.Flags().String("sensor-address", "", "preferred heart rate monitor address")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sessionID, _ := cmd.Flags().GetString("session")

	lines := console.NewLogWriter(256)
	logger, closeLog := newLogger(cfg, lines)
	defer closeLog()
	logger.Printf("workout-session %s: opening %s against %s", Version, sessionID, cfg.Store.URL)

	localCache, err := cache.Open(cfg.Cache.Path, logger)
	if err != nil {
		return err
	}
	defer localCache.Close()

	manager := newBTManager(cfg, logger)
	defer manager.Shutdown()

	connector := sensor.NewConnector(manager, logger, sensor.Config{
		PickerTimeout:    cfg.Sensor.PickerTimeout,
		ConnectTimeout:   cfg.Sensor.ConnectTimeout,
		WatchdogTimeout:  cfg.Sensor.WatchdogTimeout,
		PreferredAddress: cfg.Sensor.PreferredAddress,
	}, sensor.Options{Addresses: localCache})
	defer connector.Shutdown()

	var view *console.View
	client := store.NewClient(cfg.Store.URL, cfg.Store.Token, cfg.Store.Timeout, logger)
	sessions := session.NewManager(client, localCache, connector, logger, session.ManagerOptions{
		NewTimer: func() session.Timer {
			return timer.New(logger, timer.Options{Signaler: timer.SignalerFunc(func(run models.TimerRun) error {
				return view.Signal(run)
			})})
		},
	})

	model := console.NewModel(connector, logger, lines.Lines(), 250*time.Millisecond)
	defer model.Shutdown()
	controller := console.NewController(model, sessions, connector, logger, sessionID)
	defer controller.Shutdown()

	view, err = console.NewView(model, controller, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go_func_utils.SafeGo(logger, func() {
		<-ctx.Done()
		model.RequestCloseApplication()
	})

	openCtx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
	err = controller.Open(openCtx)
	cancel()
	if err != nil {
		view.Shutdown()
		return fmt.Errorf("opening session %s: %w", sessionID, err)
	}

	err = view.Run()
	view.Shutdown()
	return err
}

func newBTManager(cfg *config.Config, logger *log.Logger) bt.BTManagerInterface {
	if cfg.Sensor.Mock {
		return bt.NewMockBTManager(logger, bt.MockBTManagerConfig{
			NotifyPeriod: time.Second,
			ControlAddr:  cfg.Sensor.MockControl,
		})
	}
	return bt.NewBTManager(bluetooth.DefaultAdapter, logger, cfg.Sensor.PickerTimeout)
}
