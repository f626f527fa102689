package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaunagostinho/lcdgauge/internal/bridge"
	"github.com/shaunagostinho/lcdgauge/internal/bus"
	"github.com/shaunagostinho/lcdgauge/internal/can"
	"github.com/shaunagostinho/lcdgauge/internal/display"
	"github.com/shaunagostinho/lcdgauge/internal/lcd"
	"github.com/shaunagostinho/lcdgauge/internal/logger"
	"github.com/shaunagostinho/lcdgauge/internal/server"
	"github.com/shaunagostinho/lcdgauge/web"
)

// demoPeriod is the step of the simulated vehicle.
const demoPeriod = 50 * time.Millisecond

var (
	runDemo   bool
	runListen string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runDemo, "demo", false, "run against a simulated vehicle")
	runCmd.Flags().StringVar(&runListen, "listen", "", "override listen address (e.g. :8080)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Take over the LCD and serve the web view",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := loadConfig()
		if runDemo {
			cfg.DemoBuses()
		}
		if runListen != "" {
			cfg.Server.ListenAddr = runListen
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		var sim *bus.Vehicle
		if runDemo {
			sim = bus.NewVehicle(demoPeriod)
			log.Info("demo mode, simulated vehicle")
		}
		cfgs := cfg.BusConfigs()
		buses := make([]bus.Bus, 0, len(cfgs))
		for _, bc := range cfgs {
			b, err := bus.Open(bc, sim, log)
			if err != nil {
				return fmt.Errorf("open bus %d: %w", bc.ID, err)
			}
			buses = append(buses, b)
		}

		q := can.NewFIFO(cfg.LCD.QueueSize)
		clock := display.NewSystemClock()
		ctrl := lcd.New(cfg.Options(), q, clock, log)
		br := bridge.New(ctrl, q, clock, buses, cfgs, bridge.DefaultOptions(), log)

		rec := logger.New(cfg.TelemetryLog, log)
		defer rec.Close()
		br.SetRecorder(rec)

		srv := server.New(cfg, br, rec, web.FS, log)
		br.Subscribe(srv.Publish)

		errg, ctx := errgroup.WithContext(cmd.Context())
		errg.Go(func() error { return br.Run(ctx) })
		errg.Go(func() error { return srv.Run(ctx, cfg.Server.ListenAddr) })
		return errg.Wait()
	},
}
