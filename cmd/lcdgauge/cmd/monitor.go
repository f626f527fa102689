package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/lcdgauge/internal/bus"
	"github.com/shaunagostinho/lcdgauge/internal/telemetry"
)

var (
	monitorBus    uint8
	monitorDemo   bool
	monitorDecode bool
)

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Uint8VarP(&monitorBus, "bus", "b", 1, "bus to monitor")
	monitorCmd.Flags().BoolVar(&monitorDemo, "demo", false, "monitor a simulated vehicle")
	monitorCmd.Flags().BoolVar(&monitorDecode, "decode", false, "print telemetry decoded from each frame")
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print the frames on one bus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log := loadConfig()
		if monitorDemo {
			cfg.DemoBuses()
		}

		var bc *bus.Config
		for _, c := range cfg.BusConfigs() {
			c := c // per-iteration copy; module targets go1.21 loop semantics
			if c.ID == monitorBus {
				bc = &c
			}
		}
		if bc == nil {
			return fmt.Errorf("bus %d is not configured", monitorBus)
		}

		var sim *bus.Vehicle
		if monitorDemo {
			sim = bus.NewVehicle(demoPeriod)
		}
		b, err := bus.Open(*bc, sim, log)
		if err != nil {
			return err
		}
		if err := b.Connect(ctx); err != nil {
			return err
		}
		defer b.Close()

		color.New(color.FgCyan, color.Bold).Printf("monitoring bus %d (%s)\n", b.ID(), b.Name())
		var snap telemetry.Snapshot
		for {
			f, err := b.Read(ctx)
			switch {
			case err == nil:
			case errors.Is(err, bus.ErrNoFrame):
				continue
			case ctx.Err() != nil:
				return nil
			default:
				return err
			}
			fmt.Println(f.ColorString())
			if monitorDecode && telemetry.Decode(f, &snap) {
				color.New(color.FgGreen).Printf("  %+v\n", snap)
			}
		}
	},
}
