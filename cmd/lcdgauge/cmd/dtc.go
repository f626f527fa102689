package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaunagostinho/lcdgauge/internal/dtc"
)

func init() {
	rootCmd.AddCommand(dtcCmd)
}

var dtcCmd = &cobra.Command{
	Use:     "dtc <byte1> <byte2>",
	Short:   "Decode a raw trouble-code pair",
	Example: "  lcdgauge dtc 01 33",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw [2]byte
		for i, a := range args {
			v, err := strconv.ParseUint(a, 16, 8)
			if err != nil {
				return fmt.Errorf("byte %d: %w", i+1, err)
			}
			raw[i] = byte(v)
		}
		code, ok := dtc.Decode(raw[0], raw[1])
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "no code")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), code)
		return nil
	},
}
