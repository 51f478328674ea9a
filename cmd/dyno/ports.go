package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/dyno_computer/internal/config"
	"github.com/relabs-tech/dyno_computer/internal/sensors"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and the one auto-detection would pick",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		ports, err := sensors.DefaultPortScanner.List()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(ports) == 0 {
			fmt.Fprintln(out, "no serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintf(out, "  %s\n", p)
		}

		if pick, ok := sensors.PickRollerPort(ports, cfg.PortKeywords, cfg.PortVIDs); ok {
			fmt.Fprintf(out, "roller port: %s\n", pick)
		} else {
			fmt.Fprintln(out, "roller port: none matched")
		}
		return nil
	},
}
