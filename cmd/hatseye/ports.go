package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hatseye/hatseye/pkg/telemetry"
)

func portsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports in discovery order",
		Long:  "Lists serial ports in the order automatic discovery probes them. Ports marked * look like a microcontroller bridge.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := telemetry.SerialLister()
			if err != nil {
				return fmt.Errorf("list ports: %w", err)
			}
			return printPorts(cmd.OutOrStdout(), telemetry.OrderCandidates(ports))
		},
	}
}

func printPorts(w io.Writer, ports []telemetry.PortInfo) error {
	if len(ports) == 0 {
		_, err := fmt.Fprintln(w, "No serial ports found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tPORT\tVID:PID\tPRODUCT")
	for _, p := range ports {
		mark := ""
		if telemetry.LooksLikeMicrocontroller(p) {
			mark = "*"
		}
		id := ""
		if p.IsUSB {
			id = p.VID + ":" + p.PID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, p.Name, id, p.Product)
	}
	return tw.Flush()
}
