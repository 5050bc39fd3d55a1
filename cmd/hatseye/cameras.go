package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hatseye/hatseye/pkg/camera"
)

func camerasCommand(global *globalOptions) *cobra.Command {
	var probe int
	cmd := &cobra.Command{
		Use:   "cameras",
		Short: "Probe capture device indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if probe <= 0 {
				cfg, err := loadConfig(global)
				if err != nil {
					return err
				}
				probe = cfg.Camera.MaxProbe
			}
			return printCameras(cmd.OutOrStdout(), camera.List(probe), probe)
		},
	}
	cmd.Flags().IntVar(&probe, "max", 0, "Number of indexes to probe (default camera.maxprobe)")
	return cmd
}

func printCameras(w io.Writer, found []int, probed int) error {
	if len(found) == 0 {
		_, err := fmt.Fprintf(w, "No cameras found in indexes 0-%d\n", probed-1)
		return err
	}
	for _, idx := range found {
		if _, err := fmt.Fprintf(w, "camera %d\n", idx); err != nil {
			return err
		}
	}
	return nil
}
