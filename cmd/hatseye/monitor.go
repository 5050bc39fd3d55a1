package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hatseye/hatseye/internal/httpc"
	"github.com/hatseye/hatseye/pkg/telemetry"
)

type monitorOptions struct {
	url      string
	serial   bool
	interval time.Duration
}

func monitorCommand(global *globalOptions) *cobra.Command {
	opts := monitorOptions{}
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print live motor intensities and distances",
		Long:  "Continuously prints motor intensities from the hat, either through a running server's API or straight from the serial port.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			if opts.url == "" {
				opts.url = telemetryURL(cfg.Web.Addr)
			}

			var poll func(ctx context.Context) (telemetry.Snapshot, error)
			if opts.serial {
				tc := telemetry.DefaultConfig()
				tc.Port = cfg.Telemetry.Port
				tc.Baud = cfg.Telemetry.Baud
				tc.Sensors = cfg.Telemetry.Sensors
				tc.MaxIntensity = cfg.Telemetry.MaxIntensity
				r, err := telemetry.Open(cmd.Context(), tc)
				if err != nil {
					return fmt.Errorf("open serial: %w", err)
				}
				defer r.Close()
				go r.Run(cmd.Context())
				poll = func(context.Context) (telemetry.Snapshot, error) { return r.Poll() }
			} else {
				poll = func(ctx context.Context) (telemetry.Snapshot, error) { return fetchSnapshot(ctx, opts.url) }
			}
			return runMonitor(cmd.Context(), cmd.OutOrStdout(), opts.interval, poll)
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "", "Telemetry endpoint (default derived from web.addr)")
	cmd.Flags().BoolVar(&opts.serial, "serial", false, "Read the serial port directly instead of the API")
	cmd.Flags().DurationVar(&opts.interval, "interval", 100*time.Millisecond, "Refresh interval")
	return cmd
}

// telemetryURL points at the local server's telemetry endpoint.
func telemetryURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/api/telemetry"
}

func fetchSnapshot(ctx context.Context, url string) (telemetry.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var snap telemetry.Snapshot
	if err := httpc.GetJSON(ctx, url, &snap); err != nil {
		return telemetry.Snapshot{}, err
	}
	return snap, nil
}

// monitorLine renders one refresh of the display.
func monitorLine(snap telemetry.Snapshot, err error) string {
	if err != nil || len(snap.Readings) == 0 {
		return "No data"
	}
	return telemetry.FormatSnapshot(snap)
}

func runMonitor(ctx context.Context, w io.Writer, interval time.Duration, poll func(context.Context) (telemetry.Snapshot, error)) error {
	fmt.Fprintln(w, "HATSEYE Motor Monitor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w, "Format: M1: intensity (distance)  M2: intensity (distance)  ...")
	fmt.Fprintln(w, "Press Ctrl+C to stop")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	t := time.NewTicker(interval)
	defer t.Stop()

	width := 0
	for {
		line := monitorLine(poll(ctx))
		// pad over the previous line when it was longer
		pad := ""
		if n := width - len(line); n > 0 {
			pad = strings.Repeat(" ", n)
		}
		width = len(line)
		fmt.Fprintf(w, "\r%s%s", line, pad)

		select {
		case <-ctx.Done():
			fmt.Fprintln(w, "\n\nStopped.")
			return nil
		case <-t.C:
		}
	}
}
