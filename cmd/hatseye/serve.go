package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hatseye/hatseye/internal/log"
	"github.com/hatseye/hatseye/pkg/app"
)

type serveOptions struct {
	addr        string
	port        string
	noTelemetry bool
	noDetection bool
}

func serveCommand(global *globalOptions) *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the camera pipeline, telemetry link and web API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), global, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides web.addr)")
	cmd.Flags().StringVar(&opts.port, "port", "", "Serial port for the hat, or \"auto\" (overrides telemetry.port)")
	cmd.Flags().BoolVar(&opts.noTelemetry, "no-telemetry", false, "Do not open the serial link")
	cmd.Flags().BoolVar(&opts.noDetection, "no-detection", false, "Start with hazard detection paused")
	return cmd
}

func runServe(ctx context.Context, global *globalOptions, opts serveOptions) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Web.Addr = opts.addr
	}
	if opts.port != "" {
		cfg.Telemetry.Port = opts.port
	}
	if opts.noTelemetry {
		cfg.Telemetry.Enabled = false
	}
	if opts.noDetection {
		cfg.Detection.Active = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	a, err := app.New(cfg, app.WithLogger(log.L()))
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	return a.Run(ctx)
}
