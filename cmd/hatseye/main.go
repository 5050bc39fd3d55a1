// HatsEye runs the wearable hazard-detection and voice-assistant service.
//
// Usage:
//
//	hatseye [serve] [--config hatseye.yaml] [--debug]
//	hatseye monitor [--serial]
//	hatseye ports
//	hatseye cameras
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hatseye/hatseye/internal/config"
	"github.com/hatseye/hatseye/internal/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "hatseye",
		Short:         "HatsEye hazard detection and voice assistant",
		Long:          "Fuses camera hazard detection, hat sensor telemetry and a voice question/answer loop, served over a local web API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, serveOptions{})
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (default: search ., ~/.config/hatseye, /etc/hatseye)")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug output")

	root.AddCommand(
		serveCommand(opts),
		monitorCommand(opts),
		portsCommand(),
		camerasCommand(opts),
	)
	return root
}

// loadConfig reads the config and initializes the global logger.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.debug {
		cfg.Log.Level = "debug"
	}
	log.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}
