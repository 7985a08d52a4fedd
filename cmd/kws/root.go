package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/microbit-kws-lab/internal/config"
)

type options struct {
	configPath string
	input      string
	format     string
	script     string
	httpAddr   string
}

func newRootCmd() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:           "kws",
		Short:         "Keyword-spotting LED demo",
		Long:          "kws streams audio windows through a keyword classifier and toggles an LED per keyword.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(&opts).RunE(cmd, args)
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&opts.input, "input", "", "capture input: raw s8 or wav file, '-' for stdin")
	rootCmd.PersistentFlags().StringVar(&opts.format, "format", "", "capture format: raw or wav")
	rootCmd.PersistentFlags().StringVar(&opts.script, "script", "", "replay classifier script")
	rootCmd.PersistentFlags().StringVar(&opts.httpAddr, "http", "", "serve /metrics and /ws on this address")

	rootCmd.AddCommand(runCmd(&opts), configCmd(&opts))
	return rootCmd
}

func runCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the inference loop (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func configCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// loadConfig reads the file and environment, applies flags and validates.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Read(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.input != "" {
		cfg.Capture.Input = opts.input
	}
	if opts.format != "" {
		cfg.Capture.Format = opts.format
	}
	if opts.script != "" {
		cfg.Classifier.Type = "replay"
		cfg.Classifier.Script = opts.script
	}
	if opts.httpAddr != "" {
		cfg.HTTP.Enabled = true
		cfg.HTTP.Address = opts.httpAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
