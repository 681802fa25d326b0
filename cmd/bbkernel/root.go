package main

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bbkernel/internal/config"
	"bbkernel/internal/kernel"
	"bbkernel/internal/logging"
)

// globalOptions are bound to the root command's persistent flags.
type globalOptions struct {
	configPath string
	debug      bool
	logLevel   string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "bbkernel",
		Short:         "Application kernel: service container, events, routing and sequences",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (.yaml, .yml, .json or .toml)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Debug mode: never read or write the container dump")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error|off (overrides config)")

	root.AddCommand(
		newServeCmd(opts),
		newContainerCmd(opts),
		newSequenceCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// loadConfig reads the config file when given, then applies defaults, the
// environment and the command line, in that order.
func (o *globalOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyDefaults()
	cfg.ApplyEnv()
	if cmd.Flags().Changed("debug") {
		cfg.Debug = o.debug
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.ExpandPaths(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// boot loads the configuration, builds the logger and boots the kernel.
// The returned func releases the logger output and the application.
func (o *globalOptions) boot(cmd *cobra.Command) (*kernel.Application, zerolog.Logger, func(), error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	app := kernel.New(cfg, kernel.WithLogger(logger))
	release := func() {
		if err := app.Close(); err != nil {
			logger.Warn().Err(err).Msg("close application")
		}
		_ = closer.Close()
	}
	if err := app.Boot(cmd.Context()); err != nil {
		release()
		return nil, logger, nil, err
	}
	return app, logger, release, nil
}
