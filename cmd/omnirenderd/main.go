// Command omnirenderd exposes a media player as a UPnP/DLNA MediaRenderer.
package main

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ericyan/omnirender/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "omnirenderd",
	Short: "UPnP/DLNA MediaRenderer for MPRIS players and Google Cast devices",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.config/omnirender/config.yaml)")
	config.RegisterFlags(rootCmd.PersistentFlags())
}

func initConfig(cmd *cobra.Command) error {
	var err error
	if cfg, err = config.Load(cfgFile); err != nil {
		return err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	initLogging(cfg.Log)

	return nil
}

func initLogging(c config.LogConfig) {
	level, _ := zerolog.ParseLevel(c.Level)
	zerolog.SetGlobalLevel(level)

	console := c.Format == "console" || (c.Format == "" && isatty.IsTerminal(os.Stderr.Fd()))
	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
