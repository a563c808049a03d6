package main

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ericyan/omnirender/gcast"
	"github.com/ericyan/omnirender/mpris"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List MPRIS players and Google Cast devices",
	Args:  cobra.NoArgs,
	RunE:  runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if conn, err := dbus.SessionBus(); err != nil {
		log.Warn().Err(err).Msg("session bus unavailable")
	} else {
		players, err := mpris.Discover(conn)
		if err != nil {
			log.Warn().Err(err).Msg("no MPRIS players")
		}
		for _, p := range players {
			fmt.Fprintf(out, "mpris\t%s\n", p)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Cast.DiscoveryTimeout)
	defer cancel()

	devices, err := gcast.Discover(ctx)
	if err != nil {
		return err
	}
	for dev := range devices {
		fmt.Fprintf(out, "gcast\t%s\t%s\t%v\n", dev.Name, dev.TCPAddr(), dev.Capabilities())
	}

	return nil
}
