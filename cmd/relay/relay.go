// Package relaycmder assembles the relay command tree.
package relaycmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/relay/cmd/relay/chat"
	configcmder "github.com/papercomputeco/relay/cmd/relay/config"
	servecmder "github.com/papercomputeco/relay/cmd/relay/serve"
	threadscmder "github.com/papercomputeco/relay/cmd/relay/threads"
)

const relayLongDesc string = `Relay is a streaming completion relay: it persists chat threads, forwards
each turn to an upstream completion provider, and streams the reply back
to the client as server-sent events.

Common commands:
  relay serve      Run the relay server
  relay chat       Interactive chat against a running relay
  relay threads    List, show, and delete stored threads`

const relayShortDesc string = "Relay - streaming chat completions with persistence"

func NewRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: relayShortDesc,
		Long:  relayLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.relay or ~/.relay)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(threadscmder.NewThreadsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())

	return cmd
}
