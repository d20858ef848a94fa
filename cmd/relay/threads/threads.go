// Package threadscmder provides commands for inspecting and deleting stored
// threads through a running relay.
package threadscmder

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/relay/pkg/chat"
	"github.com/papercomputeco/relay/pkg/client"
	"github.com/papercomputeco/relay/pkg/cliui"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/utils"
)

const threadsLongDesc string = `Inspect and delete threads stored by a running relay.

Subcommands:
  relay threads list           List thread ids and titles
  relay threads show <id>      Print a thread's messages
  relay threads delete <id>    Delete a thread permanently

Examples:
  relay threads list
  relay threads show 9b1d...
  relay threads delete 9b1d... --target http://localhost:8080`

const threadsShortDesc string = "List, show, and delete stored threads"

type threadsCommander struct {
	target string
}

func NewThreadsCmd() *cobra.Command {
	cmder := &threadsCommander{}

	cmd := &cobra.Command{
		Use:   "threads",
		Short: threadsShortDesc,
		Long:  threadsLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagTarget})

			cmder.target = v.GetString("client.target")
			return nil
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTarget, &cmder.target)

	cmd.AddCommand(newListCmd(cmder))
	cmd.AddCommand(newShowCmd(cmder))
	cmd.AddCommand(newDeleteCmd(cmder))

	return cmd
}

func newListCmd(cmder *threadsCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List thread ids and titles",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.runList()
		},
	}
}

func newShowCmd(cmder *threadsCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a thread's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return cmder.runShow(args[0])
		},
	}
}

func newDeleteCmd(cmder *threadsCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a thread permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return cmder.runDelete(args[0])
		},
	}
}

func (c *threadsCommander) runList() error {
	relayClient := client.New(client.Config{BaseURL: c.target})

	summaries, err := relayClient.Threads(context.Background())
	if err != nil {
		return fmt.Errorf("listing threads: %w", err)
	}

	fmt.Println()
	if len(summaries) == 0 {
		fmt.Printf("  %s\n\n", cliui.DimStyle.Render("No threads stored."))
		return nil
	}

	for _, s := range summaries {
		fmt.Printf("  %s  %s\n",
			cliui.IDStyle.Render(s.ThreadID),
			utils.Truncate(s.Title, 60),
		)
	}
	fmt.Println()

	return nil
}

func (c *threadsCommander) runShow(threadID string) error {
	relayClient := client.New(client.Config{BaseURL: c.target})

	thread, err := relayClient.Thread(context.Background(), threadID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("thread %q not found", threadID)
		}
		return fmt.Errorf("fetching thread: %w", err)
	}

	fmt.Println()
	fmt.Printf("  %s %s\n",
		cliui.KeyStyle.Render("Thread:"),
		cliui.IDStyle.Render(thread.ThreadID),
	)
	fmt.Printf("  %s %s\n\n",
		cliui.KeyStyle.Render("Title:"),
		thread.Title,
	)

	for _, msg := range thread.Messages {
		switch msg.Role {
		case chat.RoleAssistant:
			rendered, err := cliui.RenderMarkdown(msg.Content)
			if err != nil {
				rendered = msg.Content
			}
			fmt.Printf("  %s\n%s\n", cliui.NameStyle.Render("assistant"), rendered)
		default:
			fmt.Printf("  %s\n  %s\n\n", cliui.KeyStyle.Render(msg.Role), msg.Content)
		}
	}

	return nil
}

func (c *threadsCommander) runDelete(threadID string) error {
	relayClient := client.New(client.Config{BaseURL: c.target})

	err := cliui.Step(os.Stdout, fmt.Sprintf("Deleting thread %s", utils.Truncate(threadID, 16)), func() error {
		err := relayClient.DeleteThread(context.Background(), threadID)
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("thread %q not found", threadID)
		}
		return err
	})
	if err != nil {
		return err
	}

	return nil
}
