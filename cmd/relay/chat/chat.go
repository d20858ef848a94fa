// Package chatcmder provides the chat command for interactive chat through a
// running relay.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/client"
	"github.com/papercomputeco/relay/pkg/cliui"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/logger"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

type chatCommander struct {
	target   string
	threadID string
	debug    bool

	logger *zap.Logger
}

const chatLongDesc string = `Start an interactive chat session against a running relay.

Each turn is sent to the relay, which persists the thread and streams the
assistant's reply back token by token. Press Ctrl+C during a reply to cancel
it; a cancelled reply is not stored.

Pass --thread to resume an existing thread; otherwise a fresh thread id is
generated for the session.

Examples:
  relay chat
  relay chat --target http://localhost:8080
  relay chat --thread 9b1d...`

const chatShortDesc string = "Interactive chat through the relay"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagTarget})

			cmder.target = v.GetString("client.target")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTarget, &cmder.target)
	cmd.Flags().StringVar(&cmder.threadID, "thread", "", "Thread id to resume (default: new thread)")

	return cmd
}

func (c *chatCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	if c.threadID == "" {
		c.threadID = uuid.NewString()
	}

	relayClient := client.New(client.Config{BaseURL: c.target})

	fmt.Println()
	fmt.Printf("  %s %s\n",
		cliui.KeyStyle.Render("Relay:"),
		cliui.NameStyle.Render(c.target),
	)
	fmt.Printf("  %s %s\n\n",
		cliui.KeyStyle.Render("Thread:"),
		cliui.IDStyle.Render(c.threadID),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	// Ctrl+C cancels the in-flight reply rather than killing the session.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			relayClient.Cancel()
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		fmt.Print(assistantPrompt)

		_, err := relayClient.Send(context.Background(), c.threadID, input, func(delta string) {
			fmt.Print(delta)
		})

		switch {
		case errors.Is(err, context.Canceled):
			fmt.Printf("\n  %s %s\n", cliui.DimStyle.Render("●"), cliui.DimStyle.Render("cancelled"))
		case err != nil:
			fmt.Fprintf(os.Stderr, "\n  %s %v\n", cliui.FailMark, err)
		}

		fmt.Println()
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}
