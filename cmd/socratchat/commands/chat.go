package commands

import (
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/haivivi/socratchat/pkg/chat"
	"github.com/haivivi/socratchat/pkg/cli"
)

var chatSpeak bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with Socrate by typing",
	Long: `Chat with Socrate by typing.

Commands inside the chat:
  /voix    toggle spoken replies
  /clear   start a new conversation
  /quit    leave`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadServices()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		p := newPrinter(os.Stdout, false)
		st, err := newStack(ctx, svc, stackOptions{onEvent: p.event, onMessage: p.message})
		if err != nil {
			return err
		}
		defer st.Close()

		speak := chatSpeak
		if err := st.session.SetSpeakReplies(speak); err != nil {
			return err
		}
		p.message(chat.Welcome())

		lines := readLines(ctx, os.Stdin)
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				switch line {
				case "":
					continue
				case "/quit", "/exit":
					return nil
				case "/clear":
					st.chat.Clear()
					continue
				case "/voix":
					speak = !speak
					if err := st.session.SetSpeakReplies(speak); err != nil {
						return err
					}
					continue
				}
				if _, err := st.session.SendText(ctx, line); err != nil && !errors.Is(err, chat.ErrRequestFailed) {
					cli.PrintError("%v", err)
				}
			}
		}
	},
}

func init() {
	chatCmd.Flags().BoolVar(&chatSpeak, "speak", false, "speak replies aloud")
	rootCmd.AddCommand(chatCmd)
}
