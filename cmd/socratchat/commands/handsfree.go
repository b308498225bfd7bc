package commands

import (
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/socratchat/pkg/chat"
	"github.com/haivivi/socratchat/pkg/voicechat"
)

var handsfreeCmd = &cobra.Command{
	Use:   "handsfree",
	Short: "Talk with Socrate without touching the keyboard",
	Long: `Talk with Socrate without touching the keyboard.

Speak, pause, and the question is sent once you have been silent long
enough (voice.silence_ms). The reply is spoken, then the microphone opens
again. Ctrl-C leaves.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadServices()
		if err != nil {
			return err
		}
		if svc.Groq.APIKey == "" {
			return errors.New(voicechat.AdvisoryMissingKey)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		p := newPrinter(os.Stdout, true)
		st, err := newStack(ctx, svc, stackOptions{onEvent: p.event, onMessage: p.message})
		if err != nil {
			return err
		}
		defer st.Close()
		p.message(chat.Welcome())
		p.help("Mode mains libres. Ctrl-C pour quitter.")

		if err := st.session.EnterHandsFree(); err != nil {
			return err
		}

		// The session leaves hands-free by itself after a permission
		// error or too many failed turns.
		tick := time.NewTicker(200 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return st.session.ExitHandsFree()
			case <-tick.C:
				if !st.session.State().HandsFree {
					return nil
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(handsfreeCmd)
}
