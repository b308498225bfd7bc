package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/haivivi/socratchat/pkg/chat"
	"github.com/haivivi/socratchat/pkg/cli"
	"github.com/haivivi/socratchat/pkg/voicechat"
)

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Talk with Socrate using push-to-talk",
	Long: `Talk with Socrate using push-to-talk.

  [Enter]  start or stop recording; the transcript becomes a draft
  s        send the draft
  v        toggle voice-active mode: every recording is sent and the
           reply spoken, then the microphone opens again
  q        leave
Anything else is sent as typed text.`,
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
		p.help("[Entrée] enregistrer · s envoyer · v voix active · q quitter")

		lines := readLines(ctx, os.Stdin)
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if err := talkLine(ctx, st, p, line); err != nil {
					if errors.Is(err, errQuit) {
						return nil
					}
					cli.PrintError("%v", err)
				}
			}
		}
	},
}

var errQuit = errors.New("quit")

func talkLine(ctx context.Context, st *stack, p *printer, line string) error {
	switch line {
	case "q", "/quit":
		return errQuit
	case "":
		if st.session.State().Recording {
			return st.session.StopRecording()
		}
		return st.session.StartRecording()
	case "v":
		_, err := st.session.ToggleVoiceChat()
		return err
	case "s":
		draft := p.takeDraft()
		if draft == "" {
			p.help("Aucun brouillon.")
			return nil
		}
		line = draft
	}
	_, err := st.session.SendText(ctx, line)
	if errors.Is(err, chat.ErrRequestFailed) {
		return nil
	}
	return err
}

func init() {
	rootCmd.AddCommand(talkCmd)
}
