package commands

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/socratchat/pkg/cli"
	"github.com/haivivi/socratchat/pkg/wsbridge"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the voice session to a browser over WebSocket",
	Long: `Serve the voice session to a browser over WebSocket.

The session runs on this machine: microphone and speaker are local. A
page connected to /ws mirrors its state, the conversation, advisories and
drafts, and drives it with JSON commands:

  {"type":"enter_handsfree"}  {"type":"exit_handsfree"}
  {"type":"toggle_voice"}
  {"type":"start_recording"}  {"type":"stop_recording"}
  {"type":"send_text","text":"Qu'est-ce que la vertu ?"}
  {"type":"speak_replies","on":false}
  {"type":"clear"}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := loadServices()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bridge := &wsbridge.Server{}
		st, err := newStack(ctx, svc, stackOptions{
			onEvent:   bridge.PublishEvent,
			onMessage: bridge.PublishMessage,
		})
		if err != nil {
			return err
		}
		defer st.Close()
		bridge.Session = st.session
		bridge.History = st.chat

		mux := http.NewServeMux()
		mux.Handle("/ws", bridge)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		ln, err := net.Listen("tcp", serveAddr)
		if err != nil {
			return err
		}
		hs := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		errc := make(chan error, 1)
		go func() { errc <- hs.Serve(ln) }()
		cli.PrintInfo("Listening on ws://%s/ws", ln.Addr())

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("serve: shutdown", "error", err)
		}
		bridge.Wait()
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8765", "listen address")
	rootCmd.AddCommand(serveCmd)
}
