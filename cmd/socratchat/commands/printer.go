package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/haivivi/socratchat/pkg/chat"
	"github.com/haivivi/socratchat/pkg/cli"
	"github.com/haivivi/socratchat/pkg/voicechat"
)

// printer renders session events and finished chat messages.
type printer struct {
	w        io.Writer
	styles   cli.Styles
	echoUser bool

	mu    sync.Mutex
	last  string
	draft string
}

func newPrinter(w io.Writer, echoUser bool) *printer {
	return &printer{w: w, styles: cli.NewStyles(cli.DefaultTheme), echoUser: echoUser}
}

func (p *printer) event(ev voicechat.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Kind {
	case voicechat.EventAdvisory:
		fmt.Fprintln(p.w, p.styles.Notice(ev.Text))
	case voicechat.EventDraft:
		p.draft = ev.Text
		label := "Brouillon :"
		if ev.Duration > 0 {
			label = fmt.Sprintf("Brouillon (%s, %s) :", cli.FormatDuration(ev.Duration), cli.FormatBytes(ev.Bytes))
		}
		fmt.Fprintln(p.w, p.styles.Help.Render(label)+" "+ev.Text+" "+p.styles.Help.Render("(s pour envoyer)"))
	default:
		line := p.styles.State(ev.State)
		if line != p.last {
			p.last = line
			fmt.Fprintln(p.w, line)
		}
	}
}

func (p *printer) message(m chat.Message) {
	if m.IsStreaming || m.Content == "" {
		return
	}
	if m.Role == chat.RoleUser && !p.echoUser {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, p.styles.Message(m))
}

func (p *printer) takeDraft() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.draft
	p.draft = ""
	return d
}

func (p *printer) help(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, p.styles.Help.Render(text))
}

// readLines delivers trimmed input lines until r ends or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
