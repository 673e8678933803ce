package entrypoint

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	userStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	agentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	metaStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	replyStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

var exitWords = map[string]bool{"exit": true, "quit": true, "bye": true, "goodbye": true}

// Console drives the handler from a terminal.
type Console struct {
	handler *Handler
	in      io.Reader
	out     io.Writer
}

func NewConsole(h *Handler, in io.Reader, out io.Writer) *Console {
	return &Console{handler: h, in: in, out: out}
}

// REPL reads one prompt per line until EOF or an exit word. The session
// returned by the first answer is kept for the rest of the loop.
func (c *Console) REPL(ctx context.Context, actorID, sessionID string) error {
	fmt.Fprintln(c.out, titleStyle.Render("SAP Sales Order Agent"))
	fmt.Fprintln(c.out, metaStyle.Render("Type 'quit' to exit."))

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, userStyle.Render("You: "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitWords[strings.ToLower(line)] {
			fmt.Fprintln(c.out, agentStyle.Render("Assistant:"), "Goodbye!")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		resp := c.handler.Handle(ctx, Payload{Prompt: line, ActorID: actorID, SessionID: sessionID})
		sessionID = resp.SessionID
		c.printReply(resp)
	}
	return scanner.Err()
}

// DemoQuery is one scripted step of a demo run.
type DemoQuery struct {
	Description string
	Prompt      string
}

// Demo runs queries in order on one session.
func (c *Console) Demo(ctx context.Context, actorID, sessionID string, queries []DemoQuery) error {
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintln(c.out, titleStyle.Render(fmt.Sprintf("TEST %d: %s", i+1, q.Description)))
		fmt.Fprintln(c.out, userStyle.Render("You:"), q.Prompt)

		resp := c.handler.Handle(ctx, Payload{Prompt: q.Prompt, ActorID: actorID, SessionID: sessionID})
		sessionID = resp.SessionID
		c.printReply(resp)
	}
	fmt.Fprintln(c.out, titleStyle.Render("All demo queries completed"))
	return nil
}

func (c *Console) printReply(resp Response) {
	text := resp.Response
	if strings.HasPrefix(text, "Error: ") {
		text = errorStyle.Render(text)
	}
	fmt.Fprintln(c.out, agentStyle.Render("Assistant:"))
	fmt.Fprintln(c.out, replyStyle.Render(text))
	fmt.Fprintln(c.out, metaStyle.Render(fmt.Sprintf("actor=%s session=%s", resp.ActorID, resp.SessionID)))
}
