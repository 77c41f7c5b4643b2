// Package engine implements the session runtime engine described in
// spec.md §4.8-4.9: the per-session state machine that owns every hardware
// interface, channel, motor group, Unity bridge, video pipeline, control UI
// vector, and visualizer hub, drives the startup/checkpoint/runtime/
// shutdown sequence, and layers the lick-training, run-training, experiment,
// and window-checking task controllers on top of it.
package engine

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompt is the sole synchronous operator rendezvous, per DESIGN NOTES §9:
// "Operator input() prompts as the sole synchronous rendezvous -> a Prompt
// capability with echo, ask(question) -> String, ask_yes_no(question) ->
// bool, wait_for_enter(); tests can inject a scripted prompt."
type Prompt interface {
	Echo(format string, args ...any)
	Ask(question string) (string, error)
	AskYesNo(question string) (bool, error)
	WaitForEnter(question string) error
}

// TerminalPrompt is the default Prompt, reading from a line-buffered reader
// and writing to an io.Writer — stdin/stdout in production, a scripted
// bytes.Buffer pair in tests.
type TerminalPrompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompt wraps the given reader/writer pair as a Prompt.
func NewTerminalPrompt(in io.Reader, out io.Writer) *TerminalPrompt {
	return &TerminalPrompt{in: bufio.NewReader(in), out: out}
}

func (p *TerminalPrompt) Echo(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *TerminalPrompt) Ask(question string) (string, error) {
	fmt.Fprintf(p.out, "%s ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *TerminalPrompt) AskYesNo(question string) (bool, error) {
	answer, err := p.Ask(question + " [y/n]")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func (p *TerminalPrompt) WaitForEnter(question string) error {
	_, err := p.Ask(question + " (press enter to continue)")
	return err
}
