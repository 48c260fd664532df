package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// ErrNonInteractive is returned when a prompt is requested but the session
// cannot accept input (no TTY, or interactivity disabled).
var ErrNonInteractive = errors.New("prompt: session is not interactive")

// ErrTooManyAttempts is returned when validated input keeps failing.
var ErrTooManyAttempts = errors.New("prompt: too many invalid attempts")

// Input validation re-prompts are bounded so a broken stdin cannot spin forever.
const maxAttempts = 5

// Choice is one selectable entry in a menu prompt.
type Choice struct {
	Label string
	Value string
}

// Prompter collects validated interactive input. Implementations must fail
// fast with ErrNonInteractive when no interactive session is available.
type Prompter interface {
	SelectOne(label string, choices []Choice) (string, error)
	InputText(label string, validate func(string) error) (string, error)
	Confirm(label string) (bool, error)
}

// Terminal prompts on a terminal session.
type Terminal struct {
	in    *bufio.Reader
	out   io.Writer
	isTTY bool
}

// NewTerminal wires a prompter to stdin/stderr. Interactivity requires stdin
// to be a terminal.
func NewTerminal() *Terminal {
	return &Terminal{
		in:    bufio.NewReader(os.Stdin),
		out:   os.Stderr,
		isTTY: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// NewTerminalWith builds a prompter over explicit streams, used by tests.
func NewTerminalWith(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out, isTTY: true}
}

func (t *Terminal) SelectOne(label string, choices []Choice) (string, error) {
	if !t.isTTY {
		return "", ErrNonInteractive
	}
	if len(choices) == 0 {
		return "", errors.New("prompt: no choices")
	}

	fmt.Fprintln(t.out, label)
	for i, choice := range choices {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, choice.Label)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		fmt.Fprintf(t.out, "> ")
		line, err := t.readLine()
		if err != nil {
			return "", err
		}
		idx, err := strconv.Atoi(line)
		if err != nil || idx < 1 || idx > len(choices) {
			fmt.Fprintf(t.out, "enter a number between 1 and %d\n", len(choices))
			continue
		}
		return choices[idx-1].Value, nil
	}
	return "", ErrTooManyAttempts
}

func (t *Terminal) InputText(label string, validate func(string) error) (string, error) {
	if !t.isTTY {
		return "", ErrNonInteractive
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		fmt.Fprintf(t.out, "%s: ", label)
		line, err := t.readLine()
		if err != nil {
			return "", err
		}
		if line == "" {
			fmt.Fprintln(t.out, "a value is required")
			continue
		}
		if validate != nil {
			if verr := validate(line); verr != nil {
				fmt.Fprintf(t.out, "invalid value: %v\n", verr)
				continue
			}
		}
		return line, nil
	}
	return "", ErrTooManyAttempts
}

func (t *Terminal) Confirm(label string) (bool, error) {
	if !t.isTTY {
		return false, ErrNonInteractive
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		fmt.Fprintf(t.out, "%s [y/n]: ", label)
		line, err := t.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
	return false, ErrTooManyAttempts
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
