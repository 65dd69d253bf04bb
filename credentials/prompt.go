package credentials

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type Prompter interface {
	Prompt(label string) (string, error)
	PromptHidden(label string) (string, error)
}

// TerminalPrompter asks on the controlling terminal, falling back to stdin
// when there is none. Labels go to stderr so stdout stays reserved for the
// session token. All prompts share one buffered reader, so piped input is
// consumed a line at a time.
type TerminalPrompter struct {
	in     *os.File
	reader *bufio.Reader
	labels io.Writer
}

func NewTerminalPrompter() *TerminalPrompter {
	in := os.Stdin
	if tty, err := os.Open("/dev/tty"); err == nil {
		in = tty
	}
	return newPrompter(in, os.Stderr)
}

func newPrompter(in *os.File, labels io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: in, reader: bufio.NewReader(in), labels: labels}
}

func (p *TerminalPrompter) Prompt(label string) (string, error) {
	fmt.Fprint(p.labels, label)
	return p.readLine()
}

func (p *TerminalPrompter) PromptHidden(label string) (string, error) {
	fmt.Fprint(p.labels, label)
	fd := int(p.in.Fd())
	if !term.IsTerminal(fd) {
		return p.readLine()
	}
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(p.labels)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *TerminalPrompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
