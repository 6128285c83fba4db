package auth

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks for account details on a terminal. Secrets are read
// without echo when the input is a terminal.
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	isTerm bool
}

// NewPrompter creates a prompter over stdin and out
func NewPrompter(out io.Writer) *Prompter {
	fd := int(os.Stdin.Fd())
	return &Prompter{
		in:     bufio.NewReader(os.Stdin),
		out:    out,
		fd:     fd,
		isTerm: term.IsTerminal(fd),
	}
}

// NewPrompterFrom creates a prompter that reads plain lines from in
func NewPrompterFrom(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
}

// Line prints label and reads one trimmed line
func (p *Prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Secret prints label and reads a value without echoing it
func (p *Prompter) Secret(label string) (string, error) {
	if !p.isTerm {
		return p.Line(label)
	}
	fmt.Fprint(p.out, label)
	secret, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

// Confirm asks a yes/no question; an empty answer takes def
func (p *Prompter) Confirm(label string, def bool) (bool, error) {
	answer, err := p.Line(label)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Account prompts for a complete account. name may be preset.
func (p *Prompter) Account(name string) (*Account, error) {
	var err error
	if name == "" {
		if name, err = p.Line("Account name: "); err != nil {
			return nil, err
		}
	}
	account := &Account{Name: name}

	if account.AuthToken, err = p.Secret("auth_token cookie: "); err != nil {
		return nil, err
	}
	if !looksLikeHex(account.AuthToken, 20) {
		return nil, fmt.Errorf("%w: auth_token should be a hex string", ErrInvalidCredentials)
	}
	if account.CSRFToken, err = p.Secret("ct0 cookie: "); err != nil {
		return nil, err
	}
	if !looksLikeHex(account.CSRFToken, 20) {
		return nil, fmt.Errorf("%w: ct0 should be a hex string", ErrInvalidCredentials)
	}
	if account.UserAgent, err = p.Line("User agent (Enter for default): "); err != nil {
		return nil, err
	}

	if err := account.Validate(); err != nil {
		return nil, err
	}
	return account, nil
}

func looksLikeHex(s string, minLen int) bool {
	if len(s) < minLen {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
