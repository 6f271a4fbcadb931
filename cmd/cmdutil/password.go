package cmdutil

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PasswordEnv names the environment variable read when --password is unset.
const PasswordEnv = "CAMPUSDESK_PASSWORD"

// ErrPasswordRequired is returned when no password source is available
var ErrPasswordRequired = errors.New("password is required")

// PasswordSource resolves the login password: flag, environment, then an
// interactive prompt or one line of piped stdin.
type PasswordSource struct {
	Flag   string
	Getenv func(string) string
	Stdin  *os.File
	Prompt io.Writer
}

// Resolve returns the first non-empty password
func (p PasswordSource) Resolve() (string, error) {
	if p.Flag != "" {
		return p.Flag, nil
	}
	if p.Getenv != nil {
		if v := p.Getenv(PasswordEnv); v != "" {
			return v, nil
		}
	}
	if p.Stdin == nil {
		return "", ErrPasswordRequired
	}

	fd := int(p.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(p.Prompt, "Password: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(p.Prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		if len(raw) == 0 {
			return "", ErrPasswordRequired
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(p.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", ErrPasswordRequired
	}
	return line, nil
}
