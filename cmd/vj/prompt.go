package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"vj-go/internal/app"
)

var (
	readPassword           = term.ReadPassword
	isTerminal             = term.IsTerminal
	stdin        io.Reader = os.Stdin
)

func interactive() bool {
	return isTerminal(int(os.Stdin.Fd()))
}

// readPassphrase returns the key passphrase from the environment or, failing
// that, from the terminal.
func readPassphrase() (string, error) {
	if p := os.Getenv(app.EnvPassphrase); p != "" {
		return p, nil
	}
	if !interactive() {
		return "", fmt.Errorf("no terminal to read the passphrase from; set %s", app.EnvPassphrase)
	}
	return promptPassword(os.Stderr, "Passphrase: ")
}

// newPassphrase asks for a passphrase twice and checks both entries match.
func newPassphrase() (string, error) {
	if p := os.Getenv(app.EnvPassphrase); p != "" {
		return p, nil
	}
	if !interactive() {
		return "", fmt.Errorf("no terminal to read the passphrase from; set %s", app.EnvPassphrase)
	}
	first, err := promptPassword(os.Stderr, "New passphrase: ")
	if err != nil {
		return "", err
	}
	second, err := promptPassword(os.Stderr, "Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	return first, nil
}

func promptPassword(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	b, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// readAuthCode shows the authorization URL and reads back the code Dropbox
// displays once access is granted.
func readAuthCode(authURL string) (string, error) {
	fmt.Fprintln(os.Stderr, "Open this URL in a browser and allow access:")
	fmt.Fprintf(os.Stderr, "\n  %s\n\n", authURL)
	return readLine(stdin, os.Stderr, "Authorization code: ")
}

func readLine(r io.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// confirmCreateTag asks whether a remote folder with no matching tag should
// become a new custom tag.
func confirmCreateTag(ctx context.Context, folder string) (bool, error) {
	create := true
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Create tag %q?", folder)).
		Description("Files in this Dropbox folder have no matching tag.").
		Affirmative("Create").
		Negative("Skip").
		Value(&create).
		Run()
	if err != nil {
		return false, err
	}
	return create, nil
}
