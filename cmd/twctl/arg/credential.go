package arg

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

var (
	adminName    string
	passwordFile string
)

// credential builds the "name:password" string the engine expects,
// prompting for the password unless --password-file is given.
func credential() (string, error) {
	if adminName == "" {
		return "", errors.New("--admin is required")
	}
	password, err := readPassword()
	if err != nil {
		return "", err
	}
	return adminName + ":" + password, nil
}

func readPassword() (string, error) {
	if passwordFile != "" && passwordFile != "-" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", passwordFile, err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available for interactive password prompt (use --password-file)")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}
