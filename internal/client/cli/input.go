package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

// promptLine asks for one value on w and reads it from r. Input that ends
// without a newline is accepted.
func promptLine(r *bufio.Reader, w io.Writer, label string) (string, error) {
	fmt.Fprintf(w, "%s: ", label)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a secret from the controlling terminal with echo
// off. Callers wipe the returned bytes.
func promptPassword(w io.Writer, label string) ([]byte, error) {
	fmt.Fprintf(w, "%s: ", label)
	defer fmt.Fprintln(w)
	return readPassword(int(os.Stdin.Fd()))
}
