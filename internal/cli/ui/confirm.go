package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

var stdin io.Reader = os.Stdin

// ConfirmWithDefault asks a yes/no question. An empty answer returns def.
func ConfirmWithDefault(prompt string, def bool) bool {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	fmt.Fprintf(stdout, "%s %s ", prompt, hint)

	answer, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && answer == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "":
		return def
	case "y", "yes":
		return true
	default:
		return false
	}
}
