package sandbox

import (
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
)

// SplitCommand splits a command line into argv with POSIX shell quoting.
// Variables and backticks are not expanded. Control operators and
// redirections are rejected since commands never run through a shell.
func SplitCommand(command string) ([]string, error) {
	p := shellwords.NewParser()
	p.ParseEnv = false
	p.ParseBacktick = false

	args, err := p.Parse(command)
	if err != nil {
		return nil, err
	}
	if p.Position >= 0 {
		return nil, fmt.Errorf("shell operator at offset %d is not supported", p.Position)
	}
	return args, nil
}

// firstToken returns the first whitespace separated word of command
func firstToken(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// shellQuote wraps s in single quotes for sh, escaping embedded single quotes
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
