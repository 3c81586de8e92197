package engines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// commandLine splits a command template into arguments. Placeholders such as
// {input} and {workspace} are substituted per argument, so paths containing
// spaces survive.
type commandLine []string

func parseCommand(tmpl string) commandLine {
	return commandLine(strings.Fields(tmpl))
}

func (c commandLine) has(placeholder string) bool {
	for _, a := range c {
		if strings.Contains(a, placeholder) {
			return true
		}
	}
	return false
}

func (c commandLine) expand(vars map[string]string) []string {
	out := make([]string, len(c))
	for i, a := range c {
		for k, v := range vars {
			a = strings.ReplaceAll(a, "{"+k+"}", v)
		}
		out[i] = a
	}
	return out
}

// lookPath checks that the command's executable is installed.
func (c commandLine) lookPath() (string, error) {
	if len(c) == 0 {
		return "", errors.New("no command configured")
	}
	return exec.LookPath(c[0])
}

// run executes args under ctx and returns combined output. A cancelled or
// expired ctx kills the process.
func run(ctx context.Context, dir string, args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	slog.Debug("Running extraction subprocess", "command", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return out.Bytes(), ctx.Err()
		}
		return out.Bytes(), fmt.Errorf("%s: %w: %s", args[0], err, truncate(tail(out.String(), 400), 400))
	}
	return out.Bytes(), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
