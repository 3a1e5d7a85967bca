// Package clipboard copies exported text to the system clipboard through
// the platform's command-line tools.
package clipboard

import (
	"errors"
	"os/exec"
	"runtime"
	"strings"
)

// ErrUnavailable is returned when no clipboard tool is installed.
var ErrUnavailable = errors.New("clipboard unavailable")

type tool struct {
	name string
	args []string
}

// Tools in order of preference per platform.
var tools = map[string][]tool{
	"darwin":  {{name: "pbcopy"}},
	"linux":   {{name: "wl-copy"}, {name: "xclip", args: []string{"-selection", "clipboard"}}, {name: "xsel", args: []string{"--clipboard", "--input"}}},
	"freebsd": {{name: "xclip", args: []string{"-selection", "clipboard"}}, {name: "xsel", args: []string{"--clipboard", "--input"}}},
	"windows": {{name: "clip"}},
}

// Command returns the copy command for goos, using the first tool that
// lookPath finds.
func Command(goos string, lookPath func(string) (string, error)) (*exec.Cmd, error) {
	for _, t := range tools[goos] {
		if path, err := lookPath(t.name); err == nil {
			return exec.Command(path, t.args...), nil
		}
	}
	return nil, ErrUnavailable
}

// IsAvailable reports whether Copy can work on this system.
func IsAvailable() bool {
	_, err := Command(runtime.GOOS, exec.LookPath)
	return err == nil
}

// Copy places text on the system clipboard.
func Copy(text string) error {
	cmd, err := Command(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}
