package clipboard

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func lookIn(installed ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, n := range installed {
			if n == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name      string
		goos      string
		installed []string
		wantArgs  []string
		wantErr   bool
	}{
		{"mac", "darwin", []string{"pbcopy"}, []string{"pbcopy"}, false},
		{"wayland preferred", "linux", []string{"xclip", "wl-copy"}, []string{"wl-copy"}, false},
		{"xclip", "linux", []string{"xclip", "xsel"}, []string{"xclip", "-selection", "clipboard"}, false},
		{"xsel fallback", "linux", []string{"xsel"}, []string{"xsel", "--clipboard", "--input"}, false},
		{"nothing installed", "linux", nil, nil, true},
		{"unknown platform", "plan9", []string{"pbcopy"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Command(tt.goos, lookIn(tt.installed...))
			if tt.wantErr {
				if !errors.Is(err, ErrUnavailable) {
					t.Errorf("Command() error = %v, want ErrUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Command() error = %v", err)
			}
			got := append([]string{filepath.Base(cmd.Args[0])}, cmd.Args[1:]...)
			if diff := cmp.Diff(tt.wantArgs, got); diff != "" {
				t.Errorf("Command() args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCopy(t *testing.T) {
	if !IsAvailable() {
		t.Skip("clipboard not available on this system")
	}
	if err := Copy("@misc{a}"); err != nil {
		t.Skipf("clipboard present but not usable here: %v", err)
	}
}
