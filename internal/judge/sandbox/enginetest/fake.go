// Package enginetest provides an in-memory engine that plays the in-image runner.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"judgebox/internal/judge/sandbox/command"
	"judgebox/internal/judge/sandbox/engine"
)

// Handler answers one decoded command with response bytes.
type Handler func(ctx context.Context, cmd command.Command) ([]byte, error)

// Fake is an engine.Engine. Run reads the command file from the first mount,
// the same way the in-image runner does.
type Fake struct {
	BuildOutput string
	BuildErr    error
	Handler     Handler
	// CommandFile is the file name read from the mount, "command" by default.
	CommandFile string

	mu   sync.Mutex
	runs []engine.RunSpec
	dirs []string
}

// Build writes BuildOutput and returns BuildErr.
func (f *Fake) Build(_ context.Context, _ string, out io.Writer) error {
	if _, err := io.WriteString(out, f.BuildOutput); err != nil {
		return err
	}
	return f.BuildErr
}

// Run decodes the mounted command file and dispatches it to Handler.
func (f *Fake) Run(ctx context.Context, spec engine.RunSpec) ([]byte, error) {
	if len(spec.Mounts) == 0 {
		return nil, errors.New("no mount")
	}
	f.mu.Lock()
	f.runs = append(f.runs, spec)
	f.dirs = append(f.dirs, spec.Mounts[0].Source)
	f.mu.Unlock()

	name := f.CommandFile
	if name == "" {
		name = "command"
	}
	raw, err := os.ReadFile(filepath.Join(spec.Mounts[0].Source, name))
	if err != nil {
		return nil, &engine.ExitError{Code: 1, Stderr: err.Error()}
	}
	cmd, err := command.DecodeCommand(raw)
	if err != nil {
		return nil, &engine.ExitError{Code: 1, Stderr: err.Error()}
	}
	if f.Handler == nil {
		return nil, fmt.Errorf("no handler for %s", cmd.Name())
	}
	return f.Handler(ctx, cmd)
}

// Runs returns the run specs seen so far.
func (f *Fake) Runs() []engine.RunSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.RunSpec(nil), f.runs...)
}

// Dirs returns the mounted directories seen so far.
func (f *Fake) Dirs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dirs...)
}

// Built is build output carrying id.
func Built(id string) string {
	return "Step 1/2 : FROM debian:bookworm\n ---> 1d2c3b4a\nStep 2/2 : COPY run.py /\nSuccessfully built " + id + "\n"
}

// Versions answers Versions with the given table.
func Versions(table ...string) Handler {
	return func(_ context.Context, cmd command.Command) ([]byte, error) {
		if _, ok := cmd.(command.Versions); !ok {
			return nil, fmt.Errorf("unexpected command %s", cmd.Name())
		}
		return command.EncodeVersions(table)
	}
}

// DefaultVersions is a full table in language order.
var DefaultVersions = []string{"Python 3.12.3", "gcc (Debian 12.2.0-14) 12.2.0", "g++ (Debian 12.2.0-14) 12.2.0", "openjdk 17.0.11", "rustc 1.78.0"}

// Mux dispatches Versions to the default table and everything else to next.
func Mux(next Handler) Handler {
	return func(ctx context.Context, cmd command.Command) ([]byte, error) {
		if _, ok := cmd.(command.Versions); ok {
			return command.EncodeVersions(DefaultVersions)
		}
		return next(ctx, cmd)
	}
}
