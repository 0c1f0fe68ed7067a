// Package engine drives the container engine that builds the sandbox image and
// runs one disposable container per request.
package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Mount describes a bind mount into the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec describes one container run. Containers are always removed on exit
// and never get a network.
type RunSpec struct {
	Image    string
	Name     string
	MemoryMB int64
	Mounts   []Mount
}

// Engine builds images and runs containers.
type Engine interface {
	// Build builds contextDir and writes the builder's combined output to out.
	// A non-zero builder exit is an error.
	Build(ctx context.Context, contextDir string, out io.Writer) error
	// Run starts a container, waits for it and returns its stdout.
	// A non-zero exit is an *ExitError. Cancelling ctx kills the container.
	Run(ctx context.Context, spec RunSpec) ([]byte, error)
}

// ExitError reports a container that exited with a non-zero status.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("got bad status %d", e.Code)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ". stderr: " + stderr
	}
	return msg
}

const (
	// KindCLI shells out to the docker binary.
	KindCLI = "cli"
	// KindAPI talks to the Docker Engine API.
	KindAPI = "api"
)

// Config selects and configures an engine.
type Config struct {
	Kind         string `yaml:"engine"`
	Binary       string `yaml:"binary"`
	ExtraRunArgs string `yaml:"extraRunArgs"`
}

// New returns the engine selected by cfg.Kind. The caller closes engines implementing io.Closer.
func New(cfg Config) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindCLI:
		return NewCLI(cfg.Binary, cfg.ExtraRunArgs)
	case KindAPI:
		return NewDocker()
	default:
		return nil, fmt.Errorf("unknown sandbox engine %q", cfg.Kind)
	}
}
