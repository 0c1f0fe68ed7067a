package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"judgebox/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

const (
	defaultBinary = "docker"
	killTimeout   = 10 * time.Second
	waitDelay     = 5 * time.Second
)

// CLI drives the docker command line client.
type CLI struct {
	binary    string
	extraArgs []string
}

// NewCLI returns an engine invoking binary. extraRunArgs is split shell-style
// and inserted before the image name on every run.
func NewCLI(binary, extraRunArgs string) (*CLI, error) {
	if binary == "" {
		binary = defaultBinary
	}
	extra, err := shlex.Split(extraRunArgs)
	if err != nil {
		return nil, fmt.Errorf("parse extra run args: %w", err)
	}
	return &CLI{binary: binary, extraArgs: extra}, nil
}

// Build runs "<binary> build <contextDir>" with the legacy builder, whose
// output carries the "Successfully built <id>" line.
func (c *CLI) Build(ctx context.Context, contextDir string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, c.binary, "build", contextDir)
	cmd.Env = append(os.Environ(), "DOCKER_BUILDKIT=0")
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("run %s build: %w", c.binary, err)
	}
	return nil
}

// RunArgs is the argument vector Run passes to the binary.
func (c *CLI) RunArgs(spec RunSpec) []string {
	args := []string{"run", "--rm"}
	if spec.MemoryMB > 0 {
		args = append(args, "--memory="+strconv.FormatInt(spec.MemoryMB, 10)+"m")
	}
	args = append(args, "--network=none")
	for _, m := range spec.Mounts {
		opt := "type=bind,source=" + m.Source + ",destination=" + m.Target
		if m.ReadOnly {
			opt += ",readonly"
		}
		args = append(args, "--mount", opt)
	}
	if spec.Name != "" {
		args = append(args, "--name", spec.Name)
	}
	args = append(args, c.extraArgs...)
	return append(args, spec.Image)
}

// Run executes the container and returns its stdout. When ctx ends first the
// named container is killed through the engine, since killing the client
// alone leaves the container running.
func (c *CLI) Run(ctx context.Context, spec RunSpec) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, c.RunArgs(spec)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	cmd.Cancel = func() error {
		c.kill(spec.Name)
		return cmd.Process.Kill()
	}

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("container %s abandoned: %w", spec.Name, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("run %s: %w", c.binary, err)
	}
	return stdout.Bytes(), nil
}

func (c *CLI) kill(name string) {
	if name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, c.binary, "kill", name).CombinedOutput()
	if err != nil {
		logger.Warn(ctx, "kill container failed",
			zap.String("container", name),
			zap.ByteString("output", bytes.TrimSpace(out)),
			zap.Error(err),
		)
	}
}
