// Package runner executes one serialized command inside a fresh container.
package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"judgebox/internal/judge/sandbox/engine"
	"judgebox/internal/judge/sandbox/image"
	"judgebox/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMemoryMB    = 100
	DefaultMountTarget = "/input"
	DefaultCommandFile = "command"
	containerPrefix    = "judge-"
)

// Config controls container runs.
type Config struct {
	MemoryMB    int64
	MountTarget string
	CommandFile string
	// TempRoot is the parent of per-run directories; empty means os.TempDir.
	TempRoot string
	// RunTimeout bounds one container run on the host side. Zero disables it.
	RunTimeout time.Duration
}

// Runner writes a command file, runs the image over it and returns stdout.
type Runner struct {
	engine engine.Engine
	cfg    Config
}

// New returns a runner with zero config fields defaulted.
func New(e engine.Engine, cfg Config) *Runner {
	if cfg.MemoryMB <= 0 {
		cfg.MemoryMB = DefaultMemoryMB
	}
	if cfg.MountTarget == "" {
		cfg.MountTarget = DefaultMountTarget
	}
	if cfg.CommandFile == "" {
		cfg.CommandFile = DefaultCommandFile
	}
	return &Runner{engine: e, cfg: cfg}
}

// StepError names the step of a run that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return "while " + e.Step + ": " + e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }

// Run executes command in a new container. The directory and the container
// are private to this call and gone when it returns.
func (r *Runner) Run(ctx context.Context, img image.Handle, command []byte) ([]byte, error) {
	dir, err := os.MkdirTemp(r.cfg.TempRoot, "judgebox-")
	if err != nil {
		return nil, &StepError{Step: "creating temp dir", Err: err}
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, r.cfg.CommandFile), command, 0o644); err != nil {
		return nil, &StepError{Step: "writing command file", Err: err}
	}

	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	spec := engine.RunSpec{
		Image:    img.String(),
		Name:     containerPrefix + uuid.NewString(),
		MemoryMB: r.cfg.MemoryMB,
		Mounts:   []engine.Mount{{Source: dir, Target: r.cfg.MountTarget, ReadOnly: true}},
	}
	start := time.Now()
	logger.Debug(ctx, "container start", zap.String("container", spec.Name), zap.String("image", spec.Image))
	out, err := r.engine.Run(ctx, spec)
	fields := []zap.Field{
		zap.String("container", spec.Name),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		var exitErr *engine.ExitError
		if errors.As(err, &exitErr) {
			fields = append(fields, zap.Int("exit_code", exitErr.Code))
		}
		logger.Warn(ctx, "container failed", append(fields, zap.Error(err))...)
		return nil, &StepError{Step: "running container", Err: err}
	}
	logger.Debug(ctx, "container finished", append(fields, zap.Int("stdout_bytes", len(out)))...)
	return out, nil
}
