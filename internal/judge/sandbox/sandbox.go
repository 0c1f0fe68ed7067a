// Package sandbox runs untrusted code in disposable containers built from one
// image that carries every toolchain and the in-image runner.
//
// The image is built once by New. Every call after that gets its own command
// directory and its own container, and runs on a bounded worker pool.
package sandbox

import (
	"context"
	"errors"
	"time"

	"judgebox/internal/judge/sandbox/command"
	"judgebox/internal/judge/sandbox/engine"
	"judgebox/internal/judge/sandbox/image"
	"judgebox/internal/judge/sandbox/language"
	"judgebox/internal/judge/sandbox/observer"
	"judgebox/internal/judge/sandbox/result"
	"judgebox/internal/judge/sandbox/runner"
	appErr "judgebox/pkg/errors"
	"judgebox/pkg/utils/logger"

	"go.uber.org/zap"
)

// Config configures the sandbox.
type Config struct {
	engine.Config `yaml:",inline"`

	BuildContext string        `yaml:"buildContext"`
	MemoryMB     int64         `yaml:"memoryMB"`
	MountTarget  string        `yaml:"mountTarget"`
	CommandFile  string        `yaml:"commandFile"`
	TempRoot     string        `yaml:"tempRoot"`
	Workers      int           `yaml:"workers"`
	RunTimeout   time.Duration `yaml:"runTimeout"`
}

// Option customizes a Sandbox.
type Option func(*Sandbox)

// WithMetrics sets the metrics recorder.
func WithMetrics(m observer.MetricsRecorder) Option {
	return func(s *Sandbox) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Sandbox is safe for concurrent use.
type Sandbox struct {
	image    image.Handle
	versions []string
	runner   *runner.Runner
	pool     *pool
	metrics  observer.MetricsRecorder
}

// New builds the image and loads the version table. Callers treat an error as fatal.
func New(ctx context.Context, cfg Config, e engine.Engine, opts ...Option) (*Sandbox, error) {
	s := &Sandbox{metrics: observer.Noop{}}
	for _, opt := range opts {
		opt(s)
	}

	handle, err := image.NewProvisioner(e, cfg.BuildContext, s.metrics).Build(ctx)
	if err != nil {
		return nil, appErr.Chain(err, appErr.JudgeSystemError, "building image")
	}
	s.image = handle
	s.runner = runner.New(e, runner.Config{
		MemoryMB:    cfg.MemoryMB,
		MountTarget: cfg.MountTarget,
		CommandFile: cfg.CommandFile,
		TempRoot:    cfg.TempRoot,
		RunTimeout:  cfg.RunTimeout,
	})
	s.pool = newPool(cfg.Workers, s.metrics)

	out, err := s.exec(ctx, command.Versions{})
	if err != nil {
		return nil, chain(err, "loading versions")
	}
	versions, err := command.DecodeVersions(out)
	if err != nil {
		return nil, appErr.Chain(err, appErr.JudgeSystemError, "loading versions")
	}
	if len(versions) < language.Count {
		return nil, appErr.Newf(appErr.JudgeSystemError,
			"while loading versions: runner reported %d versions for %d languages", len(versions), language.Count)
	}
	s.versions = versions
	for _, l := range language.All() {
		logger.Info(ctx, "sandbox toolchain", zap.String("language", l.ID()), zap.String("version", versions[l]))
	}
	return s, nil
}

// Test runs the code against the tests and returns the per-case verdict.
// A program that does not compile is an InvalidProgram verdict, not an error.
func (s *Sandbox) Test(ctx context.Context, t *command.Test) (result.TestResponse, error) {
	if t == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("test command is nil")
	}
	if !t.Language.Valid() {
		return nil, appErr.New(appErr.LanguageNotSupported).WithDetail("language", int(t.Language))
	}
	out, err := s.exec(ctx, *t)
	if err != nil {
		return nil, chain(err, "testing submission")
	}
	resp, err := command.DecodeTestResponse(out)
	if err != nil {
		return nil, appErr.Chain(appErr.Chain(err, appErr.JudgeSystemError, "decoding response"),
			appErr.JudgeSystemError, "testing submission")
	}
	return resp, nil
}

// ValidateJudger checks custom judger source. An empty message means valid.
func (s *Sandbox) ValidateJudger(ctx context.Context, src string) (string, error) {
	out, err := s.exec(ctx, command.ValidateJudger{Judger: src})
	if err != nil {
		return "", chain(err, "validating judger")
	}
	msg, err := command.DecodeJudgerValidation(out)
	if err != nil {
		return "", appErr.Chain(appErr.Chain(err, appErr.JudgeSystemError, "decoding response"),
			appErr.JudgeSystemError, "validating judger")
	}
	return msg, nil
}

// Versions returns a copy of the version table, indexed by language ordinal.
func (s *Sandbox) Versions() []string {
	return append([]string(nil), s.versions...)
}

// Version returns the toolchain version of l.
func (s *Sandbox) Version(l language.Language) string {
	if !l.Valid() || int(l) >= len(s.versions) {
		return ""
	}
	return s.versions[l]
}

// Image returns the handle of the built image.
func (s *Sandbox) Image() image.Handle {
	return s.image
}

// exec encodes cmd and runs it on the pool.
func (s *Sandbox) exec(ctx context.Context, cmd command.Command) ([]byte, error) {
	payload, err := command.Encode(cmd)
	if err != nil {
		return nil, appErr.Chain(err, appErr.JudgeSystemError, "encoding command")
	}
	start := time.Now()
	out, err := s.pool.do(ctx, func(ctx context.Context) ([]byte, error) {
		return s.runner.Run(ctx, s.image, payload)
	})
	outcome := observer.OutcomeOK
	switch {
	case err == nil:
	case ctx.Err() != nil:
		outcome = observer.OutcomeCancelled
	default:
		outcome = observer.OutcomeError
	}
	s.metrics.ObserveContainerRun(ctx, cmd.Name(), outcome, time.Since(start))
	return out, err
}

// chain maps a run failure to the judge system error, keeping the runner step.
func chain(err error, step string) error {
	if appErr.Is(err, appErr.JudgeSystemError) {
		return appErr.Chain(err, appErr.JudgeSystemError, step)
	}
	var stepErr *runner.StepError
	if errors.As(err, &stepErr) {
		err = appErr.Chain(stepErr.Err, appErr.JudgeSystemError, stepErr.Step)
	}
	return appErr.Chain(err, appErr.JudgeSystemError, step)
}
