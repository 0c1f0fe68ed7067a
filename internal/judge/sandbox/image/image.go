// Package image builds the sandbox image that bundles every toolchain and the
// in-image runner.
package image

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"judgebox/internal/judge/sandbox/engine"
	"judgebox/internal/judge/sandbox/observer"
	"judgebox/pkg/utils/logger"

	"go.uber.org/zap"
)

// Handle identifies a built image.
type Handle string

func (h Handle) String() string { return string(h) }

var builtMarker = regexp.MustCompile(`Successfully built ([a-f0-9]+)`)

const maxLineSize = 1 << 20

// ErrNoImageID means the build finished without printing an image id.
var ErrNoImageID = errors.New("build output has no image id")

// Provisioner builds the image once per process.
type Provisioner struct {
	engine     engine.Engine
	contextDir string
	metrics    observer.MetricsRecorder
}

// NewProvisioner returns a provisioner for the build context at contextDir.
func NewProvisioner(e engine.Engine, contextDir string, metrics observer.MetricsRecorder) *Provisioner {
	if metrics == nil {
		metrics = observer.Noop{}
	}
	return &Provisioner{engine: e, contextDir: contextDir, metrics: metrics}
}

// Build runs the engine build, logs every output line at debug level and
// returns the id from the first "Successfully built" line.
func (p *Provisioner) Build(ctx context.Context) (Handle, error) {
	handle, err := p.build(ctx)
	p.metrics.ObserveBuild(ctx, err == nil)
	return handle, err
}

func (p *Provisioner) build(ctx context.Context) (Handle, error) {
	pr, pw := io.Pipe()
	buildErr := make(chan error, 1)
	go func() {
		err := p.engine.Build(ctx, p.contextDir, pw)
		pw.CloseWithError(err)
		buildErr <- err
	}()

	var handle Handle
	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug(ctx, "image build", zap.String("line", line))
		if handle == "" {
			if m := builtMarker.FindStringSubmatch(line); m != nil {
				handle = Handle(m[1])
			}
		}
	}
	scanErr := scanner.Err()
	// Unblock the builder if scanning stopped early.
	pr.CloseWithError(errors.New("build output reader closed"))

	if err := <-buildErr; err != nil {
		return "", fmt.Errorf("build %s: %w", p.contextDir, err)
	}
	if scanErr != nil {
		return "", fmt.Errorf("read build output: %w", scanErr)
	}
	if handle == "" {
		return "", ErrNoImageID
	}
	logger.Info(ctx, "sandbox image built", zap.String("image", handle.String()))
	return handle, nil
}
