package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"judgebox/pkg/utils/logger"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

// Docker talks to the Docker Engine API.
type Docker struct {
	cli *client.Client
}

// NewDocker connects using the DOCKER_* environment.
func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Docker{cli: cli}, nil
}

// Close releases the client.
func (d *Docker) Close() error {
	return d.cli.Close()
}

// Build sends contextDir to the legacy builder and streams its output lines to out.
func (d *Docker) Build(ctx context.Context, contextDir string, out io.Writer) error {
	buildCtx, err := tarDir(contextDir)
	if err != nil {
		return fmt.Errorf("pack build context: %w", err)
	}
	resp, err := d.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Version:     types.BuilderV1,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("image build: %w", err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read build output: %w", err)
		}
		if msg.Error != nil {
			return fmt.Errorf("image build: %s", msg.Error.Message)
		}
		if msg.Stream != "" {
			if _, err := io.WriteString(out, msg.Stream); err != nil {
				return err
			}
		}
	}
}

// Run creates, starts and waits for a container, returning its stdout.
func (d *Docker) Run(ctx context.Context, spec RunSpec) ([]byte, error) {
	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	hostCfg := &container.HostConfig{
		AutoRemove:  true,
		NetworkMode: "none",
		Mounts:      mounts,
	}
	if spec.MemoryMB > 0 {
		hostCfg.Resources.Memory = spec.MemoryMB << 20
	}

	created, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:           spec.Image,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}

	attach, err := d.cli.ContainerAttach(ctx, created.ID, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		d.remove(created.ID)
		return nil, fmt.Errorf("attach container: %w", err)
	}
	defer attach.Close()

	waitCh, errCh := d.cli.ContainerWait(ctx, created.ID, container.WaitConditionNextExit)
	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		d.remove(created.ID)
		return nil, fmt.Errorf("start container: %w", err)
	}

	var stdout, stderr bytes.Buffer
	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copied <- err
	}()

	select {
	case <-ctx.Done():
		d.kill(created.ID)
		return nil, fmt.Errorf("container %s abandoned: %w", spec.Name, ctx.Err())
	case err := <-errCh:
		if ctx.Err() != nil {
			d.kill(created.ID)
			return nil, fmt.Errorf("container %s abandoned: %w", spec.Name, ctx.Err())
		}
		return nil, fmt.Errorf("wait container: %w", err)
	case status := <-waitCh:
		if err := <-copied; err != nil {
			return nil, fmt.Errorf("read container output: %w", err)
		}
		if status.Error != nil {
			return nil, fmt.Errorf("wait container: %s", status.Error.Message)
		}
		if status.StatusCode != 0 {
			return nil, &ExitError{Code: int(status.StatusCode), Stderr: stderr.String()}
		}
		return stdout.Bytes(), nil
	}
}

func (d *Docker) kill(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()
	if err := d.cli.ContainerKill(ctx, id, "KILL"); err != nil && !client.IsErrNotFound(err) {
		logger.Warn(ctx, "kill container failed", zap.String("container", id), zap.Error(err))
	}
}

func (d *Docker) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()
	if err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		logger.Warn(ctx, "remove container failed", zap.String("container", id), zap.Error(err))
	}
}

// tarDir packs a directory tree as a build context.
func tarDir(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if entry.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
