// Package cmd implements the sandboxctl commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"judgebox/internal/judge/sandbox"
	"judgebox/internal/judge/sandbox/engine"
	"judgebox/pkg/utils/logger"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newEngine is swapped out by tests.
var newEngine = engine.New

type rootOptions struct {
	configPath   string
	logLevel     string
	engineKind   string
	binary       string
	buildContext string
	extraRunArgs string
	memoryMB     int64
	runTimeout   time.Duration
	workers      int
}

// NewRootCmd builds the sandboxctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "sandboxctl",
		Short: "Operate the judge sandbox",
		Long: `sandboxctl builds the judge sandbox image and drives it by hand:
list toolchain versions, run a submission against a corpus, and decode
stored verdicts or command files.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Config{Level: opts.logLevel, Format: "console", OutputPath: "stderr"})
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "YAML file with a sandbox section")
	f.StringVar(&opts.logLevel, "log-level", "warn", "debug, info, warn or error")
	f.StringVar(&opts.engineKind, "engine", "", "container engine: cli or api")
	f.StringVar(&opts.binary, "binary", "", "docker binary used by the cli engine")
	f.StringVar(&opts.buildContext, "context", "", "image build context directory")
	f.StringVar(&opts.extraRunArgs, "extra-run-args", "", "extra arguments for docker run")
	f.Int64Var(&opts.memoryMB, "memory", 0, "container memory ceiling in MiB")
	f.DurationVar(&opts.runTimeout, "run-timeout", 0, "abandon a container after this long")
	f.IntVar(&opts.workers, "workers", 0, "concurrent containers")

	root.AddCommand(
		newBuildCmd(opts),
		newVersionsCmd(opts),
		newTestCmd(opts),
		newDecodeCmd(),
		newInspectCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// sandboxConfig reads the sandbox section of --config, then applies any flag
// the user set explicitly.
func (o *rootOptions) sandboxConfig(cmd *cobra.Command) (sandbox.Config, error) {
	var file struct {
		Sandbox sandbox.Config `yaml:"sandbox"`
	}
	if o.configPath != "" {
		data, err := os.ReadFile(o.configPath)
		if err != nil {
			return sandbox.Config{}, fmt.Errorf("read config file failed: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return sandbox.Config{}, fmt.Errorf("parse config file failed: %w", err)
		}
	}
	cfg := file.Sandbox

	flags := cmd.Flags()
	if flags.Changed("engine") {
		cfg.Kind = o.engineKind
	}
	if flags.Changed("binary") {
		cfg.Binary = o.binary
	}
	if flags.Changed("context") {
		cfg.BuildContext = o.buildContext
	}
	if flags.Changed("extra-run-args") {
		cfg.ExtraRunArgs = o.extraRunArgs
	}
	if flags.Changed("memory") {
		cfg.MemoryMB = o.memoryMB
	}
	if flags.Changed("run-timeout") {
		cfg.RunTimeout = o.runTimeout
	}
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}

	if cfg.BuildContext == "" {
		cfg.BuildContext = "sandbox"
	}
	return cfg, nil
}

// openSandbox builds the image and loads the version table.
func (o *rootOptions) openSandbox(ctx context.Context, cmd *cobra.Command) (*sandbox.Sandbox, func(), error) {
	cfg, err := o.sandboxConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	eng, err := newEngine(cfg.Config)
	if err != nil {
		return nil, nil, err
	}
	closeEngine := func() {
		if c, ok := eng.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
	sb, err := sandbox.New(ctx, cfg, eng)
	if err != nil {
		closeEngine()
		return nil, nil, err
	}
	return sb, closeEngine, nil
}
