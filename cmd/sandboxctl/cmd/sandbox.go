package cmd

import (
	"fmt"
	"os"

	"judgebox/internal/judge/sandbox/command"
	"judgebox/internal/judge/sandbox/image"
	"judgebox/internal/judge/sandbox/language"
	"judgebox/internal/judge/sandbox/observer"
	"judgebox/internal/judge/sandbox/result"
	"judgebox/internal/judge/sandbox/testcase"

	"github.com/spf13/cobra"
)

func newBuildCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the sandbox image",
		Long:  "Build the sandbox image from the build context and print its handle.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.sandboxConfig(cmd)
			if err != nil {
				return err
			}
			eng, err := newEngine(cfg.Config)
			if err != nil {
				return err
			}
			if c, ok := eng.(interface{ Close() error }); ok {
				defer c.Close()
			}
			handle, err := image.NewProvisioner(eng, cfg.BuildContext, observer.Noop{}).Build(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), handle)
			return nil
		},
	}
}

func newVersionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "Print the toolchain version table",
		Long:  "Build the sandbox image, ask the runner for its toolchain versions and print one line per language.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sb, done, err := opts.openSandbox(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer done()
			out := cmd.OutOrStdout()
			for _, l := range language.All() {
				fmt.Fprintf(out, "%-8s %s\n", l.ID(), sb.Version(l))
			}
			return nil
		},
	}
}

func newTestCmd(opts *rootOptions) *cobra.Command {
	var (
		lang       string
		timeLimit  uint64
		codePath   string
		testsPath  string
		judgerPath string
	)
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run code against a test corpus",
		Long: `Run one submission in the sandbox and print the encoded verdict.

The tests file uses the corpus format: cases separated by a line "===",
input and expected output separated by a line "--".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := language.Parse(lang)
			if err != nil {
				return err
			}
			code, err := os.ReadFile(codePath)
			if err != nil {
				return fmt.Errorf("read code: %w", err)
			}
			tests, err := os.ReadFile(testsPath)
			if err != nil {
				return fmt.Errorf("read tests: %w", err)
			}
			if _, err := testcase.Count(string(tests)); err != nil {
				return err
			}
			t := &command.Test{Language: l, TimeLimit: timeLimit, Code: string(code), Tests: string(tests)}
			if judgerPath != "" {
				src, err := os.ReadFile(judgerPath)
				if err != nil {
					return fmt.Errorf("read judger: %w", err)
				}
				judger := string(src)
				t.CustomJudger = &judger
			}

			sb, done, err := opts.openSandbox(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer done()
			resp, err := sb.Test(cmd.Context(), t)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Encode(resp))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&lang, "language", "", "language id, name or ordinal")
	f.Uint64Var(&timeLimit, "time-limit", 1000, "per-case time limit in milliseconds")
	f.StringVar(&codePath, "code", "", "source file")
	f.StringVar(&testsPath, "tests", "", "test corpus file")
	f.StringVar(&judgerPath, "judger", "", "custom judger source file")
	_ = cmd.MarkFlagRequired("language")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("tests")
	return cmd
}
