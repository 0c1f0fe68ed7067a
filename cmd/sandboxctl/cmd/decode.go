package cmd

import (
	"fmt"
	"os"

	"judgebox/internal/judge/sandbox/command"
	"judgebox/internal/judge/sandbox/result"
	"judgebox/internal/judge/sandbox/testcase"

	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <encoded>",
		Short: "Decode a stored verdict",
		Long:  "Decode a stored verdict string and print its simple outcome and every case.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			simple, err := result.DecodeSimple(args[0])
			if err != nil {
				return err
			}
			resp, err := result.Decode(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "simple: %s\n", simple)
			switch v := resp.(type) {
			case result.InvalidProgram:
				fmt.Fprintf(out, "reason: %s\n", v.Reason)
			case result.Ok:
				for i, c := range v.Cases {
					fmt.Fprintf(out, "case %d: %s memory=%d time=%d\n", i+1, c.Kind, c.MemoryUsage, c.Time)
				}
			}
			return nil
		},
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <command-file>",
		Short: "Decode a command file",
		Long:  "Decode a CBOR command file as written into a container's input directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			c, err := command.DecodeCommand(raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "command: %s\n", c.Name())
			switch v := c.(type) {
			case command.Test:
				fmt.Fprintf(out, "language: %s\n", v.Language.ID())
				fmt.Fprintf(out, "time_limit: %d\n", v.TimeLimit)
				if n, err := testcase.Count(v.Tests); err == nil {
					fmt.Fprintf(out, "cases: %d\n", n)
				} else {
					fmt.Fprintf(out, "cases: invalid (%v)\n", err)
				}
				fmt.Fprintf(out, "custom_judger: %t\n", v.CustomJudger != nil)
				fmt.Fprintf(out, "code:\n%s\n", v.Code)
			case command.ValidateJudger:
				fmt.Fprintf(out, "judger:\n%s\n", v.Judger)
			}
			return nil
		},
	}
}
