// Command stubtool stands in for the external refactor tool. It reads the
// instruction prompt and code from stdin and prints a deterministic rewrite
// of the code: trailing whitespace trimmed, tabs expanded, one final newline.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sota-6741/gemini-auto-refactor/internal/core"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		fail  string
		delay time.Duration
	)
	cmd := &cobra.Command{
		Use:           "stubtool",
		Short:         "Deterministic stand-in for the refactor tool",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if delay > 0 {
				time.Sleep(delay)
			}
			if fail != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), fail)
				return fmt.Errorf("%s", fail)
			}
			_, code := core.SplitInput(string(input))
			fmt.Fprint(cmd.OutOrStdout(), tidy(code))
			return nil
		},
	}
	cmd.Flags().StringVar(&fail, "fail", "", "print this to stderr and exit 1")
	cmd.Flags().DurationVar(&delay, "delay", 0, "sleep before answering")
	return cmd
}

func tidy(code string) string {
	lines := strings.Split(strings.TrimRight(code, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(strings.ReplaceAll(line, "\t", "    "), " ")
	}
	return strings.Join(lines, "\n") + "\n"
}
