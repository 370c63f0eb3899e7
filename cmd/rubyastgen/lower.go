package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/rubyastgen/internal/erb"
	"github.com/jward/rubyastgen/internal/ruby"
)

func newLowerCmd(flags *cliFlags) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "lower [template]",
		Short: "Print the Ruby lowering of an ERB template",
		Long: "Reads a template from the given file, or stdin when the argument is omitted or -, " +
			"and prints the lowered Ruby program. With --fallback, a template whose blocks do not " +
			"balance is printed in its heredoc wrapping instead of failing.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			origin := "<stdin>"
			var (
				data []byte
				err  error
			)
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				origin = args[0]
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("reading template: %w", err)
			}
			logger := newLogger(cmd.ErrOrStderr(), flags.Debug)

			var out string
			if flags.Fallback {
				var fellBack bool
				out, fellBack, err = erb.Prepare(string(data))
				if fellBack {
					logger.Warn("template fell back", "file", origin, "error", err)
				}
			} else {
				out, err = erb.Transform(string(data))
				if err != nil {
					return fmt.Errorf("%s: %w", origin, err)
				}
			}

			if check {
				if _, err := ruby.Parse(cmd.Context(), []byte(out), origin); err != nil {
					return err
				}
			}

			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&flags.Fallback, "fallback", false, "wrap templates that cannot be lowered in a heredoc")
	cmd.Flags().BoolVar(&check, "check", false, "fail when the lowered program does not parse")
	return cmd
}
