package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mbtestgen/mbtestgen/pkg/generator"
	"github.com/mbtestgen/mbtestgen/pkg/runner"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a generated test file with cargo",
		Long: `Copies the generated test file into the crate's tests directory, runs
cargo test with RUST_LOG scoped to that file and removes the copy afterwards
unless --keep is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd)
		},
	}

	cmd.Flags().StringP("source", "s", generator.DefaultOutput, "Generated test file to run")
	cmd.Flags().StringP("target", "t", "", "File name inside the tests directory (default entities_<date>_<n>.rs)")
	cmd.Flags().BoolP("keep", "k", false, "Keep the test file in the tests directory")
	cmd.Flags().String("tests-dir", runner.DefaultTestsDir, "The crate's tests directory")

	return cmd
}

func runRun(cmd *cobra.Command) error {
	s, err := newSession(cmd, "run")
	if err != nil {
		return err
	}

	source, _ := cmd.Flags().GetString("source")
	target, _ := cmd.Flags().GetString("target")
	keep, _ := cmd.Flags().GetBool("keep")

	r := &runner.Runner{
		TestsDir: s.cfg.TestsDir,
		Stdout:   cmd.OutOrStdout(),
		Stderr:   cmd.ErrOrStderr(),
		Logger:   s.base,
		Metrics:  s.metrics,
	}
	outcome, err := r.Run(s.ctx, runner.Options{Source: source, Target: target, Keep: keep})
	if outcome != nil {
		if perr := s.out.Print(outcomeTable{*outcome}); perr != nil && err == nil {
			err = perr
		}
	}
	return s.finish(err)
}

type outcomeTable struct {
	runner.Outcome `yaml:",inline"`
}

func (o outcomeTable) Headers() []string {
	return []string{"TARGET", "PASSED", "EXIT CODE", "KEPT"}
}

func (o outcomeTable) Rows() [][]string {
	return [][]string{{
		o.Target,
		strconv.FormatBool(o.Passed),
		strconv.Itoa(o.ExitCode),
		strconv.FormatBool(o.Kept),
	}}
}
