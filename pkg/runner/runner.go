// Package runner installs a generated test file into a crate's tests
// directory and runs the crate's test command against it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/mbtestgen/mbtestgen/pkg/observability"
)

// ErrTestsFailed is returned when the test command exits non-zero
var ErrTestsFailed = errors.New("tests failed")

// DefaultTestsDir is the crate tests directory relative to the working directory
const DefaultTestsDir = "../tests"

// DefaultCommand runs the crate's test suite
var DefaultCommand = []string{"cargo", "test"}

// Options selects what to run
type Options struct {
	Source string // generated file to install
	Target string // file name inside the tests directory; picked when empty
	Keep   bool   // leave the installed copy in place
}

// Outcome reports a finished run
type Outcome struct {
	Target   string `json:"target" yaml:"target"`
	Passed   bool   `json:"passed" yaml:"passed"`
	ExitCode int    `json:"exit_code" yaml:"exit_code"`
	Kept     bool   `json:"kept" yaml:"kept"`
}

// Runner executes generated tests
type Runner struct {
	TestsDir string
	// WorkDir is where Command runs; defaults to the parent of TestsDir.
	WorkDir string
	Command []string
	Env     []string // extra variables on top of the current environment
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *zap.Logger
	Metrics *observability.Metrics

	now func() time.Time
}

// Run copies opts.Source into the tests directory and runs the test command
func (r *Runner) Run(ctx context.Context, opts Options) (*Outcome, error) {
	ctx, span := observability.StartSpan(ctx, "runner.run", attribute.String("source", opts.Source))
	out, err := r.run(ctx, opts)
	observability.EndSpan(span, err)
	return out, err
}

func (r *Runner) run(ctx context.Context, opts Options) (*Outcome, error) {
	logger := observability.ContextLogger(ctx, r.logger())

	info, err := os.Stat(opts.Source)
	if err != nil {
		return nil, fmt.Errorf("source file %s: %w", opts.Source, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source file %s is a directory", opts.Source)
	}

	if info, err := os.Stat(r.TestsDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("tests directory %s does not exist", r.TestsDir)
	}

	target := opts.Target
	if target == "" {
		target, err = r.nextTarget()
		if err != nil {
			return nil, err
		}
	}
	if filepath.Base(target) != target {
		return nil, fmt.Errorf("target %q must be a plain file name", target)
	}
	installed := filepath.Join(r.TestsDir, target)

	if err := copyFile(opts.Source, installed); err != nil {
		return nil, err
	}
	logger.Info("Installed test file", zap.String("source", opts.Source), zap.String("target", installed))

	if !opts.Keep {
		defer func() {
			if err := os.Remove(installed); err != nil {
				logger.Warn("Failed to remove test file", zap.String("target", installed), zap.Error(err))
				return
			}
			logger.Info("Removed test file from the tests directory", zap.String("target", target))
		}()
	}

	outcome := &Outcome{Target: target, Kept: opts.Keep}
	start := time.Now()
	exitCode, err := r.exec(ctx, target)
	if r.Metrics != nil {
		r.Metrics.PhaseDurationSeconds.WithLabelValues("run").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	outcome.ExitCode = exitCode
	outcome.Passed = exitCode == 0
	logger.Info("Test command finished",
		zap.String("target", target),
		zap.Int("exit_code", exitCode),
		zap.Duration("took", time.Since(start)),
	)
	if !outcome.Passed {
		return outcome, fmt.Errorf("%w: %s exited with status %d", ErrTestsFailed, strings.Join(r.command(), " "), exitCode)
	}
	return outcome, nil
}

// exec runs the test command and returns its exit status. Failing to start
// the command is an error; a non-zero exit is not.
func (r *Runner) exec(ctx context.Context, target string) (int, error) {
	argv := r.command()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.WorkDir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(filepath.Clean(r.TestsDir))
	}
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	stem := strings.TrimSuffix(target, filepath.Ext(target))
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Env = append(cmd.Env, "RUST_LOG="+stem+"=info")

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to run %s: %w", argv[0], err)
	}
	return 0, nil
}

// nextTarget returns the first entities_<date>_<n>.rs not yet present
func (r *Runner) nextTarget() (string, error) {
	date := r.clock()().Format("2006_01_02")
	for i := 1; ; i++ {
		name := fmt.Sprintf("entities_%s_%d.rs", date, i)
		_, err := os.Stat(filepath.Join(r.TestsDir, name))
		if os.IsNotExist(err) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
	}
}

func (r *Runner) command() []string {
	if len(r.Command) == 0 {
		return DefaultCommand
	}
	return r.Command
}

func (r *Runner) clock() func() time.Time {
	if r.now == nil {
		return time.Now
	}
	return r.now
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}
