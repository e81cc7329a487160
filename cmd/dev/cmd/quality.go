package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"

	"github.com/mklimuk/biosignals/config"
)

// emulatedPackages run against bustest and need neither a board nor an adapter.
var emulatedPackages = []string{
	"./bustest/...",
	"./register/...",
	"./power/...",
	"./session/...",
	"./device/...",
	"./acquire/...",
	"./config/...",
	"./gobotio/...",
}

func emulatedTestArgs(run string) []string {
	args := []string{"test", "-race", "-count=1"}
	if run != "" {
		args = append(args, "-run", run)
	}
	return append(args, emulatedPackages...)
}

func goTest(ctx context.Context, args []string) error {
	slog.Info("running go", "args", args)
	gt := exec.CommandContext(ctx, "go", args...)
	gt.Stdout = os.Stdout
	gt.Stderr = os.Stderr
	return gt.Run()
}

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run tests",
		Long:  "Run the whole test suite, or with --emulated only the driver and session suites running on the emulated bus (with the race detector)",
		RunE: func(cmd *cobra.Command, args []string) error {
			emulated, err := cmd.Flags().GetBool("emulated")
			if err != nil {
				return fmt.Errorf("could not get emulated flag: %w", err)
			}
			if emulated {
				run, _ := cmd.Flags().GetString("run")
				if err := goTest(cmd.Context(), emulatedTestArgs(run)); err != nil {
					return fmt.Errorf("emulated bus tests failed: %w", err)
				}
				return nil
			}
			if err := test.Test(); err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Bool("emulated", false, "run only the suites driving the emulated bus")
	cmd.Flags().String("run", "", "test name pattern passed to go test -run")
	return cmd
}

func LintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Lint()
			if err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
	return cmd
}

// acqStep is one invocation of the acq binary during a hardware run.
type acqStep struct {
	Name string
	Args []string
}

// acqSteps checks every configured device, initializes it and finally
// streams limit samples of the session's default source into out.
func acqSteps(cfgPath string, cfg config.Session, limit int, out string) []acqStep {
	var steps []acqStep
	for _, d := range cfg.Devices {
		steps = append(steps,
			acqStep{Name: "check " + d.Name, Args: []string{"--config", cfgPath, "check", "--device", d.Name}},
			acqStep{Name: "init " + d.Name, Args: []string{"--config", cfgPath, "init", "--device", d.Name}},
		)
	}
	return append(steps, acqStep{
		Name: "stream",
		Args: []string{"--config", cfgPath, "stream", "--no-header", "--limit", strconv.Itoa(limit), "--output", out},
	})
}

func countRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var n int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			n++
		}
	}
	return n, sc.Err()
}

func runAcq(ctx context.Context, bin string, cfgPath string, limit int) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("could not load session config: %w", err)
	}
	dir, err := os.MkdirTemp("", "acq-integ")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "samples.csv")

	for _, step := range acqSteps(cfgPath, cfg, limit, out) {
		slog.Info("running acq", "step", step.Name)
		acq := exec.CommandContext(ctx, bin, step.Args...)
		acq.Stdout = os.Stdout
		acq.Stderr = os.Stderr
		if err := acq.Run(); err != nil {
			return fmt.Errorf("acq %s failed: %w", step.Name, err)
		}
	}
	rows, err := countRows(out)
	if err != nil {
		return fmt.Errorf("could not read streamed samples: %w", err)
	}
	if rows != limit {
		return fmt.Errorf("expected %d streamed samples, got %d", limit, rows)
	}
	slog.Info("hardware run finished", "samples", rows)
	return nil
}

func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run integration testing",
		Long:  "Run the integration suite, or with --config drive the built acq binary against the configured devices on a board",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				if err := test.Integ(); err != nil {
					return fmt.Errorf("failed to run integration testing: %w", err)
				}
				return nil
			}
			bin, _ := cmd.Flags().GetString("bin")
			limit, err := cmd.Flags().GetInt("samples")
			if err != nil {
				return fmt.Errorf("could not get samples flag: %w", err)
			}
			if limit <= 0 {
				return fmt.Errorf("samples must be positive, got %d", limit)
			}
			return runAcq(cmd.Context(), bin, cfgPath, limit)
		},
	}
	cmd.Flags().String("config", "", "acq session configuration of the board under test")
	cmd.Flags().String("bin", "dist/acq", "acq binary to drive")
	cmd.Flags().Int("samples", 100, "number of samples the stream step must deliver")
	return cmd
}
