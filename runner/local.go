package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/buildfarm-dev/farmctl/internal/observability"
	"github.com/buildfarm-dev/farmctl/protocol"
)

// Result summarizes a local build run.
type Result struct {
	ExitCode int
	LogPath  string
	Duration time.Duration
}

// Local executes a job payload on this machine instead of dispatching it to
// the farm. Stdout and stderr of every step go to a combined log file.
type Local struct {
	Workdir string
	LogDir  string
	Logger  *slog.Logger
}

func NewLocal(workdir, logDir string, logger *slog.Logger) *Local {
	if logger == nil {
		logger = observability.NewLogger("runner")
	}
	return &Local{Workdir: workdir, LogDir: logDir, Logger: logger}
}

// Execute runs the payload's steps sequentially. The first failing step stops
// the run; its exit code is reported in the result, not as an error. Errors
// are reserved for environment problems (log dir, spawn failures).
func (l *Local) Execute(ctx context.Context, payload protocol.JobPayload) (Result, error) {
	steps := payload.Steps
	if len(steps) == 0 {
		return Result{}, errors.New("payload has no steps to run locally")
	}

	logDir := l.LogDir
	if logDir == "" {
		logDir = ".farmctl/logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create log dir: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("local-%d.log", time.Now().UTC().Unix()))
	logWriter, err := os.Create(logPath)
	if err != nil {
		return Result{}, fmt.Errorf("open log file: %w", err)
	}
	defer logWriter.Close()

	start := time.Now()
	for i, step := range steps {
		l.Logger.Info("running step", "event", "local_step_started", "index", i, "step", step)

		cmd := exec.CommandContext(ctx, "sh", "-c", step)
		cmd.Dir = l.Workdir
		cmd.Stdout = logWriter
		cmd.Stderr = logWriter
		cmd.Env = append(os.Environ(), flattenEnv(payload.Env)...)

		if err := cmd.Run(); err != nil {
			code := exitCode(err)
			if code < 0 {
				return Result{}, fmt.Errorf("run step %d: %w", i, err)
			}
			l.Logger.Warn("step failed", "event", "local_step_failed", "index", i, "exit_code", code)
			return Result{ExitCode: code, LogPath: logPath, Duration: time.Since(start)}, nil
		}
	}

	l.Logger.Info("local run finished", "event", "local_run_finished", "log", logPath)
	return Result{ExitCode: 0, LogPath: logPath, Duration: time.Since(start)}, nil
}

func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
