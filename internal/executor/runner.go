package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	apperrors "flexbackup-manager/internal/errors"
	"flexbackup-manager/internal/logging"
	"flexbackup-manager/internal/schedule"
)

// DefaultCommand is the backup executable driven by the scheduler
const DefaultCommand = "flexbackup"

const defaultTailLines = 20

// Invocation describes one call of the backup executable
type Invocation struct {
	Set        string
	Level      schedule.Level
	ConfigPath string
	DryRun     bool
	// LogPath receives the combined output; empty disables the run log.
	LogPath string
}

// Result is the outcome of an invocation
type Result struct {
	Set       string         `json:"set"`
	Level     schedule.Level `json:"level"`
	ExitCode  int            `json:"exit_code"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	LogPath   string         `json:"log_path,omitempty"`
	Tail      []string       `json:"tail,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Runner runs the backup executable
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}

// CommandRunner runs the executable as a child process and waits for it
type CommandRunner struct {
	Command   string
	ExtraArgs []string
	// Timeout bounds a single invocation; zero means no limit.
	Timeout   time.Duration
	TailLines int

	logger *logging.Logger
}

// NewCommandRunner creates a runner for command
func NewCommandRunner(command string, extraArgs []string, timeout time.Duration, logger *logging.Logger) *CommandRunner {
	if command == "" {
		command = DefaultCommand
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &CommandRunner{
		Command:   command,
		ExtraArgs: extraArgs,
		Timeout:   timeout,
		TailLines: defaultTailLines,
		logger:    logger,
	}
}

// BuildArgs returns the executable arguments for inv
func (r *CommandRunner) BuildArgs(inv Invocation) []string {
	var args []string
	if inv.DryRun {
		args = append(args, "-n")
	}
	args = append(args, "-c", inv.ConfigPath, "-level", string(inv.Level), "-set", inv.Set)
	return append(args, r.ExtraArgs...)
}

// Run executes inv. A non-zero exit returns both the result and an
// executor error.
func (r *CommandRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := r.BuildArgs(inv)
	result := &Result{
		Set:       inv.Set,
		Level:     inv.Level,
		StartedAt: time.Now(),
		LogPath:   inv.LogPath,
		ExitCode:  -1,
	}

	log := r.logger.With(map[string]interface{}{
		"set":    inv.Set,
		"level":  string(inv.Level),
		"run_id": logging.RunIDFromContext(ctx),
	})
	log.Infof("Running command: %s %s", r.Command, strings.Join(args, " "))

	var sink io.Writer = io.Discard
	if inv.LogPath != "" {
		f, err := openRunLog(inv.LogPath)
		if err != nil {
			return result, apperrors.NewFilesystemError("Failed to open run log", err).
				WithContext("path", inv.LogPath)
		}
		defer f.Close()
		fmt.Fprintf(f, "INFO ==> Running command: %s %s\n", r.Command, strings.Join(args, " "))
		sink = f
	}

	cmd := exec.CommandContext(ctx, r.Command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return result, apperrors.NewExecutorError("Failed to attach to executor output", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		result.Error = err.Error()
		if errors.Is(err, exec.ErrNotFound) {
			return result, apperrors.NewConfigurationError(fmt.Sprintf("Executable %s not found", r.Command), err)
		}
		return result, apperrors.NewExecutorError(fmt.Sprintf("Failed to start %s", r.Command), err)
	}

	result.Tail = r.stream(stdout, sink, log)
	waitErr := cmd.Wait()
	result.Duration = time.Since(result.StartedAt)
	result.ExitCode = cmd.ProcessState.ExitCode()

	if waitErr != nil {
		result.Error = waitErr.Error()
		appErr := apperrors.NewErrorClassifier().ClassifyError(waitErr)
		if ctx.Err() != nil {
			appErr = apperrors.NewErrorClassifier().ClassifyError(ctx.Err())
		}
		appErr = appErr.WithContext("set", inv.Set).WithContext("level", string(inv.Level))
		r.logger.LogExecutorRun(inv.Set, string(inv.Level), result.ExitCode, result.Duration, appErr)
		return result, appErr
	}

	r.logger.LogExecutorRun(inv.Set, string(inv.Level), result.ExitCode, result.Duration, nil)
	return result, nil
}

// stream copies the child output line by line into the logger and sink and
// returns the last lines seen.
func (r *CommandRunner) stream(src io.Reader, sink io.Writer, log *logging.Logger) []string {
	limit := r.TailLines
	if limit <= 0 {
		limit = defaultTailLines
	}
	tail := make([]string, 0, limit)

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(sink, line)
		log.Info(line)

		if len(tail) == limit {
			tail = tail[1:]
		}
		tail = append(tail, line)
	}
	if err := scanner.Err(); err != nil {
		log.Warnf("Executor output truncated: %v", err)
		// drain so the child never blocks on a full pipe
		io.Copy(sink, src)
	}
	return tail
}

func openRunLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
}
