package blender

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/logging"
)

// tailLines bounds how much process output is retained for diagnostics.
const tailLines = 200

// Sentinel errors returned by Run. Task code maps them onto the shared
// failure taxonomy.
var (
	// ErrTimedOut marks a run killed after exceeding its deadline.
	ErrTimedOut = errors.New("blender run timed out")
	// ErrMissingResult marks a clean exit that produced no output file.
	ErrMissingResult = errors.New("blender produced no result")
)

// Datafile is the JSON side channel handed to the background script as the
// single argument after the "--" separator. Fields the script does not need
// stay empty and are omitted from the payload.
type Datafile struct {
	FilePath       string         `json:"file_path,omitempty"`
	ResultFilepath string         `json:"result_filepath,omitempty"`
	ResultFolder   string         `json:"result_folder,omitempty"`
	AssetData      map[string]any `json:"asset_data,omitempty"`
	APIKey         string         `json:"api_key,omitempty"`
	TempFolder     string         `json:"temp_folder,omitempty"`
	TargetFormat   string         `json:"target_format,omitempty"`
}

// Invocation describes one headless Blender run.
type Invocation struct {
	Binary   string
	Script   string
	Datafile Datafile
	// TemplateBlend, when set, is opened before the script runs instead of
	// the factory startup scene.
	TemplateBlend string
	// Env entries are appended to the inherited environment as KEY=VALUE.
	Env []string
	// WorkDir receives the generated datafile and is the process cwd.
	WorkDir string
	Timeout time.Duration
	// ExpectedOutputs are paths that must exist and be non-empty after a
	// clean exit. Leave empty for side-effect-only scripts.
	ExpectedOutputs []string
}

// Result reports how a run ended regardless of success.
type Result struct {
	ExitCode   int
	Duration   time.Duration
	StdoutTail []string
	StderrTail []string
	// TimedOut is set alongside ErrTimedOut for callers that keep the
	// partial result.
	TimedOut bool
}

// Executor abstracts process execution for testability.
type Executor interface {
	Run(ctx context.Context, spec CommandSpec, onStdout, onStderr func(string)) error
}

// CommandSpec is the concrete process an Executor launches.
type CommandSpec struct {
	Binary string
	Args   []string
	Env    []string
	Dir    string
}

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithLogger attaches a logger for per-run diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logging.WithComponent(logger, "blender")
		}
	}
}

// Runner launches headless Blender with a Python script and the datafile
// side channel, enforcing the deadline and verifying declared outputs.
type Runner struct {
	exec   Executor
	logger *slog.Logger
}

// NewRunner constructs a runner backed by real process execution.
func NewRunner(opts ...Option) *Runner {
	runner := &Runner{exec: commandExecutor{}}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// Run executes one invocation and blocks until it finishes or times out.
// The returned Result is populated even on failure so callers can log the
// output tail.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Result, error) {
	if inv.Binary == "" {
		return Result{}, errors.New("blender binary required")
	}
	if inv.Script == "" {
		return Result{}, errors.New("background script required")
	}
	if inv.WorkDir == "" {
		return Result{}, errors.New("work directory required")
	}

	datafilePath, err := writeDatafile(inv.WorkDir, inv.Datafile)
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(datafilePath)

	args := []string{"--background", "--factory-startup", "-noaudio"}
	if inv.TemplateBlend != "" {
		args = append(args, inv.TemplateBlend)
	}
	args = append(args, "--python", inv.Script, "--", datafilePath)

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	stdout := newTailBuffer(tailLines)
	stderr := newTailBuffer(tailLines)
	spec := CommandSpec{
		Binary: inv.Binary,
		Args:   args,
		Env:    append(os.Environ(), inv.Env...),
		Dir:    inv.WorkDir,
	}

	if r.logger != nil {
		r.logger.Info("launching blender",
			"binary", inv.Binary,
			"script", filepath.Base(inv.Script),
			"timeout", inv.Timeout)
	}

	started := time.Now()
	runErr := r.exec.Run(runCtx, spec, stdout.Add, stderr.Add)
	result := Result{
		Duration:   time.Since(started),
		StdoutTail: stdout.Lines(),
		StderrTail: stderr.Lines(),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			return result, fmt.Errorf("%w after %s", ErrTimedOut, inv.Timeout)
		}
		return result, fmt.Errorf("blender exited with status %d: %w", result.ExitCode, runErr)
	}

	for _, output := range inv.ExpectedOutputs {
		if err := verifyOutput(output); err != nil {
			return result, err
		}
	}
	if r.logger != nil {
		r.logger.Info("blender finished", "duration", result.Duration.Round(time.Millisecond))
	}
	return result, nil
}

func writeDatafile(dir string, data Datafile) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode datafile: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("datafile-%s.json", uuid.NewString()))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write datafile: %w", err)
	}
	return path, nil
}

func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMissingResult, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrMissingResult, path)
	}
	return nil
}

// tailBuffer keeps the last n lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	lines []string
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.limit {
		b.lines = b.lines[len(b.lines)-b.limit:]
	}
}

func (b *tailBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, spec CommandSpec, onStdout, onStderr func(string)) error {
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...) //nolint:gosec
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	configureProcess(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start blender: %w", err)
	}

	var wg sync.WaitGroup
	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if forward != nil {
				forward(scanner.Text())
			}
		}
	}
	wg.Add(2)
	go scan(stdout, onStdout)
	go scan(stderr, onStderr)
	wg.Wait()

	return cmd.Wait()
}
