package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrTimeout is returned when an invocation outlives its timeout. The process tree has
	// been killed by the time it is returned.
	ErrTimeout = errors.New("process timed out")
	// ErrStart is returned when the command could not be spawned at all.
	ErrStart = errors.New("process failed to start")
)

const (
	defaultMaxLines     = 500
	defaultDrainTimeout = 2 * time.Second
	maxLineBytes        = 64 * 1024
)

// Invocation describes one external command. It is built per call and never persisted.
type Invocation struct {
	Args    []string          // Logical argv, mapped through Platform.BuildCommand
	Dir     string            // Working directory, empty for the current one
	Env     map[string]string // Overlay on the current environment
	Timeout time.Duration     // Zero means unbounded; the context still applies
	Tag     string            // Prefix for logged output lines
	Quiet   bool              // Do not log output lines, only capture them
}

// Result is the outcome of a finished (or killed) invocation.
type Result struct {
	Output    string // Combined stdout/stderr, last MaxLines lines
	ExitCode  int    // -1 when the process was killed or never started
	Duration  time.Duration
	Truncated bool // Earlier lines were dropped from Output
}

// Success reports whether the process exited with status zero.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// LineHandler receives every output line as it is produced.
type LineHandler func(ctx context.Context, tag, line string)

// Runner executes external commands with merged output capture and forced termination on
// timeout. It holds no mutable state, so one Runner serves concurrent callers.
type Runner struct {
	platform     Platform
	maxLines     int
	drainTimeout time.Duration
	onLine       LineHandler
}

// Option configures a Runner.
type Option func(*Runner)

// WithPlatform overrides the detected platform.
func WithPlatform(p Platform) Option {
	return func(r *Runner) { r.platform = p }
}

// WithMaxLines bounds how many trailing output lines are kept in Result.Output.
func WithMaxLines(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxLines = n
		}
	}
}

// WithLineHandler replaces the default handler, which logs each line at info level.
func WithLineHandler(h LineHandler) Option {
	return func(r *Runner) { r.onLine = h }
}

// NewRunner creates a Runner for the current platform.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		platform:     CurrentPlatform(),
		maxLines:     defaultMaxLines,
		drainTimeout: defaultDrainTimeout,
		onLine:       logLine,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Platform returns the platform the runner builds commands for.
func (r *Runner) Platform() Platform {
	return r.platform
}

// Run executes inv and waits for it. A non-zero exit is not an error: inspect
// Result.ExitCode. Errors are reserved for spawn failures, ErrTimeout and context
// cancellation; in the latter two cases the whole process tree is killed first.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Result, error) {
	if len(inv.Args) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("%w: empty command", ErrStart)
	}

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	argv := r.platform.BuildCommand(inv.Args...)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = mergeEnv(os.Environ(), inv.Env, r.platform.IsWindows())
	prepareCommand(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%w: create output pipe: %v", ErrStart, err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	started := time.Now()
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return Result{ExitCode: -1}, fmt.Errorf("%w: %s: %v", ErrStart, argv[0], err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	tail := newLineTail(r.maxLines)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		r.consume(ctx, pr, inv, tail)
	}()

	waitErr := cmd.Wait()

	// A grandchild may keep the pipe open after the direct child exits.
	select {
	case <-drained:
	case <-time.After(r.drainTimeout):
		pr.Close()
		<-drained
	}
	pr.Close()

	res := Result{
		Output:    tail.String(),
		ExitCode:  cmd.ProcessState.ExitCode(),
		Duration:  time.Since(started),
		Truncated: tail.truncated(),
	}

	if runErr := runCtx.Err(); runErr != nil {
		if ctx.Err() == nil && errors.Is(runErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("%w after %s: %s", ErrTimeout, inv.Timeout, strings.Join(inv.Args, " "))
		}
		return res, ctx.Err()
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("wait for %s: %w", argv[0], waitErr)
		}
	}
	return res, nil
}

func (r *Runner) consume(ctx context.Context, src io.Reader, inv Invocation, tail *lineTail) {
	br := bufio.NewReaderSize(src, maxLineBytes)
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if room := maxLineBytes - len(line); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			line = append(line, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if len(line) > 0 {
			text := strings.TrimRight(string(line), "\r\n")
			tail.add(text)
			if !inv.Quiet && r.onLine != nil {
				r.onLine(ctx, inv.Tag, text)
			}
			line = line[:0]
		}
		if err != nil {
			return
		}
	}
}

func logLine(ctx context.Context, tag, line string) {
	log.Ctx(ctx).Info().Str("tag", tag).Msg(line)
}

// mergeEnv overlays extra on base, replacing existing keys. Windows keys compare
// case-insensitively.
func mergeEnv(base []string, extra map[string]string, foldCase bool) []string {
	if len(extra) == 0 {
		return base
	}
	norm := func(k string) string {
		if foldCase {
			return strings.ToUpper(k)
		}
		return k
	}
	overridden := make(map[string]bool, len(extra))
	for k := range extra {
		overridden[norm(k)] = true
	}

	env := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if overridden[norm(k)] {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// lineTail keeps the last n lines of output.
type lineTail struct {
	lines   []string
	max     int
	dropped int
}

func newLineTail(max int) *lineTail {
	return &lineTail{max: max}
}

func (t *lineTail) add(line string) {
	if len(t.lines) == t.max {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:len(t.lines)-1]
		t.dropped++
	}
	t.lines = append(t.lines, line)
}

func (t *lineTail) truncated() bool {
	return t.dropped > 0
}

func (t *lineTail) String() string {
	return strings.Join(t.lines, "\n")
}
