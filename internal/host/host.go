// Package host dispatches prompts to an externally installed model CLI.
//
// Each supported host is a variant describing its binary, how a prompt is
// passed on the command line, and an install hint. All variants share one
// process runner, so adding a host means adding a table entry.
package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Name identifies a supported host CLI.
type Name string

const (
	Gemini      Name = "gemini"
	Codex       Name = "codex"
	Antigravity Name = "antigravity"
	OpenCode    Name = "opencode"
)

// waitDelay bounds how long Invoke waits for output pipes after the
// process is killed.
const waitDelay = 5 * time.Second

type variant struct {
	binary string
	args   func(prompt string) []string
	hint   string
}

var variants = map[Name]variant{
	Gemini: {
		binary: "gemini",
		args:   func(p string) []string { return []string{"-p", p} },
		hint:   "Install/auth Gemini CLI, then run: gemini --help",
	},
	Codex: {
		binary: "codex",
		args:   func(p string) []string { return []string{"--prompt", p} },
		hint:   "Install/auth Codex CLI, then run: codex --help",
	},
	Antigravity: {
		binary: "antigravity",
		args:   func(p string) []string { return []string{"run", p} },
		hint:   "Install/auth Antigravity CLI, then run: antigravity --help",
	},
	OpenCode: {
		binary: "opencode",
		args:   func(p string) []string { return []string{"-c", p} },
		hint:   "Install/auth OpenCode CLI, then run: opencode --help",
	},
}

// Supported returns the supported hosts in display order.
func Supported() []Name {
	return []Name{Gemini, Codex, Antigravity, OpenCode}
}

// ParseName validates s against the supported hosts.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := variants[n]; !ok {
		return "", &Error{Host: Name(s), Kind: KindUnknownHost, Detail: supportedList()}
	}
	return n, nil
}

// Binary returns the executable name for a supported host.
func (n Name) Binary() string {
	return variants[n].binary
}

// InstallHint returns operator guidance for installing the host.
func (n Name) InstallHint() string {
	if v, ok := variants[n]; ok {
		return v.hint
	}
	return "Install the host CLI and verify it is in PATH."
}

// Command returns the argv used to send prompt to the host.
func (n Name) Command(prompt string) []string {
	v := variants[n]
	return append([]string{v.binary}, v.args(prompt)...)
}

// Host sends one prompt and returns the trimmed standard output.
type Host interface {
	Name() Name
	Invoke(ctx context.Context, prompt string) (string, error)
}

// CLI runs a host binary as a child process.
type CLI struct {
	name    Name
	binary  string
	args    func(prompt string) []string
	timeout time.Duration
	limiter *rate.Limiter
}

// Option configures a CLI.
type Option func(*CLI)

// WithTimeout bounds each invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *CLI) { c.timeout = d }
}

// WithLimiter throttles invocations.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *CLI) { c.limiter = l }
}

// WithRateLimit throttles invocations to perSecond calls with a burst of one.
// Non-positive values leave invocations unthrottled.
func WithRateLimit(perSecond float64) Option {
	return func(c *CLI) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithBinary overrides the executable path for the host.
func WithBinary(path string) Option {
	return func(c *CLI) { c.binary = path }
}

// New creates the CLI variant for name.
func New(name string, opts ...Option) (*CLI, error) {
	n, err := ParseName(name)
	if err != nil {
		return nil, err
	}
	v := variants[n]
	c := &CLI{name: n, binary: v.binary, args: v.args}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the host identifier.
func (c *CLI) Name() Name {
	return c.name
}

// Invoke runs the host with prompt. Failures are returned as *Error.
func (c *CLI) Invoke(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &Error{Host: c.name, Kind: KindRateLimit, Detail: err.Error(), Err: err}
		}
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.binary, c.args(prompt)...)
	cmd.Stdin = strings.NewReader("")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return strings.TrimSpace(stdout.String()), nil
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return "", &Error{Host: c.name, Kind: KindNotFound, Detail: c.name.InstallHint(), Err: err}
	}
	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", &Error{Host: c.name, Kind: KindTimeout, Detail: c.timeout.String(), Err: ctxErr}
		}
		return "", &Error{Host: c.name, Kind: KindExit, ExitCode: -1, Detail: ctxErr.Error(), Err: ctxErr}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", code)
		}
		return "", &Error{Host: c.name, Kind: KindExit, ExitCode: code, Detail: detail, Err: err}
	}
	return "", &Error{Host: c.name, Kind: KindExit, ExitCode: -1, Detail: err.Error(), Err: err}
}

func supportedList() string {
	names := make([]string, 0, len(variants))
	for _, n := range Supported() {
		names = append(names, string(n))
	}
	return strings.Join(names, ", ")
}
