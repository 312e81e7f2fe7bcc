package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dop251/goja"
)

const (
	// maxCallStackSize limits VM call stack depth to prevent stack
	// exhaustion from taking down the host.
	maxCallStackSize = 500

	// maxOutputBytes caps console output to prevent OOM from chatty scripts.
	maxOutputBytes = 1 << 20 // 1 MB

	defaultTimeout = 5 * time.Second
)

// JSConfig configures the JavaScript sandbox.
type JSConfig struct {
	DefaultTimeout time.Duration
	MaxOutputBytes int

	// Rand overrides the VM random source. Nil = goja default.
	// Injected so tests can pin Math.random().
	Rand goja.RandSource
}

// JSSandbox evaluates patched text as a standalone JavaScript program.
//
// Isolation guarantees:
//   - A fresh VM per execution — no state leaks between documents
//   - Only the default capability set plus caller capabilities are reachable
//   - Wall-clock timeout enforced via VM interrupt
//   - Uncaught faults contained at the boundary, never a host panic
//   - Console output capped to prevent OOM
type JSSandbox struct {
	defaultTimeout time.Duration
	maxOutput      int
	rand           goja.RandSource
	logger         *slog.Logger
}

// NewJSSandbox creates a JavaScript-engine sandbox. A nil logger discards
// log output.
func NewJSSandbox(cfg JSConfig, logger *slog.Logger) *JSSandbox {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.DefaultTimeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	maxOutput := cfg.MaxOutputBytes
	if maxOutput == 0 {
		maxOutput = maxOutputBytes
	}
	return &JSSandbox{
		defaultTimeout: timeout,
		maxOutput:      maxOutput,
		rand:           cfg.Rand,
		logger:         logger,
	}
}

// Execute evaluates req.Source in a fresh, capability-restricted VM.
func (s *JSSandbox) Execute(ctx context.Context, req Request) (res *Result, err error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = s.defaultTimeout
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	if s.rand != nil {
		vm.SetRandSource(s.rand)
	}

	start := time.Now()
	deadline := start.Add(timeout)

	output := &limitedBuffer{remaining: s.maxOutput}
	timers := newTimerQueue()
	bindDefaults(vm, output, timers, start)

	// Caller capabilities land last so they shadow the defaults.
	for name, handle := range req.Capabilities {
		if setErr := vm.Set(name, handle); setErr != nil {
			return nil, fmt.Errorf("binding capability %q: %w", name, setErr)
		}
	}

	// Wall-clock bound. The interrupt aborts the VM mid-execution; the VM
	// is discarded afterwards, so no tainted state can leak.
	interrupt := time.AfterFunc(timeout, func() {
		vm.Interrupt("execution timeout")
	})
	defer interrupt.Stop()
	stopCancel := context.AfterFunc(ctx, func() {
		vm.Interrupt("context canceled")
	})
	defer stopCancel()

	// A capability handle is arbitrary Go code — contain its panics too.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sandbox host panic contained", slog.Any("panic", r))
			res = nil
			err = &FaultError{Message: fmt.Sprint(r)}
		}
	}()

	s.logger.Debug("sandbox executing",
		slog.Int("source_bytes", len(req.Source)),
		slog.Int("capabilities", len(req.Capabilities)),
		slog.Duration("timeout", timeout),
	)

	value, runErr := vm.RunString(req.Source)
	if runErr != nil {
		return nil, s.interpretError(ctx, runErr, timeout)
	}

	// Deferred callbacks are part of the evaluation. Timers that cannot
	// fire before the deadline are discarded with the sandbox.
	if drainErr := timers.drain(vm, deadline); drainErr != nil {
		return nil, s.interpretError(ctx, drainErr, timeout)
	}
	vm.ClearInterrupt()

	duration := time.Since(start)
	s.logger.Debug("sandbox execution completed",
		slog.Duration("duration", duration),
		slog.Int("output_bytes", output.buf.Len()),
	)

	return &Result{
		Value:    exportValue(value),
		Output:   output.String(),
		Duration: duration,
	}, nil
}

// interpretError maps a goja error to the sandbox taxonomy.
func (s *JSSandbox) interpretError(ctx context.Context, err error, timeout time.Duration) error {
	if _, ok := err.(*goja.InterruptedError); ok {
		if ctx.Err() != nil {
			return fmt.Errorf("execution canceled: %w", ctx.Err())
		}
		s.logger.Warn("sandbox execution timed out", slog.Duration("timeout", timeout))
		return fmt.Errorf("%w after %s", ErrExecutionTimeout, timeout)
	}
	if ex, ok := err.(*goja.Exception); ok {
		return &FaultError{Message: ex.Value().String()}
	}
	// Syntax errors and other engine-level failures are faults too — the
	// evaluated text is at fault, not the host.
	return &FaultError{Message: err.Error()}
}

// exportValue converts the last-expression value to a plain Go value.
func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
