package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// LogEntry represents captured console output.
type LogEntry struct {
	Level   string    // log, warn, error, info
	Message string    // Log message
	Time    time.Time // Timestamp
}

// Result holds an execution outcome.
type Result struct {
	Value       interface{}   // Script return value
	Console     []LogEntry    // Captured console output
	Duration    time.Duration // Execution time
	Interrupted bool          // True when the VM was interrupted
	Err         error         // Execution error
}

// Runtime wraps a goja VM with security controls. One runtime serves
// exactly one invocation.
type Runtime struct {
	vm *goja.Runtime

	console   []LogEntry
	consoleMu sync.Mutex
}

// NewRuntime creates a sandboxed runtime with dangerous globals removed.
func NewRuntime() (*Runtime, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(1024)

	r := &Runtime{vm: vm}
	if err := r.setupGlobals(); err != nil {
		return nil, err
	}
	return r, nil
}

// Bind installs the mutation bridge's API into the VM and lets the
// bridge interrupt it on fatal errors.
func (r *Runtime) Bind(bridge *Bridge) error {
	bridge.bindRuntime(r)
	return bridge.install(r.vm)
}

// Execute runs the script text. Interrupts (timeout, abort, context
// cancellation) surface with Interrupted set.
func (r *Runtime) Execute(ctx context.Context, src *Source) *Result {
	start := time.Now()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	val, err := r.vm.RunString(src.Text())
	close(done)

	result := &Result{
		Duration: time.Since(start),
		Console:  r.drainConsole(),
	}

	if err != nil {
		result.Err = err
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			result.Interrupted = true
		}
		return result
	}

	result.Value = exportValue(val)
	return result
}

// Interrupt aborts the running script. Safe to call from any goroutine.
func (r *Runtime) Interrupt(reason string) {
	r.vm.Interrupt(reason)
}

// Close releases the VM.
func (r *Runtime) Close() {
	r.vm = nil
	r.console = nil
}

// setupGlobals strips host-reach globals and installs the captured
// console. Timer primitives are no-ops: scheduling belongs to the host.
func (r *Runtime) setupGlobals() error {
	r.vm.Set("require", goja.Undefined())
	r.vm.Set("process", goja.Undefined())
	r.vm.Set("module", goja.Undefined())
	r.vm.Set("exports", goja.Undefined())
	r.vm.Set("globalThis", goja.Undefined())

	console := r.vm.NewObject()
	for _, level := range []string{"log", "warn", "error", "info"} {
		if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	if err := r.vm.Set("console", console); err != nil {
		return err
	}

	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }
	r.vm.Set("setTimeout", noop)
	r.vm.Set("setInterval", noop)
	r.vm.Set("fetch", goja.Undefined())
	r.vm.Set("XMLHttpRequest", goja.Undefined())

	return nil
}

// makeConsoleFunc creates one console level function.
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var msg string
		for i, arg := range call.Arguments {
			if i > 0 {
				msg += " "
			}
			msg += arg.String()
		}

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: msg,
			Time:    time.Now(),
		})
		r.consoleMu.Unlock()

		return goja.Undefined()
	}
}

func (r *Runtime) drainConsole() []LogEntry {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	out := append([]LogEntry{}, r.console...)
	r.console = nil
	return out
}

// exportValue converts a goja value to a Go value.
func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}
