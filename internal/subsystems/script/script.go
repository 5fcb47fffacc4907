// Package script is a registered subsystem whose handler evaluates a
// sandboxed JavaScript expression against a message body, demonstrating
// handler pluggability without hand-rolling an expression evaluator.
// The sandbox composition (dangerous globals stripped, console captured,
// execution interruptible on timeout) follows the teacher's
// internal/providers/browser/sandbox package.
package script

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/message"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/router"
)

// LogEntry is one captured console.* call.
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}

// EvalBody is the expected shape of a message body sent to
// script://eval.
type EvalBody struct {
	Source  string
	Context map[string]interface{}
	Timeout time.Duration
}

// Result is the outcome of evaluating a script.
type Result struct {
	Value   interface{}
	Console []LogEntry
	Error   error
}

// Runtime wraps a goja VM with the security controls a resource-bounded
// subsystem handler needs: dangerous globals removed, console captured,
// and interruptible on timeout.
type Runtime struct {
	mu        sync.Mutex
	console   []LogEntry
	consoleMu sync.Mutex
}

// NewRuntime constructs a fresh sandboxed runtime wrapper. A new goja.VM
// is built per Eval call so concurrent evaluations never share state.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// Eval runs source against an optional context object, bounded by
// timeout (default 2s if zero).
func (rt *Runtime) Eval(body EvalBody) (*Result, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	timeout := body.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	vm := goja.New()
	rt.consoleMu.Lock()
	rt.console = nil
	rt.consoleMu.Unlock()

	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())
	vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	vm.Set("setInterval", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })

	console := vm.NewObject()
	for _, level := range []string{"log", "warn", "error", "info"} {
		lvl := level
		_ = console.Set(lvl, func(call goja.FunctionCall) goja.Value {
			var msg string
			for i, arg := range call.Arguments {
				if i > 0 {
					msg += " "
				}
				msg += arg.String()
			}
			rt.consoleMu.Lock()
			rt.console = append(rt.console, LogEntry{Level: lvl, Message: msg, Time: time.Now()})
			rt.consoleMu.Unlock()
			return goja.Undefined()
		})
	}
	vm.Set("console", console)

	for k, v := range body.Context {
		vm.Set(k, v)
	}

	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("execution timeout exceeded")
	})
	defer timer.Stop()

	var val goja.Value
	var runErr error
	go func() {
		val, runErr = vm.RunString(body.Source)
		close(done)
	}()
	<-done

	result := &Result{Error: runErr}
	rt.consoleMu.Lock()
	result.Console = append([]LogEntry{}, rt.console...)
	rt.consoleMu.Unlock()

	if runErr != nil {
		return result, runErr
	}
	if val != nil && !goja.IsUndefined(val) && !goja.IsNull(val) {
		result.Value = val.Export()
	}
	return result, nil
}

// Routes returns the route table for registering this subsystem under
// the "script" scheme via Kernel.RegisterSubsystem.
func Routes(rt *Runtime) []kernel.RouteDef {
	handler := func(msg *message.Message, params map[string]string, opts router.RouteOptions) (interface{}, error) {
		body, ok := msg.Body.(EvalBody)
		if !ok {
			return nil, fmt.Errorf("script: eval body must be an EvalBody")
		}
		result, err := rt.Eval(body)
		if err != nil {
			return nil, fmt.Errorf("script: evaluation failed: %w", err)
		}
		return map[string]interface{}{
			"value":   result.Value,
			"console": result.Console,
		}, nil
	}

	return []kernel.RouteDef{
		{Pattern: "eval", Handler: handler, Metadata: router.Metadata{}},
	}
}
