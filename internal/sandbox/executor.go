// Package sandbox implements the Sandbox Executor (C3): a goja-hosted
// JavaScript runtime that runs model-generated code under capability
// interception, wall-clock limits, and output truncation. Model code never
// sees the network or filesystem directly — goja's standard library
// exposes neither, and the only reachable surface is the four capability
// functions this package registers on the runtime's global object.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/rlmlabs/rlmreview/internal/domain"
)

const (
	// MaxStdoutBytes bounds the captured print() output.
	MaxStdoutBytes = 32 * 1024
	truncationMark = "…[truncated]"
)

// Observation is what one Execute call reports back to the RLM controller.
type Observation struct {
	Stdout      string
	ReturnValue interface{}
	Error       string
	Truncated   bool
	Answered    bool
	Answer      []domain.AnswerBlock
}

// Executor runs one script per call in a fresh goja.Runtime bound to a
// fresh Interceptor, so no state leaks between iterations.
type Executor struct {
	timeout time.Duration
}

// NewExecutor builds an Executor with the given per-execution wall-clock
// budget.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{timeout: timeout}
}

// Execute runs code against session, routing capability calls through
// interceptor. It never panics out to the caller: a thrown JS exception or
// a runtime panic is recovered and folded into Observation.Error.
func (e *Executor) Execute(ctx context.Context, interceptor *Interceptor, code string) (obs Observation) {
	defer func() {
		if r := recover(); r != nil {
			obs = Observation{Error: fmt.Sprintf("sandbox panic: %v", r)}
		}
	}()

	runtime := goja.New()
	runtime.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	var stdout bytes.Buffer
	truncated := false
	answered := false
	var answerBlocks []domain.AnswerBlock

	registerPrint(runtime, &stdout, &truncated)
	interceptor.Register(runtime, func(blocks []domain.AnswerBlock) {
		answered = true
		answerBlocks = blocks
	})

	timer := time.AfterFunc(e.timeout, func() {
		runtime.Interrupt(domain.NewError(domain.ErrSandboxTimeout, "execution exceeded time limit"))
	})
	defer timer.Stop()

	done := make(chan struct{})
	var value goja.Value
	var runErr error
	go func() {
		defer close(done)
		value, runErr = runtime.RunString(code)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		runtime.Interrupt(domain.NewError(domain.ErrCancelled, "session cancelled"))
		<-done
	}

	obs = Observation{
		Stdout:    stdout.String(),
		Truncated: truncated,
		Answered:  answered,
		Answer:    answerBlocks,
	}

	if runErr != nil {
		obs.Error = describeRunError(runErr)
		return obs
	}
	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		obs.ReturnValue = value.Export()
	}
	return obs
}

func describeRunError(err error) string {
	if interrupted, ok := err.(*goja.InterruptedError); ok {
		if derr, ok := interrupted.Value().(*domain.Error); ok {
			return derr.Error()
		}
	}
	if exc, ok := err.(*goja.Exception); ok {
		return exc.Error()
	}
	return err.Error()
}

// registerPrint exposes a console.log-equivalent "print" global that
// appends to a capped buffer, tagging the output truncated once it would
// overflow MaxStdoutBytes rather than growing it unbounded (B2).
func registerPrint(runtime *goja.Runtime, buf *bytes.Buffer, truncated *bool) {
	_ = runtime.Set("print", func(call goja.FunctionCall) goja.Value {
		if *truncated {
			return goja.Undefined()
		}
		line := ""
		for i, arg := range call.Arguments {
			if i > 0 {
				line += " "
			}
			line += arg.String()
		}
		line += "\n"

		if buf.Len()+len(line) > MaxStdoutBytes {
			remaining := MaxStdoutBytes - buf.Len()
			if remaining > 0 {
				buf.WriteString(line[:remaining])
			}
			buf.WriteString(truncationMark)
			*truncated = true
			return goja.Undefined()
		}
		buf.WriteString(line)
		return goja.Undefined()
	})
}
