// Package executor implements the sandboxed tool-call executor (C6): it
// parses planner-emitted snippets, statically rewrites them (keyword
// argument normalization, auto-suspend of tool calls, auto-return), runs
// them under a restricted environment and a time/operation budget, and
// resolves an effective result value. Grounded in original_source's
// executor_agent.py pipeline; there is no embeddable interpreter in the
// dependency pool, so lang.Parse feeds a hand-written tree-walking
// evaluator instead.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"qa-orchestrator/executor/lang"
	"qa-orchestrator/toolserver"
)

// MaxOperations bounds the number of call expressions a snippet may
// contain; snippets with more are rejected before execution ever starts.
const MaxOperations = 50

// DefaultPerCallBudget is multiplied by a snippet's call count to derive
// its execution timeout, floored at 3 seconds.
const DefaultPerCallBudget = 2 * time.Second

// allowedModules is the fixed, closed import allow-set: arithmetic,
// decimal, random, strings, regex, date/time, containers, hashing,
// base64, serialization, compression, pathlib/tempfile, and introspection
// helpers. Any import outside this set fails the snippet.
var allowedModules = map[string]bool{
	"math": true, "decimal": true, "random": true,
	"strings": true, "re": true, "regexp": true,
	"time": true, "datetime": true,
	"collections": true,
	"hashlib":     true, "base64": true,
	"json": true, "pickle": true,
	"gzip": true, "zlib": true,
	"pathlib": true, "tempfile": true,
	"inspect": true, "types": true,
}

// ToolCaller is the subset of *toolserver.Multiplexer the executor depends
// on, so tests can substitute a fake tool catalog without spawning real
// child processes.
type ToolCaller interface {
	Call(ctx context.Context, name string, args []any) (*toolserver.ToolResult, error)
	ListTools() []toolserver.ToolSpec
	HasTool(name string) bool
}

// Result is the outcome of one snippet execution.
type Result struct {
	Value       any
	Stdout      string
	CallCount   int
	FinalAnswer bool
}

// Run executes src against the given tool-server multiplexer: parses,
// statically rewrites, and evaluates it under a derived timeout. The
// returned error is one of *lang.SyntaxError, *OperationBudgetExceeded,
// *TimeoutError, *ToolError, or *RuntimeError.
func Run(ctx context.Context, src string, mux ToolCaller) (*Result, error) {
	prog, err := lang.Parse(src)
	if err != nil {
		return nil, err
	}

	callCount := lang.CountCalls(prog)
	if callCount > MaxOperations {
		return nil, &OperationBudgetExceeded{Count: callCount, Limit: MaxOperations}
	}

	sigs := toolSignatures(mux)
	lang.RewriteKeywordArgs(prog, sigs)

	locals := lang.CollectLocalDefs(prog)
	toolNames := make(map[string]bool, len(sigs))
	for name := range sigs {
		toolNames[name] = true
	}
	lang.RewriteAutoSuspend(prog, toolNames, locals)
	lang.RewriteAutoReturn(prog)

	budget := DefaultPerCallBudget * time.Duration(callCount)
	if budget < 3*time.Second {
		budget = 3 * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	caller := func(ctx context.Context, name string, args []any) (any, error) {
		res, err := mux.Call(ctx, name, args)
		if err != nil {
			return nil, err
		}
		return toolserver.UnwrapResult(res)
	}

	it := newInterp(runCtx, toolNames, caller)
	installImportGuard(it)

	done := make(chan struct {
		val any
		err error
	}, 1)
	go func() {
		val, err := it.Run(prog)
		done <- struct {
			val any
			err error
		}{val, err}
	}()

	select {
	case <-runCtx.Done():
		return nil, &TimeoutError{Budget: budget.String()}
	case outcome := <-done:
		if outcome.err != nil {
			return nil, outcome.err
		}
		return resolveResult(outcome.val, it, callCount), nil
	}
}

// installImportGuard registers the `__import__` builtin that enforces the
// closed module allowlist; disallowed names surface as RuntimeError.
func installImportGuard(it *interp) {
	it.globals.set("__import__", builtinFunc(func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, &RuntimeError{Kind: "ArgumentError", Message: "__import__ takes exactly one argument"}
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, &RuntimeError{Kind: "TypeError", Message: "module name must be a string"}
		}
		if !allowedModules[name] {
			return nil, &RuntimeError{Kind: "ImportError", Message: fmt.Sprintf("import of %q is not permitted", name)}
		}
		return nil, nil
	}))
}

// resolveResult implements the effective-value priority order: explicit
// return value, then the final_answer slot, then captured stdout, then the
// no-output sentinel.
func resolveResult(returned any, it *interp, callCount int) *Result {
	r := &Result{CallCount: callCount, Stdout: it.stdout.String()}
	if returned != nil {
		r.Value = returned
		return r
	}
	if it.hasFinal {
		r.Value = it.finalAnswer
		r.FinalAnswer = true
		return r
	}
	if r.Stdout != "" {
		r.Value = trimTrailingNewline(r.Stdout)
		return r
	}
	r.Value = "Executed successfully (no output)"
	return r
}

func trimTrailingNewline(s string) string {
	b := []byte(s)
	for len(b) > 0 && b[len(b)-1] == '\n' {
		b = b[:len(b)-1]
	}
	return string(b)
}

// toolSignatures derives each registered tool's positional parameter order
// from its JSON-schema InputSchema, preserving "properties" key order
// (encoding/json's object decode order) so keyword-argument rewriting
// reproduces the order the tool server itself declared.
func toolSignatures(mux ToolCaller) lang.ToolSignatures {
	sigs := make(lang.ToolSignatures)
	for _, spec := range mux.ListTools() {
		sigs[spec.Name] = propertyOrder(spec.InputSchema)
	}
	return sigs
}

func propertyOrder(schema json.RawMessage) []string {
	if len(schema) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(schema))
	var order []string
	inProperties := false
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch v := tok.(type) {
		case json.Delim:
			switch v {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 1 {
					inProperties = false
				}
			}
		case string:
			if !inProperties && depth == 1 && v == "properties" {
				inProperties = true
				continue
			}
			if inProperties && depth == 2 {
				order = append(order, v)
				skipValue(dec)
			}
		}
	}
	return order
}

// skipValue consumes one JSON value (object, array, or scalar) from dec,
// used to step past a property's schema body while scanning key order.
func skipValue(dec *json.Decoder) {
	tok, err := dec.Token()
	if err != nil {
		return
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	_ = delim
}
