package executor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"qa-orchestrator/executor/lang"
)

// toolCaller invokes a registered tool by name with positional arguments
// and returns its unwrapped result.
type toolCaller func(ctx context.Context, name string, args []any) (any, error)

// env is a lexical scope chain. Lookups walk up to parent; assignment
// always writes to the innermost scope (snippets have no nonlocal/global
// declarations).
type env struct {
	vars   map[string]any
	parent *env
}

func newEnv(parent *env) *env {
	return &env{vars: make(map[string]any), parent: parent}
}

func (e *env) get(name string) (any, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (e *env) set(name string, val any) {
	e.vars[name] = val
}

// userFunc is a def-declared local function.
type userFunc struct {
	def *lang.FuncDef
	env *env
}

// returnSignal unwinds a function body on `return`.
type returnSignal struct {
	value any
}

// interp executes a rewritten AST under a restricted environment.
type interp struct {
	ctx         context.Context
	globals     *env
	toolNames   map[string]bool
	call        toolCaller
	stdout      strings.Builder
	finalAnswer any
	hasFinal    bool
}

func newInterp(ctx context.Context, toolNames map[string]bool, call toolCaller) *interp {
	it := &interp{ctx: ctx, globals: newEnv(nil), toolNames: toolNames, call: call}
	it.installBuiltins()
	return it
}

func (it *interp) installBuiltins() {
	it.globals.set("final_answer", builtinFunc(func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, &RuntimeError{Kind: "ArgumentError", Message: "final_answer takes exactly one argument"}
		}
		it.finalAnswer = args[0]
		it.hasFinal = true
		return nil, nil
	}))
	it.globals.set("print", builtinFunc(func(args []any) (any, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = stringify(a)
		}
		it.stdout.WriteString(strings.Join(parts, " "))
		it.stdout.WriteString("\n")
		return nil, nil
	}))
	it.globals.set("len", builtinFunc(func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, &RuntimeError{Kind: "ArgumentError", Message: "len takes exactly one argument"}
		}
		switch v := args[0].(type) {
		case string:
			return int64(len(v)), nil
		case []any:
			return int64(len(v)), nil
		case map[string]any:
			return int64(len(v)), nil
		default:
			return nil, &RuntimeError{Kind: "TypeError", Message: "len() unsupported for value"}
		}
	}))
	it.globals.set("str", builtinFunc(func(args []any) (any, error) { return stringify(args[0]), nil }))
	it.globals.set("int", builtinFunc(func(args []any) (any, error) { return toInt(args[0]) }))
	it.globals.set("float", builtinFunc(func(args []any) (any, error) { return toFloat(args[0]) }))
	it.globals.set("bool", builtinFunc(func(args []any) (any, error) { return truthy(args[0]), nil }))
	it.globals.set("abs", builtinFunc(func(args []any) (any, error) {
		f, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		if f < 0 {
			f = -f
		}
		if _, isInt := args[0].(int64); isInt {
			return int64(f), nil
		}
		return f, nil
	}))
	it.globals.set("sum", builtinFunc(func(args []any) (any, error) {
		list, err := toList(args[0])
		if err != nil {
			return nil, err
		}
		var total float64
		allInt := true
		for _, v := range list {
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			if _, ok := v.(int64); !ok {
				allInt = false
			}
			total += f
		}
		if allInt {
			return int64(total), nil
		}
		return total, nil
	}))
	it.globals.set("min", builtinFunc(func(args []any) (any, error) { return extremum(args, false) }))
	it.globals.set("max", builtinFunc(func(args []any) (any, error) { return extremum(args, true) }))
	it.globals.set("range", builtinFunc(func(args []any) (any, error) {
		var start, stop, step int64 = 0, 0, 1
		switch len(args) {
		case 1:
			n, err := toInt(args[0])
			if err != nil {
				return nil, err
			}
			stop = n
		case 2:
			a, err := toInt(args[0])
			if err != nil {
				return nil, err
			}
			b, err := toInt(args[1])
			if err != nil {
				return nil, err
			}
			start, stop = a, b
		case 3:
			a, err := toInt(args[0])
			if err != nil {
				return nil, err
			}
			b, err := toInt(args[1])
			if err != nil {
				return nil, err
			}
			c, err := toInt(args[2])
			if err != nil {
				return nil, err
			}
			start, stop, step = a, b, c
		default:
			return nil, &RuntimeError{Kind: "ArgumentError", Message: "range takes 1 to 3 arguments"}
		}
		if step == 0 {
			return nil, &RuntimeError{Kind: "ValueError", Message: "range() step must not be zero"}
		}
		var out []any
		if step > 0 {
			for v := start; v < stop; v += step {
				out = append(out, v)
			}
		} else {
			for v := start; v > stop; v += step {
				out = append(out, v)
			}
		}
		return out, nil
	}))
	it.globals.set("sorted", builtinFunc(func(args []any) (any, error) {
		list, err := toList(args[0])
		if err != nil {
			return nil, err
		}
		out := append([]any(nil), list...)
		sort.SliceStable(out, func(i, j int) bool { return lessValue(out[i], out[j]) })
		return out, nil
	}))
	it.globals.set("round", builtinFunc(func(args []any) (any, error) {
		f, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return int64(f + 0.5), nil
	}))
	it.globals.set("parallel", builtinFunc(func(args []any) (any, error) {
		return nil, &RuntimeError{Kind: "InternalError", Message: "parallel() must be called as a top-level await target"}
	}))
}

type builtinFunc func(args []any) (any, error)

// Run executes prog's statements in sequence and returns the value of the
// first ReturnStmt encountered at top level, or nil if none ran.
func (it *interp) Run(prog *lang.Program) (any, error) {
	result, err := it.execBlock(prog.Statements, it.globals)
	if err != nil {
		if rs, ok := err.(returnUnwind); ok {
			return rs.value, nil
		}
		return nil, err
	}
	_ = result
	return nil, nil
}

// returnUnwind is used as a control-flow error value; it is never surfaced
// to callers of Run.
type returnUnwind struct{ value any }

func (returnUnwind) Error() string { return "return" }

func (it *interp) execBlock(stmts []lang.Stmt, e *env) (any, error) {
	for _, s := range stmts {
		switch n := s.(type) {
		case *lang.ExprStmt:
			if _, err := it.eval(n.Expr, e); err != nil {
				return nil, err
			}
		case *lang.AssignStmt:
			v, err := it.eval(n.Value, e)
			if err != nil {
				return nil, err
			}
			e.set(n.Target, v)
		case *lang.ReturnStmt:
			var v any
			if n.Value != nil {
				var err error
				v, err = it.eval(n.Value, e)
				if err != nil {
					return nil, err
				}
			}
			return nil, returnUnwind{value: v}
		case *lang.IfStmt:
			cond, err := it.eval(n.Cond, e)
			if err != nil {
				return nil, err
			}
			branch := n.Then
			if !truthy(cond) {
				branch = n.Else
			}
			if _, err := it.execBlock(branch, newEnv(e)); err != nil {
				return nil, err
			}
		case *lang.ForStmt:
			iterVal, err := it.eval(n.Iter, e)
			if err != nil {
				return nil, err
			}
			items, err := toList(iterVal)
			if err != nil {
				return nil, err
			}
			for _, item := range items {
				loopEnv := newEnv(e)
				loopEnv.set(n.Var, item)
				if _, err := it.execBlock(n.Body, loopEnv); err != nil {
					return nil, err
				}
			}
		case *lang.FuncDef:
			e.set(n.Name, &userFunc{def: n, env: e})
		}
	}
	return nil, nil
}

func (it *interp) eval(expr lang.Expr, e *env) (any, error) {
	switch n := expr.(type) {
	case *lang.IntLit:
		return n.Val, nil
	case *lang.FloatLit:
		return n.Val, nil
	case *lang.StringLit:
		return n.Val, nil
	case *lang.BoolLit:
		return n.Val, nil
	case *lang.NilLit:
		return nil, nil
	case *lang.Ident:
		v, ok := e.get(n.Name)
		if !ok {
			return nil, &RuntimeError{Kind: "NameError", Message: fmt.Sprintf("name %q is not defined", n.Name)}
		}
		return v, nil
	case *lang.ListLit:
		out := make([]any, 0, len(n.Elems))
		for _, el := range n.Elems {
			v, err := it.eval(el, e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *lang.DictLit:
		out := make(map[string]any, len(n.Entries))
		for _, entry := range n.Entries {
			k, err := it.eval(entry.Key, e)
			if err != nil {
				return nil, err
			}
			v, err := it.eval(entry.Value, e)
			if err != nil {
				return nil, err
			}
			out[stringify(k)] = v
		}
		return out, nil
	case *lang.ListComp:
		iterVal, err := it.eval(n.Iter, e)
		if err != nil {
			return nil, err
		}
		items, err := toList(iterVal)
		if err != nil {
			return nil, err
		}
		var out []any
		for _, item := range items {
			loopEnv := newEnv(e)
			loopEnv.set(n.Var, item)
			if n.Cond != nil {
				keep, err := it.eval(n.Cond, loopEnv)
				if err != nil {
					return nil, err
				}
				if !truthy(keep) {
					continue
				}
			}
			v, err := it.eval(n.Expr, loopEnv)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *lang.IndexExpr:
		target, err := it.eval(n.Target, e)
		if err != nil {
			return nil, err
		}
		idx, err := it.eval(n.Index, e)
		if err != nil {
			return nil, err
		}
		return indexValue(target, idx)
	case *lang.UnaryExpr:
		v, err := it.eval(n.Operand, e)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "-":
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			if _, isInt := v.(int64); isInt {
				return -int64(f), nil
			}
			return -f, nil
		case "not":
			return !truthy(v), nil
		}
		return nil, &RuntimeError{Kind: "InternalError", Message: "unknown unary operator " + n.Op}
	case *lang.BinaryExpr:
		return it.evalBinary(n, e)
	case *lang.AwaitExpr:
		return it.evalAwait(n, e)
	case *lang.CallExpr:
		return it.evalCall(n, e)
	default:
		return nil, &RuntimeError{Kind: "InternalError", Message: "unsupported expression node"}
	}
}

func (it *interp) evalBinary(n *lang.BinaryExpr, e *env) (any, error) {
	if n.Op == "and" {
		left, err := it.eval(n.Left, e)
		if err != nil {
			return nil, err
		}
		if !truthy(left) {
			return left, nil
		}
		return it.eval(n.Right, e)
	}
	if n.Op == "or" {
		left, err := it.eval(n.Left, e)
		if err != nil {
			return nil, err
		}
		if truthy(left) {
			return left, nil
		}
		return it.eval(n.Right, e)
	}
	left, err := it.eval(n.Left, e)
	if err != nil {
		return nil, err
	}
	right, err := it.eval(n.Right, e)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	case "<":
		return lessValue(left, right), nil
	case "<=":
		return lessValue(left, right) || valuesEqual(left, right), nil
	case ">":
		return !lessValue(left, right) && !valuesEqual(left, right), nil
	case ">=":
		return !lessValue(left, right), nil
	case "+":
		return addValues(left, right)
	case "-", "*", "/", "%":
		return arithValues(n.Op, left, right)
	}
	return nil, &RuntimeError{Kind: "InternalError", Message: "unknown binary operator " + n.Op}
}

// evalAwait resolves a suspended tool call. It is the only expression form
// permitted to reach the tool-server multiplexer, and the only form that
// understands the parallel(...) fan-out primitive.
func (it *interp) evalAwait(n *lang.AwaitExpr, e *env) (any, error) {
	call, ok := n.Value.(*lang.CallExpr)
	if !ok {
		return it.eval(n.Value, e)
	}
	if call.Callee == "parallel" {
		return it.evalParallel(call, e)
	}
	args, err := it.evalArgs(call.Args, e)
	if err != nil {
		return nil, err
	}
	if !it.toolNames[call.Callee] {
		return nil, &RuntimeError{Kind: "NameError", Message: fmt.Sprintf("tool %q is not registered", call.Callee)}
	}
	result, err := it.call(it.ctx, call.Callee, args)
	if err != nil {
		return nil, newToolError(call.Callee, err.Error())
	}
	return result, nil
}

// evalParallel fans every argument call out to the multiplexer
// concurrently and joins results preserving argument order.
func (it *interp) evalParallel(call *lang.CallExpr, e *env) (any, error) {
	type outcome struct {
		val any
		err error
	}
	outcomes := make([]outcome, len(call.Args))
	var wg sync.WaitGroup
	for i, arg := range call.Args {
		i, arg := i, arg
		wg.Add(1)
		go func() {
			defer wg.Done()
			var inner lang.Expr = arg.Value
			if await, ok := inner.(*lang.AwaitExpr); ok {
				inner = await.Value
			}
			innerCall, ok := inner.(*lang.CallExpr)
			if !ok {
				v, err := it.eval(arg.Value, e)
				outcomes[i] = outcome{val: v, err: err}
				return
			}
			args, err := it.evalArgs(innerCall.Args, e)
			if err != nil {
				outcomes[i] = outcome{err: err}
				return
			}
			if !it.toolNames[innerCall.Callee] {
				outcomes[i] = outcome{err: &RuntimeError{Kind: "NameError", Message: fmt.Sprintf("tool %q is not registered", innerCall.Callee)}}
				return
			}
			result, err := it.call(it.ctx, innerCall.Callee, args)
			if err != nil {
				outcomes[i] = outcome{err: newToolError(innerCall.Callee, err.Error())}
				return
			}
			outcomes[i] = outcome{val: result}
		}()
	}
	wg.Wait()
	out := make([]any, len(outcomes))
	for i, o := range outcomes {
		if o.err != nil {
			return nil, o.err
		}
		out[i] = o.val
	}
	return out, nil
}

func (it *interp) evalArgs(args []lang.Arg, e *env) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := it.eval(a.Value, e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (it *interp) evalCall(n *lang.CallExpr, e *env) (any, error) {
	if n.Callee == "parallel" {
		return nil, &RuntimeError{Kind: "RuntimeError", Message: "parallel(...) must be called as `await parallel(...)`"}
	}
	callee, ok := e.get(n.Callee)
	if ok {
		switch fn := callee.(type) {
		case *userFunc:
			return it.callUserFunc(fn, n, e)
		case builtinFunc:
			args, err := it.evalArgs(n.Args, e)
			if err != nil {
				return nil, err
			}
			return fn(args)
		}
	}
	if it.toolNames[n.Callee] {
		// A bare tool call that survived the auto-suspend rewrite (should
		// not happen in practice, but calling it directly is still safe).
		args, err := it.evalArgs(n.Args, e)
		if err != nil {
			return nil, err
		}
		result, err := it.call(it.ctx, n.Callee, args)
		if err != nil {
			return nil, newToolError(n.Callee, err.Error())
		}
		return result, nil
	}
	return nil, &RuntimeError{Kind: "NameError", Message: fmt.Sprintf("name %q is not defined", n.Callee)}
}

func (it *interp) callUserFunc(fn *userFunc, call *lang.CallExpr, e *env) (any, error) {
	args, err := it.evalArgs(call.Args, e)
	if err != nil {
		return nil, err
	}
	if len(args) != len(fn.def.Params) {
		return nil, &RuntimeError{Kind: "ArgumentError", Message: fmt.Sprintf("%s takes %d arguments, got %d", fn.def.Name, len(fn.def.Params), len(args))}
	}
	callEnv := newEnv(fn.env)
	for i, p := range fn.def.Params {
		callEnv.set(p, args[i])
	}
	_, err = it.execBlock(fn.def.Body, callEnv)
	if err != nil {
		if rs, ok := err.(returnUnwind); ok {
			return rs.value, nil
		}
		return nil, err
	}
	return nil, nil
}

// --- value helpers ---

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, &RuntimeError{Kind: "ValueError", Message: fmt.Sprintf("cannot convert %q to int", x)}
		}
		return n, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, &RuntimeError{Kind: "TypeError", Message: "cannot convert value to int"}
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, &RuntimeError{Kind: "ValueError", Message: fmt.Sprintf("cannot convert %q to float", x)}
		}
		return f, nil
	default:
		return 0, &RuntimeError{Kind: "TypeError", Message: "cannot convert value to float"}
	}
}

func toList(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case map[string]any:
		out := make([]any, 0, len(x))
		for k := range x {
			out = append(out, k)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].(string) < out[j].(string) })
		return out, nil
	case string:
		out := make([]any, 0, len(x))
		for _, r := range x {
			out = append(out, string(r))
		}
		return out, nil
	default:
		return nil, &RuntimeError{Kind: "TypeError", Message: "value is not iterable"}
	}
}

func indexValue(target, idx any) (any, error) {
	switch t := target.(type) {
	case []any:
		i, err := toInt(idx)
		if err != nil {
			return nil, err
		}
		if i < 0 {
			i += int64(len(t))
		}
		if i < 0 || i >= int64(len(t)) {
			return nil, &RuntimeError{Kind: "IndexError", Message: "list index out of range"}
		}
		return t[i], nil
	case map[string]any:
		key := stringify(idx)
		v, ok := t[key]
		if !ok {
			return nil, &RuntimeError{Kind: "KeyError", Message: fmt.Sprintf("key %q not found", key)}
		}
		return v, nil
	case string:
		i, err := toInt(idx)
		if err != nil {
			return nil, err
		}
		runes := []rune(t)
		if i < 0 {
			i += int64(len(runes))
		}
		if i < 0 || i >= int64(len(runes)) {
			return nil, &RuntimeError{Kind: "IndexError", Message: "string index out of range"}
		}
		return string(runes[i]), nil
	default:
		return nil, &RuntimeError{Kind: "TypeError", Message: "value is not subscriptable"}
	}
}

func addValues(left, right any) (any, error) {
	if ls, ok := left.(string); ok {
		rs, ok := right.(string)
		if !ok {
			return nil, &RuntimeError{Kind: "TypeError", Message: "cannot concatenate string with non-string"}
		}
		return ls + rs, nil
	}
	if ll, ok := left.([]any); ok {
		rl, ok := right.([]any)
		if !ok {
			return nil, &RuntimeError{Kind: "TypeError", Message: "cannot concatenate list with non-list"}
		}
		out := make([]any, 0, len(ll)+len(rl))
		out = append(out, ll...)
		out = append(out, rl...)
		return out, nil
	}
	return arithValues("+", left, right)
}

func arithValues(op string, left, right any) (any, error) {
	lf, err := toFloat(left)
	if err != nil {
		return nil, err
	}
	rf, err := toFloat(right)
	if err != nil {
		return nil, err
	}
	_, lInt := left.(int64)
	_, rInt := right.(int64)
	bothInt := lInt && rInt

	var result float64
	switch op {
	case "+":
		result = lf + rf
	case "-":
		result = lf - rf
	case "*":
		result = lf * rf
	case "/":
		if rf == 0 {
			return nil, &RuntimeError{Kind: "ZeroDivisionError", Message: "division by zero"}
		}
		result = lf / rf
		bothInt = false
	case "%":
		if rf == 0 {
			return nil, &RuntimeError{Kind: "ZeroDivisionError", Message: "modulo by zero"}
		}
		if bothInt {
			li, _ := toInt(left)
			ri, _ := toInt(right)
			return li % ri, nil
		}
		li := int64(lf)
		ri := int64(rf)
		return li % ri, nil
	}
	if bothInt {
		return int64(result), nil
	}
	return result, nil
}

func valuesEqual(left, right any) bool {
	lf, lerr := toFloat(left)
	rf, rerr := toFloat(right)
	if lerr == nil && rerr == nil {
		return lf == rf
	}
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

func lessValue(left, right any) bool {
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return ls < rs
		}
	}
	lf, lerr := toFloat(left)
	rf, rerr := toFloat(right)
	if lerr == nil && rerr == nil {
		return lf < rf
	}
	return false
}

func extremum(args []any, wantMax bool) (any, error) {
	var values []any
	if len(args) == 1 {
		list, err := toList(args[0])
		if err != nil {
			return nil, err
		}
		values = list
	} else {
		values = args
	}
	if len(values) == 0 {
		return nil, &RuntimeError{Kind: "ValueError", Message: "min()/max() arg is an empty sequence"}
	}
	best := values[0]
	for _, v := range values[1:] {
		if wantMax && lessValue(best, v) {
			best = v
		}
		if !wantMax && lessValue(v, best) {
			best = v
		}
	}
	return best, nil
}
