package lang

// ToolSignatures maps a registered tool name to its positional parameter
// order, used by RewriteKeywordArgs to turn `tool(b=2, a=3)` into
// `tool(3, 2)` before the restricted environment ever sees it: the
// restricted environment's callables are plain variadic Go functions and
// know nothing about keyword binding.
type ToolSignatures map[string][]string

// RewriteKeywordArgs reorders keyword arguments of calls to known tools
// into positional order. Calls to names absent from sigs (locals, builtins)
// are left untouched. A keyword argument naming a parameter absent from the
// tool's signature is left in place at the end, in the order given; callers
// that pass unknown keywords get whatever the tool does with extra
// positional arguments.
func RewriteKeywordArgs(prog *Program, sigs ToolSignatures) {
	walkStmts(prog.Statements, func(e Expr) Expr {
		call, ok := e.(*CallExpr)
		if !ok {
			return e
		}
		params, known := sigs[call.Callee]
		if !known {
			return e
		}
		hasKeyword := false
		for _, a := range call.Args {
			if a.Name != "" {
				hasKeyword = true
				break
			}
		}
		if !hasKeyword {
			return e
		}
		byName := map[string]Expr{}
		var extras []Arg
		positional := make([]Expr, 0, len(call.Args))
		for _, a := range call.Args {
			if a.Name == "" {
				positional = append(positional, a.Value)
				continue
			}
			byName[a.Name] = a.Value
		}
		reordered := make([]Arg, 0, len(call.Args))
		posIdx := 0
		for _, p := range params {
			if v, ok := byName[p]; ok {
				reordered = append(reordered, Arg{Value: v})
				delete(byName, p)
				continue
			}
			if posIdx < len(positional) {
				reordered = append(reordered, Arg{Value: positional[posIdx]})
				posIdx++
			}
		}
		for _, a := range call.Args {
			if v, ok := byName[a.Name]; a.Name != "" && ok {
				extras = append(extras, Arg{Name: a.Name, Value: v})
				delete(byName, a.Name)
			}
		}
		call.Args = append(reordered, extras...)
		return call
	})
}

// CollectLocalDefs returns the set of function names defined with `def`
// anywhere in the top-level statement list. A local definition shadows a
// same-named registered tool: RewriteAutoSuspend must not wrap calls to
// names in this set.
func CollectLocalDefs(prog *Program) map[string]bool {
	locals := map[string]bool{}
	var visit func([]Stmt)
	visit = func(stmts []Stmt) {
		for _, s := range stmts {
			switch n := s.(type) {
			case *FuncDef:
				locals[n.Name] = true
				visit(n.Body)
			case *IfStmt:
				visit(n.Then)
				visit(n.Else)
			case *ForStmt:
				visit(n.Body)
			}
		}
	}
	visit(prog.Statements)
	return locals
}

// RewriteAutoSuspend wraps every call to a registered tool name (one of
// toolNames) that is not locally shadowed (present in locals) and not
// already under an explicit AwaitExpr, in an AwaitExpr. This lets snippet
// authors call tools as plain synchronous-looking functions; the executor
// resolves the suspension against the tool-server multiplexer when it
// reaches the await.
func RewriteAutoSuspend(prog *Program, toolNames map[string]bool, locals map[string]bool) {
	wrapped := map[*AwaitExpr]bool{}
	walkStmts(prog.Statements, func(e Expr) Expr {
		if aw, already := e.(*AwaitExpr); already {
			// The post-order walk has already wrapped the call directly
			// under this explicit await; drop that inner wrapper.
			if inner, ok := aw.Value.(*AwaitExpr); ok && wrapped[inner] {
				aw.Value = inner.Value
			}
			return e
		}
		call, ok := e.(*CallExpr)
		if !ok {
			return e
		}
		if locals[call.Callee] {
			return e
		}
		if !toolNames[call.Callee] {
			return e
		}
		aw := &AwaitExpr{Pos: call.Pos, Value: call}
		wrapped[aw] = true
		return aw
	})
}

// RewriteAutoReturn appends `return result` to the top-level statement
// list when the snippet assigns to a variable named "result" at top level
// but never issues an explicit return. Nested scopes (inside def/if/for)
// are not considered: only a top-level assignment establishes the
// convention.
func RewriteAutoReturn(prog *Program) {
	hasReturn := false
	assignedResult := false
	var lastPos Pos
	for _, s := range prog.Statements {
		switch n := s.(type) {
		case *ReturnStmt:
			hasReturn = true
		case *AssignStmt:
			if n.Target == "result" {
				assignedResult = true
				lastPos = n.Pos
			}
		}
	}
	if hasReturn || !assignedResult {
		return
	}
	prog.Statements = append(prog.Statements, &ReturnStmt{
		Pos:   lastPos,
		Value: &Ident{Pos: lastPos, Name: "result"},
	})
}

// walkStmts applies fn to every expression reachable from stmts,
// replacing each expression node (and the sub-expressions of CallExpr,
// BinaryExpr, UnaryExpr, IndexExpr, ListLit, DictLit, ListComp, AwaitExpr)
// with fn's result, post-order, so fn sees a call's already-rewritten
// arguments.
func walkStmts(stmts []Stmt, fn func(Expr) Expr) {
	for _, s := range stmts {
		switch n := s.(type) {
		case *ExprStmt:
			n.Expr = walkExpr(n.Expr, fn)
		case *AssignStmt:
			n.Value = walkExpr(n.Value, fn)
		case *ReturnStmt:
			if n.Value != nil {
				n.Value = walkExpr(n.Value, fn)
			}
		case *IfStmt:
			n.Cond = walkExpr(n.Cond, fn)
			walkStmts(n.Then, fn)
			walkStmts(n.Else, fn)
		case *ForStmt:
			n.Iter = walkExpr(n.Iter, fn)
			walkStmts(n.Body, fn)
		case *FuncDef:
			walkStmts(n.Body, fn)
		}
	}
}

func walkExpr(e Expr, fn func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case *CallExpr:
		for i := range n.Args {
			n.Args[i].Value = walkExpr(n.Args[i].Value, fn)
		}
		return fn(n)
	case *BinaryExpr:
		n.Left = walkExpr(n.Left, fn)
		n.Right = walkExpr(n.Right, fn)
		return fn(n)
	case *UnaryExpr:
		n.Operand = walkExpr(n.Operand, fn)
		return fn(n)
	case *IndexExpr:
		n.Target = walkExpr(n.Target, fn)
		n.Index = walkExpr(n.Index, fn)
		return fn(n)
	case *ListLit:
		for i := range n.Elems {
			n.Elems[i] = walkExpr(n.Elems[i], fn)
		}
		return fn(n)
	case *DictLit:
		for i := range n.Entries {
			n.Entries[i].Key = walkExpr(n.Entries[i].Key, fn)
			n.Entries[i].Value = walkExpr(n.Entries[i].Value, fn)
		}
		return fn(n)
	case *ListComp:
		n.Expr = walkExpr(n.Expr, fn)
		n.Iter = walkExpr(n.Iter, fn)
		if n.Cond != nil {
			n.Cond = walkExpr(n.Cond, fn)
		}
		return fn(n)
	case *AwaitExpr:
		n.Value = walkExpr(n.Value, fn)
		return fn(n)
	default:
		return fn(n)
	}
}

// CountCalls returns the total number of CallExpr nodes in prog, used by
// the static call-count guard ahead of execution.
func CountCalls(prog *Program) int {
	count := 0
	walkStmts(prog.Statements, func(e Expr) Expr {
		if _, ok := e.(*CallExpr); ok {
			count++
		}
		return e
	})
	return count
}
