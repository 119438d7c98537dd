// Package modules extracts typed Modules from declarative
// configuration sources. Sources are parsed into a syntax tree and
// pattern-matched against a closed builder vocabulary; they are never
// executed. A module's effect set is therefore statically knowable.
package modules

import (
	"fmt"
	"os"
	"os/user"

	"github.com/go-playground/validator/v10"
	"go.starlark.net/syntax"

	"github.com/korora-tech/dhd/pkg/conditions"
)

// Source is one configuration source text with an origin identifier
// used in error messages. The extractor is agnostic to how sources are
// discovered.
type Source struct {
	Origin string
	Text   string
}

// Context carries the read-only values that an actions(lambda ctx: ...)
// callback may reference. Member reads on the context handle are
// substituted during extraction; nothing is evaluated.
type Context struct {
	User UserContext
}

// UserContext describes the invoking user.
type UserContext struct {
	Name string
	Home string
}

// DefaultContext builds a Context for the current process user.
func DefaultContext() Context {
	ctx := Context{}
	if u, err := user.Current(); err == nil {
		ctx.User.Name = u.Username
		ctx.User.Home = u.HomeDir
	}
	if ctx.User.Home == "" {
		if home, err := os.UserHomeDir(); err == nil {
			ctx.User.Home = home
		}
	}
	return ctx
}

// Extractor turns configuration sources into Modules.
type Extractor struct {
	ctx      Context
	validate *validator.Validate
}

// NewExtractor creates an extractor with the given substitution context.
func NewExtractor(ctx Context) *Extractor {
	return &Extractor{
		ctx:      ctx,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Extract parses one source and returns its modules. It fails with
// *ParseError for invalid syntax or invalid field values, and with
// *UnsupportedConstructError for valid syntax outside the vocabulary.
func (e *Extractor) Extract(src Source) ([]Module, error) {
	file, err := syntax.Parse(src.Origin, src.Text, 0)
	if err != nil {
		return nil, &ParseError{Origin: src.Origin, Msg: err.Error(), Err: err}
	}

	var mods []Module
	for _, stmt := range file.Stmts {
		es, ok := stmt.(*syntax.ExprStmt)
		if !ok {
			return nil, unsupportedStmt(src.Origin, stmt)
		}
		mod, err := e.extractModule(src.Origin, es.X)
		if err != nil {
			return nil, err
		}
		mods = append(mods, mod)
	}
	return mods, nil
}

// ExtractAll processes every source, collecting per-source errors.
// A failing source never prevents the others from being extracted.
// Duplicate module names across sources are reported as errors on the
// later source.
func (e *Extractor) ExtractAll(srcs []Source) ([]Module, []error) {
	var mods []Module
	var errs []error
	seen := make(map[string]string)

	for _, src := range srcs {
		extracted, err := e.Extract(src)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, m := range extracted {
			if prev, dup := seen[m.Name]; dup {
				errs = append(errs, &ParseError{
					Origin: src.Origin,
					Msg:    fmt.Sprintf("module %q already declared in %s", m.Name, prev),
				})
				continue
			}
			seen[m.Name] = src.Origin
			mods = append(mods, m)
		}
	}
	return mods, errs
}

func (e *Extractor) extractModule(origin string, expr syntax.Expr) (Module, error) {
	calls, err := unwindChain(origin, expr)
	if err != nil {
		return Module{}, err
	}

	root := calls[0]
	if root.name != "module" {
		return Module{}, unsupportedExpr(origin, root.call,
			fmt.Sprintf("top-level call %s(...), expected module(...)", root.name))
	}
	if len(root.call.Args) != 1 {
		return Module{}, &ParseError{Origin: origin, Line: line(root.call), Col: col(root.call),
			Msg: "module(...) takes exactly one name argument"}
	}
	name, err := e.extractString(origin, root.call.Args[0], "")
	if err != nil {
		return Module{}, err
	}

	mod := Module{Name: name, Origin: origin}
	haveActions := false
	haveWhen := false

	for _, c := range calls[1:] {
		switch c.name {
		case "description":
			if len(c.call.Args) != 1 {
				return Module{}, &ParseError{Origin: origin, Line: line(c.call), Col: col(c.call),
					Msg: "description(...) takes exactly one argument"}
			}
			desc, err := e.extractString(origin, c.call.Args[0], "")
			if err != nil {
				return Module{}, err
			}
			mod.Description = desc

		case "tags":
			tags, err := e.extractStrings(origin, c.call.Args)
			if err != nil {
				return Module{}, err
			}
			mod.Tags = append(mod.Tags, tags...)

		case "depends":
			deps, err := e.extractStrings(origin, c.call.Args)
			if err != nil {
				return Module{}, err
			}
			mod.Dependencies = append(mod.Dependencies, deps...)

		case "when":
			if haveWhen {
				return Module{}, unsupportedExpr(origin, c.call, "duplicate when(...) declaration")
			}
			haveWhen = true
			if len(c.call.Args) != 1 {
				return Module{}, &ParseError{Origin: origin, Line: line(c.call), Col: col(c.call),
					Msg: "when(...) takes exactly one condition argument"}
			}
			cond, err := e.extractCondition(origin, c.call.Args[0])
			if err != nil {
				return Module{}, err
			}
			mod.Condition = cond

		case "actions":
			if haveActions {
				return Module{}, unsupportedExpr(origin, c.call, "duplicate actions(...) declaration")
			}
			haveActions = true
			acts, err := e.extractActions(origin, c.call)
			if err != nil {
				return Module{}, err
			}
			mod.Actions = acts

		default:
			return Module{}, unsupportedExpr(origin, c.call,
				fmt.Sprintf("method .%s(...) on module builder", c.name))
		}
	}

	return mod, nil
}

// extractActions handles both literal action lists and a pure lambda
// over the injected context handle.
func (e *Extractor) extractActions(origin string, call *syntax.CallExpr) ([]Action, error) {
	if len(call.Args) != 1 {
		return nil, &ParseError{Origin: origin, Line: line(call), Col: col(call),
			Msg: "actions(...) takes exactly one argument"}
	}

	arg := unparen(call.Args[0])
	ctxName := ""

	if lam, ok := arg.(*syntax.LambdaExpr); ok {
		if len(lam.Params) != 1 {
			return nil, unsupportedExpr(origin, lam, "actions lambda must take exactly one context parameter")
		}
		param, ok := lam.Params[0].(*syntax.Ident)
		if !ok {
			return nil, unsupportedExpr(origin, lam, "actions lambda parameter must be a plain name")
		}
		ctxName = param.Name
		arg = unparen(lam.Body)
	}

	list, ok := arg.(*syntax.ListExpr)
	if !ok {
		return nil, unsupportedExpr(origin, arg, "actions(...) argument must be a literal list or a lambda returning one")
	}

	acts := make([]Action, 0, len(list.List))
	for _, item := range list.List {
		act, err := e.extractAction(origin, unparen(item), ctxName)
		if err != nil {
			return nil, err
		}
		acts = append(acts, act)
	}
	return acts, nil
}

func (e *Extractor) extractAction(origin string, expr syntax.Expr, ctxName string) (Action, error) {
	call, ok := expr.(*syntax.CallExpr)
	if !ok {
		return nil, unsupportedExpr(origin, expr, "action list elements must be action constructor calls")
	}
	ident, ok := call.Fn.(*syntax.Ident)
	if !ok {
		return nil, unsupportedExpr(origin, call, "action constructor must be a plain call")
	}
	build, ok := constructors[ident.Name]
	if !ok {
		return nil, unsupportedExpr(origin, call, fmt.Sprintf("unknown action %s(...)", ident.Name))
	}

	args := make(map[string]any, len(call.Args))
	for _, raw := range call.Args {
		kw, ok := raw.(*syntax.BinaryExpr)
		if !ok || kw.Op != syntax.EQ {
			return nil, unsupportedExpr(origin, raw, "action arguments must be keyword arguments")
		}
		key, ok := kw.X.(*syntax.Ident)
		if !ok {
			return nil, unsupportedExpr(origin, kw, "action argument name must be a plain identifier")
		}
		val, err := e.extractValue(origin, kw.Y, ctxName)
		if err != nil {
			return nil, err
		}
		args[key.Name] = val
	}

	r := &argReader{action: ident.Name, args: args, used: make(map[string]bool)}
	act := build(r)
	if err := r.finish(); err != nil {
		return nil, &ParseError{Origin: origin, Line: line(call), Col: col(call), Msg: err.Error()}
	}
	if err := e.validate.Struct(act); err != nil {
		return nil, &ParseError{Origin: origin, Line: line(call), Col: col(call),
			Msg: fmt.Sprintf("invalid %s action: %v", ident.Name, err), Err: err}
	}
	return act, nil
}

// extractValue copies a literal expression into a Go value. Strings,
// booleans, integers, string lists and string-to-string dicts are the
// whole value vocabulary; anything else needs evaluation and is
// rejected.
func (e *Extractor) extractValue(origin string, expr syntax.Expr, ctxName string) (any, error) {
	expr = unparen(expr)
	switch v := expr.(type) {
	case *syntax.Literal:
		switch v.Token {
		case syntax.STRING:
			return v.Value.(string), nil
		case syntax.INT:
			if n, ok := v.Value.(int64); ok {
				return n, nil
			}
			return nil, unsupportedExpr(origin, v, "integer literal out of range")
		default:
			return nil, unsupportedExpr(origin, v, fmt.Sprintf("%s literal", v.Token))
		}

	case *syntax.Ident:
		switch v.Name {
		case "True":
			return true, nil
		case "False":
			return false, nil
		}
		return nil, unsupportedExpr(origin, v, fmt.Sprintf("free identifier %q requires runtime evaluation", v.Name))

	case *syntax.ListExpr:
		items := make([]string, 0, len(v.List))
		for _, item := range v.List {
			s, err := e.extractString(origin, item, ctxName)
			if err != nil {
				return nil, err
			}
			items = append(items, s)
		}
		return items, nil

	case *syntax.DictExpr:
		entries := make(map[string]string, len(v.List))
		for _, item := range v.List {
			entry, ok := item.(*syntax.DictEntry)
			if !ok {
				return nil, unsupportedExpr(origin, item, "dict entry")
			}
			key, err := e.extractString(origin, entry.Key, ctxName)
			if err != nil {
				return nil, err
			}
			val, err := e.extractString(origin, entry.Value, ctxName)
			if err != nil {
				return nil, err
			}
			entries[key] = val
		}
		return entries, nil

	default:
		// String-valued expressions: concatenation, ctx members.
		return e.extractString(origin, expr, ctxName)
	}
}

// extractString resolves an expression that must denote a string
// without evaluation: a literal, a + concatenation of such strings, or
// a member read on the injected context handle.
func (e *Extractor) extractString(origin string, expr syntax.Expr, ctxName string) (string, error) {
	expr = unparen(expr)
	switch v := expr.(type) {
	case *syntax.Literal:
		if v.Token == syntax.STRING {
			return v.Value.(string), nil
		}
		return "", unsupportedExpr(origin, v, fmt.Sprintf("%s literal where a string is required", v.Token))

	case *syntax.BinaryExpr:
		if v.Op != syntax.PLUS {
			return "", unsupportedExpr(origin, v, fmt.Sprintf("operator %s in string position", v.Op))
		}
		left, err := e.extractString(origin, v.X, ctxName)
		if err != nil {
			return "", err
		}
		right, err := e.extractString(origin, v.Y, ctxName)
		if err != nil {
			return "", err
		}
		return left + right, nil

	case *syntax.DotExpr:
		if ctxName == "" {
			return "", unsupportedExpr(origin, v, "member access outside an actions lambda")
		}
		return e.resolveCtxMember(origin, v, ctxName)

	case *syntax.Ident:
		return "", unsupportedExpr(origin, v, fmt.Sprintf("free identifier %q requires runtime evaluation", v.Name))

	default:
		return "", unsupportedExpr(origin, expr, "expression requires runtime evaluation")
	}
}

// resolveCtxMember substitutes ctx.user.name and ctx.user.home from the
// extraction context.
func (e *Extractor) resolveCtxMember(origin string, dot *syntax.DotExpr, ctxName string) (string, error) {
	inner, ok := unparen(dot.X).(*syntax.DotExpr)
	if ok {
		base, isIdent := unparen(inner.X).(*syntax.Ident)
		if isIdent && base.Name == ctxName && inner.Name.Name == "user" {
			switch dot.Name.Name {
			case "name":
				return e.ctx.User.Name, nil
			case "home":
				return e.ctx.User.Home, nil
			}
		}
	}
	return "", unsupportedExpr(origin, dot, fmt.Sprintf("member access .%s outside the context vocabulary", dot.Name.Name))
}

// extractStrings accepts either variadic string arguments or a single
// literal list of strings.
func (e *Extractor) extractStrings(origin string, args []syntax.Expr) ([]string, error) {
	if len(args) == 1 {
		if list, ok := unparen(args[0]).(*syntax.ListExpr); ok {
			args = list.List
		}
	}
	out := make([]string, 0, len(args))
	for _, arg := range args {
		s, err := e.extractString(origin, arg, "")
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (e *Extractor) extractCondition(origin string, expr syntax.Expr) (conditions.Condition, error) {
	expr = unparen(expr)
	switch v := expr.(type) {
	case *syntax.UnaryExpr:
		if v.Op != syntax.NOT {
			return nil, unsupportedExpr(origin, v, fmt.Sprintf("unary operator %s in condition", v.Op))
		}
		child, err := e.extractCondition(origin, v.X)
		if err != nil {
			return nil, err
		}
		return conditions.Not{Condition: child}, nil

	case *syntax.BinaryExpr:
		if v.Op != syntax.AND && v.Op != syntax.OR {
			return nil, unsupportedExpr(origin, v, fmt.Sprintf("operator %s in condition", v.Op))
		}
		left, err := e.extractCondition(origin, v.X)
		if err != nil {
			return nil, err
		}
		right, err := e.extractCondition(origin, v.Y)
		if err != nil {
			return nil, err
		}
		if v.Op == syntax.AND {
			return conditions.AllOf{Conditions: []conditions.Condition{left, right}}, nil
		}
		return conditions.AnyOf{Conditions: []conditions.Condition{left, right}}, nil

	case *syntax.CallExpr:
		return e.extractConditionCall(origin, v)

	default:
		return nil, unsupportedExpr(origin, expr, "condition must be built from the condition vocabulary")
	}
}

func (e *Extractor) extractConditionCall(origin string, call *syntax.CallExpr) (conditions.Condition, error) {
	switch fn := call.Fn.(type) {
	case *syntax.Ident:
		return e.extractConditionLeaf(origin, fn.Name, call)
	case *syntax.DotExpr:
		return e.extractConditionChain(origin, fn, call)
	default:
		return nil, unsupportedExpr(origin, call, "condition call")
	}
}

func (e *Extractor) extractConditionLeaf(origin, name string, call *syntax.CallExpr) (conditions.Condition, error) {
	switch name {
	case "file_exists", "directory_exists", "command_exists":
		arg, err := e.singleString(origin, name, call)
		if err != nil {
			return nil, err
		}
		switch name {
		case "file_exists":
			return conditions.FileExists{Path: arg}, nil
		case "directory_exists":
			return conditions.DirectoryExists{Path: arg}, nil
		default:
			return conditions.CommandExists{Command: arg}, nil
		}

	case "env_var":
		if len(call.Args) < 1 || len(call.Args) > 2 {
			return nil, &ParseError{Origin: origin, Line: line(call), Col: col(call),
				Msg: "env_var(...) takes a name and an optional value"}
		}
		varName, err := e.extractString(origin, call.Args[0], "")
		if err != nil {
			return nil, err
		}
		cond := conditions.EnvVar{Name: varName}
		if len(call.Args) == 2 {
			value, err := e.extractString(origin, call.Args[1], "")
			if err != nil {
				return nil, err
			}
			cond.Value = value
			cond.HasValue = true
		}
		return cond, nil

	case "all_of", "any_of":
		if len(call.Args) != 1 {
			return nil, &ParseError{Origin: origin, Line: line(call), Col: col(call),
				Msg: fmt.Sprintf("%s(...) takes one list argument", name)}
		}
		list, ok := unparen(call.Args[0]).(*syntax.ListExpr)
		if !ok {
			return nil, unsupportedExpr(origin, call.Args[0], name+"(...) argument must be a literal list")
		}
		children := make([]conditions.Condition, 0, len(list.List))
		for _, item := range list.List {
			child, err := e.extractCondition(origin, item)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if name == "all_of" {
			return conditions.AllOf{Conditions: children}, nil
		}
		return conditions.AnyOf{Conditions: children}, nil

	default:
		return nil, unsupportedExpr(origin, call, fmt.Sprintf("unknown condition %s(...)", name))
	}
}

// extractConditionChain handles property(path).op(value) and
// command(name, [args]).{exists,succeeds,contains}().
func (e *Extractor) extractConditionChain(origin string, fn *syntax.DotExpr, call *syntax.CallExpr) (conditions.Condition, error) {
	base, ok := unparen(fn.X).(*syntax.CallExpr)
	if !ok {
		return nil, unsupportedExpr(origin, fn, "condition method receiver")
	}
	baseIdent, ok := base.Fn.(*syntax.Ident)
	if !ok {
		return nil, unsupportedExpr(origin, base, "condition method receiver")
	}

	switch baseIdent.Name {
	case "property":
		path, err := e.singleString(origin, "property", base)
		if err != nil {
			return nil, err
		}
		op, known := map[string]conditions.CompareOp{
			"equals":      conditions.OpEquals,
			"not_equals":  conditions.OpNotEquals,
			"contains":    conditions.OpContains,
			"starts_with": conditions.OpStartsWith,
			"ends_with":   conditions.OpEndsWith,
		}[fn.Name.Name]
		if !known {
			return nil, unsupportedExpr(origin, fn, fmt.Sprintf("property comparison .%s(...)", fn.Name.Name))
		}
		value, err := e.singleString(origin, fn.Name.Name, call)
		if err != nil {
			return nil, err
		}
		return conditions.Property{Path: path, Op: op, Value: value}, nil

	case "command":
		if len(base.Args) < 1 || len(base.Args) > 2 {
			return nil, &ParseError{Origin: origin, Line: line(base), Col: col(base),
				Msg: "command(...) takes a name and an optional argument list"}
		}
		name, err := e.extractString(origin, base.Args[0], "")
		if err != nil {
			return nil, err
		}
		var args []string
		if len(base.Args) == 2 {
			list, ok := unparen(base.Args[1]).(*syntax.ListExpr)
			if !ok {
				return nil, unsupportedExpr(origin, base.Args[1], "command arguments must be a literal list")
			}
			for _, item := range list.List {
				s, err := e.extractString(origin, item, "")
				if err != nil {
					return nil, err
				}
				args = append(args, s)
			}
		}
		switch fn.Name.Name {
		case "exists":
			if len(call.Args) != 0 {
				return nil, &ParseError{Origin: origin, Line: line(call), Col: col(call),
					Msg: ".exists() takes no arguments"}
			}
			return conditions.CommandExists{Command: name}, nil
		case "succeeds":
			if len(call.Args) != 0 {
				return nil, &ParseError{Origin: origin, Line: line(call), Col: col(call),
					Msg: ".succeeds() takes no arguments"}
			}
			return conditions.CommandSucceeds{Command: name, Args: args}, nil
		case "contains":
			needle, err := e.singleString(origin, "contains", call)
			if err != nil {
				return nil, err
			}
			return conditions.CommandContains{Command: name, Args: args, Needle: needle}, nil
		default:
			return nil, unsupportedExpr(origin, fn, fmt.Sprintf("command probe .%s(...)", fn.Name.Name))
		}

	default:
		return nil, unsupportedExpr(origin, base, fmt.Sprintf("condition builder %s(...)", baseIdent.Name))
	}
}

func (e *Extractor) singleString(origin, name string, call *syntax.CallExpr) (string, error) {
	if len(call.Args) != 1 {
		return "", &ParseError{Origin: origin, Line: line(call), Col: col(call),
			Msg: fmt.Sprintf("%s(...) takes exactly one string argument", name)}
	}
	return e.extractString(origin, call.Args[0], "")
}

// chainCall is one link of a builder chain in source order.
type chainCall struct {
	name string
	call *syntax.CallExpr
}

// unwindChain flattens module("x").a(...).b(...) into calls in source
// order, with the root call first.
func unwindChain(origin string, expr syntax.Expr) ([]chainCall, error) {
	expr = unparen(expr)
	call, ok := expr.(*syntax.CallExpr)
	if !ok {
		return nil, unsupportedExpr(origin, expr, "top-level expression must be a module builder chain")
	}

	switch fn := call.Fn.(type) {
	case *syntax.Ident:
		return []chainCall{{name: fn.Name, call: call}}, nil
	case *syntax.DotExpr:
		inner, err := unwindChain(origin, fn.X)
		if err != nil {
			return nil, err
		}
		return append(inner, chainCall{name: fn.Name.Name, call: call}), nil
	default:
		return nil, unsupportedExpr(origin, call, "call in module builder chain")
	}
}

func unparen(expr syntax.Expr) syntax.Expr {
	for {
		p, ok := expr.(*syntax.ParenExpr)
		if !ok {
			return expr
		}
		expr = p.X
	}
}

func unsupportedStmt(origin string, stmt syntax.Stmt) error {
	construct := "statement"
	switch stmt.(type) {
	case *syntax.AssignStmt:
		construct = "assignment"
	case *syntax.DefStmt:
		construct = "function definition"
	case *syntax.ForStmt, *syntax.WhileStmt:
		construct = "loop"
	case *syntax.IfStmt:
		construct = "conditional statement"
	case *syntax.LoadStmt:
		construct = "load statement"
	}
	start, _ := stmt.Span()
	return &UnsupportedConstructError{Origin: origin, Line: start.Line, Col: start.Col, Construct: construct}
}

func unsupportedExpr(origin string, node syntax.Node, construct string) error {
	start, _ := node.Span()
	return &UnsupportedConstructError{Origin: origin, Line: start.Line, Col: start.Col, Construct: construct}
}

func line(node syntax.Node) int32 {
	start, _ := node.Span()
	return start.Line
}

func col(node syntax.Node) int32 {
	start, _ := node.Span()
	return start.Col
}
