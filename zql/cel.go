package zql

import (
	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	lru "github.com/hashicorp/golang-lru/v2"

	zterr "github.com/zteradb/zteradb-go/errors"
)

// celCacheSize bounds the compiled-expression cache. Expressions are keyed
// by their source text.
const celCacheSize = 256

// Compiler translates CEL boolean expressions into filter condition trees,
// so callers can write "status == \"A\" && age >= 21" instead of composing
// constructors. Identifiers become field references; contains/startsWith/
// endsWith map to the case-sensitive string operators; `in` maps to IN.
type Compiler struct {
	env   *cel.Env
	cache *lru.Cache[string, *Condition]
}

// NewCompiler builds a Compiler with an empty CEL environment. Expressions
// are parsed, not type-checked: field names are free identifiers.
func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, zterr.Value("failed to build CEL environment: %v", err)
	}
	cache, err := lru.New[string, *Condition](celCacheSize)
	if err != nil {
		return nil, zterr.Value("failed to build CEL cache: %v", err)
	}
	return &Compiler{env: env, cache: cache}, nil
}

// Compile parses expr and converts it into a Condition. Results are cached;
// the returned Condition must not be mutated by the caller.
func (c *Compiler) Compile(expr string) (*Condition, error) {
	if expr == "" {
		return nil, zterr.Value("filter expression must be non-empty")
	}
	if cached, ok := c.cache.Get(expr); ok {
		return cached, nil
	}

	parsed, issues := c.env.Parse(expr)
	if issues != nil && issues.Err() != nil {
		return nil, zterr.Value("failed to parse filter expression: %v", issues.Err())
	}

	cond, err := convertExpr(parsed.NativeRep().Expr())
	if err != nil {
		return nil, err
	}

	c.cache.Add(expr, cond)
	return cond, nil
}

// defaultCompiler serves the package-level CompileCEL helper.
var defaultCompiler *Compiler

func init() {
	var err error
	defaultCompiler, err = NewCompiler()
	if err != nil {
		panic(err)
	}
}

// CompileCEL converts a CEL boolean expression into a Condition using a
// shared compiler instance.
func CompileCEL(expr string) (*Condition, error) {
	return defaultCompiler.Compile(expr)
}

func convertExpr(e celast.Expr) (*Condition, error) {
	switch e.Kind() {
	case celast.CallKind:
		return convertCall(e)
	default:
		return nil, zterr.Value("filter expression must be an operator application at the top level")
	}
}

func convertCall(e celast.Expr) (*Condition, error) {
	call := e.AsCall()

	if call.IsMemberFunction() {
		return convertMemberCall(e)
	}

	args := call.Args()

	switch call.FunctionName() {
	case operators.LogicalAnd:
		return convertLogical(And, args)
	case operators.LogicalOr:
		return convertLogical(Or, args)
	case operators.Equals:
		left, right, err := convertBinaryArgs(args)
		if err != nil {
			return nil, err
		}
		return Equal(left, rawValue(right)), nil
	case operators.NotEquals:
		left, right, err := convertBinaryArgs(args)
		if err != nil {
			return nil, err
		}
		return NotEqual(left, rawValue(right)), nil
	case operators.Greater:
		return convertOrdered(GreaterThan, args)
	case operators.GreaterEquals:
		return convertOrdered(GreaterOrEqual, args)
	case operators.Less:
		return convertOrdered(LessThan, args)
	case operators.LessEquals:
		return convertOrdered(LessOrEqual, args)
	case operators.Add:
		return convertOrdered(Add, args)
	case operators.Subtract:
		return convertOrdered(Sub, args)
	case operators.Multiply:
		return convertOrdered(Mul, args)
	case operators.Divide:
		operands, err := convertOperands(args)
		if err != nil {
			return nil, err
		}
		return Div(operands[0], operands[1]), nil
	case operators.Modulo:
		operands, err := convertOperands(args)
		if err != nil {
			return nil, err
		}
		return Mod(operands[0], operands[1]), nil
	case operators.In:
		return convertIn(args)
	default:
		return nil, zterr.Value("unsupported operator %q in filter expression", call.FunctionName())
	}
}

func convertMemberCall(e celast.Expr) (*Condition, error) {
	call := e.AsCall()

	field, err := identName(call.Target())
	if err != nil {
		return nil, err
	}
	if len(call.Args()) != 1 {
		return nil, zterr.Value("%s takes exactly one argument", call.FunctionName())
	}
	value, ok := literalString(call.Args()[0])
	if !ok {
		return nil, zterr.Value("%s requires a string literal argument", call.FunctionName())
	}

	switch call.FunctionName() {
	case "contains":
		return Contains(field, value), nil
	case "startsWith":
		return StartsWith(field, value), nil
	case "endsWith":
		return EndsWith(field, value), nil
	default:
		return nil, zterr.Value("unsupported function %q in filter expression", call.FunctionName())
	}
}

func convertLogical(combine func(...interface{}) *Condition, args []celast.Expr) (*Condition, error) {
	operands := make([]interface{}, 0, len(args))
	for _, arg := range args {
		sub, err := convertExpr(arg)
		if err != nil {
			return nil, err
		}
		operands = append(operands, sub)
	}
	cond := combine(operands...)
	return cond, cond.Err()
}

func convertOrdered(combine func(...interface{}) *Condition, args []celast.Expr) (*Condition, error) {
	operands, err := convertOperands(args)
	if err != nil {
		return nil, err
	}
	cond := combine(operands...)
	return cond, cond.Err()
}

func convertOperands(args []celast.Expr) ([]interface{}, error) {
	operands := make([]interface{}, len(args))
	for i, arg := range args {
		v, err := convertOperand(arg)
		if err != nil {
			return nil, err
		}
		operands[i] = v
	}
	return operands, nil
}

// convertOperand maps a CEL sub-expression onto an operand value: an
// identifier to a field name, a literal to its value, and a nested call to
// a nested condition.
func convertOperand(e celast.Expr) (interface{}, error) {
	switch e.Kind() {
	case celast.IdentKind, celast.SelectKind:
		name, err := identName(e)
		if err != nil {
			return nil, err
		}
		return Field{Name: name}, nil
	case celast.LiteralKind:
		return Literal{Value: e.AsLiteral().Value()}, nil
	case celast.CallKind:
		return convertCall(e)
	default:
		return nil, zterr.Value("unsupported value in filter expression")
	}
}

func convertBinaryArgs(args []celast.Expr) (interface{}, interface{}, error) {
	if len(args) != 2 {
		return nil, nil, zterr.Value("comparison requires exactly two operands")
	}
	left, err := convertOperand(args[0])
	if err != nil {
		return nil, nil, err
	}
	right, err := convertOperand(args[1])
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func convertIn(args []celast.Expr) (*Condition, error) {
	if len(args) != 2 {
		return nil, zterr.Value("in requires a field and a list")
	}
	field, err := identName(args[0])
	if err != nil {
		return nil, err
	}
	if args[1].Kind() != celast.ListKind {
		return nil, zterr.Value("in requires a literal list of values")
	}

	list := args[1].AsList()
	values := make([]interface{}, 0, list.Size())
	for _, el := range list.Elements() {
		if el.Kind() != celast.LiteralKind {
			return nil, zterr.Value("in list elements must be literals")
		}
		values = append(values, el.AsLiteral().Value())
	}
	return In(field, values), nil
}

// identName renders an identifier or dotted selection path as a field name.
func identName(e celast.Expr) (string, error) {
	switch e.Kind() {
	case celast.IdentKind:
		return e.AsIdent(), nil
	case celast.SelectKind:
		sel := e.AsSelect()
		base, err := identName(sel.Operand())
		if err != nil {
			return "", err
		}
		return base + "." + sel.FieldName(), nil
	default:
		return "", zterr.Value("expected a field name in filter expression")
	}
}

func literalString(e celast.Expr) (string, bool) {
	if e.Kind() != celast.LiteralKind {
		return "", false
	}
	s, ok := e.AsLiteral().Value().(string)
	return s, ok
}

// rawValue unwraps an operand for a binary result position, which takes the
// bare value rather than a coerced operand.
func rawValue(v interface{}) interface{} {
	if lit, ok := v.(Literal); ok {
		return lit.Value
	}
	return v
}
