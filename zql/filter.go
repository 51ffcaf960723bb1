// Package zql implements the ZTeraDB query language surface: the filter
// condition tree and the query builder that assembles the wire query
// document.
package zql

import (
	"fmt"

	zterr "github.com/zteradb/zteradb-go/errors"
)

// Filter operator alphabet. These are the literal tokens the server's query
// engine consumes.
const (
	OpAnd = "&&"
	OpOr  = "||"

	OpEqual        = "="
	OpNotEqual     = "!="
	OpGreater      = ">"
	OpGreaterEqual = ">="
	OpLess         = "<"
	OpLessEqual    = "<="

	OpAdd = "+"
	OpSub = "-"
	OpMul = "*"
	OpDiv = "/"
	OpMod = "%"

	OpContains    = "%%"
	OpStartsWith  = "^%%"
	OpEndsWith    = "%%$"
	OpIContains   = "i%%"
	OpIStartsWith = "^i%%"
	OpIEndsWith   = "i%%$"

	OpIn = "IN"
)

// Operand is one leg of a filter node: a literal scalar, a field reference,
// or a nested condition whose serialized form is substituted in place.
type Operand interface {
	encode() interface{}
}

// Literal is a scalar value compared against.
type Literal struct {
	Value interface{}
}

func (l Literal) encode() interface{} {
	return l.Value
}

// Field references a document field by name.
type Field struct {
	Name string
}

func (f Field) encode() interface{} {
	return f.Name
}

// node is one operator application. Binary nodes carry operand/result;
// n-ary nodes carry an operand list.
type node struct {
	op    string
	left  Operand
	right Operand
	list  []Operand
	nary  bool
}

func (n *node) encode() interface{} {
	if n.nary {
		operands := make([]interface{}, len(n.list))
		for i, op := range n.list {
			operands[i] = op.encode()
		}
		return map[string]interface{}{
			"operator": n.op,
			"operand":  operands,
		}
	}
	return map[string]interface{}{
		"operator": n.op,
		"operand":  n.left.encode(),
		"result":   n.right.encode(),
	}
}

// Condition is a filter builder. Constructors produce a Condition holding a
// single node; Append accumulates further nodes into the same builder, each
// call returning the builder for chaining. Construction-time validation
// failures stick to the builder and surface from Err or Encode.
type Condition struct {
	nodes []*node
	err   error
}

// Err returns the first validation error recorded while building.
func (c *Condition) Err() error {
	return c.err
}

// Append accumulates another condition's nodes into this builder.
func (c *Condition) Append(other *Condition) *Condition {
	if c.err != nil {
		return c
	}
	if other == nil {
		c.err = zterr.Value("cannot append a nil condition")
		return c
	}
	if other.err != nil {
		c.err = other.err
		return c
	}
	c.nodes = append(c.nodes, other.nodes...)
	return c
}

// Encode returns the accumulated serialized form: the single node object
// when exactly one node was built, otherwise the list of node objects.
func (c *Condition) Encode() (interface{}, error) {
	if c.err != nil {
		return nil, c.err
	}
	if len(c.nodes) == 0 {
		return nil, zterr.Value("condition is empty")
	}
	if len(c.nodes) == 1 {
		return c.nodes[0].encode(), nil
	}
	forms := make([]interface{}, len(c.nodes))
	for i, n := range c.nodes {
		forms[i] = n.encode()
	}
	return forms, nil
}

// encode implements Operand so conditions nest inside operand lists.
func (c *Condition) encode() interface{} {
	form, err := c.Encode()
	if err != nil {
		return nil
	}
	return form
}

func failed(err error) *Condition {
	return &Condition{err: err}
}

func single(n *node) *Condition {
	return &Condition{nodes: []*node{n}}
}

// coerce maps a caller-supplied value onto the operand union. Strings are
// field references; use Literal to compare against a string constant in an
// operand-list position (binary result positions already take the raw
// value). Arrays and functions are not valid operand values.
func coerce(v interface{}) (Operand, error) {
	switch x := v.(type) {
	case *Condition:
		if x == nil {
			return nil, zterr.Value("nil condition is not a valid operand")
		}
		if x.err != nil {
			return nil, x.err
		}
		if len(x.nodes) == 0 {
			return nil, zterr.Value("empty condition is not a valid operand")
		}
		return x, nil
	case Operand:
		return x, nil
	case string:
		return Field{Name: x}, nil
	case nil, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Literal{Value: x}, nil
	default:
		return nil, zterr.Value("invalid operand value of type %T", v)
	}
}

func coerceList(op string, values []interface{}) ([]Operand, error) {
	operands := make([]Operand, len(values))
	for i, v := range values {
		o, err := coerce(v)
		if err != nil {
			return nil, zterr.Value("operand %d of %q: %v", i, op, err)
		}
		operands[i] = o
	}
	return operands, nil
}

func nary(op string, minLen int, values []interface{}) *Condition {
	if len(values) < minLen {
		return failed(zterr.Value("%q requires at least %d operands, got %d", op, minLen, len(values)))
	}
	operands, err := coerceList(op, values)
	if err != nil {
		return failed(err)
	}
	return single(&node{op: op, list: operands, nary: true})
}

func binary(op string, left, right interface{}) *Condition {
	l, err := coerce(left)
	if err != nil {
		return failed(zterr.Value("left operand of %q: %v", op, err))
	}
	r, err := coerce(right)
	if err != nil {
		return failed(zterr.Value("right operand of %q: %v", op, err))
	}
	return single(&node{op: op, left: l, right: r})
}

// And combines conditions conjunctively.
func And(operands ...interface{}) *Condition {
	return nary(OpAnd, 0, operands)
}

// Or combines conditions disjunctively.
func Or(operands ...interface{}) *Condition {
	return nary(OpOr, 0, operands)
}

// Equal matches left = right. A string left is a field reference; the right
// side is taken as the comparison value.
func Equal(left interface{}, value interface{}) *Condition {
	l, err := coerce(left)
	if err != nil {
		return failed(zterr.Value("left operand of %q: %v", OpEqual, err))
	}
	return single(&node{op: OpEqual, left: l, right: Literal{Value: value}})
}

// NotEqual matches left != right, with the same shape as Equal.
func NotEqual(left interface{}, value interface{}) *Condition {
	l, err := coerce(left)
	if err != nil {
		return failed(zterr.Value("left operand of %q: %v", OpNotEqual, err))
	}
	return single(&node{op: OpNotEqual, left: l, right: Literal{Value: value}})
}

// GreaterThan requires at least two operands and matches strictly
// descending order across them.
func GreaterThan(operands ...interface{}) *Condition {
	return nary(OpGreater, 2, operands)
}

// GreaterOrEqual requires at least two operands.
func GreaterOrEqual(operands ...interface{}) *Condition {
	return nary(OpGreaterEqual, 2, operands)
}

// LessThan requires at least two operands.
func LessThan(operands ...interface{}) *Condition {
	return nary(OpLess, 2, operands)
}

// LessOrEqual requires at least two operands.
func LessOrEqual(operands ...interface{}) *Condition {
	return nary(OpLessEqual, 2, operands)
}

// Add sums its operands.
func Add(operands ...interface{}) *Condition {
	return nary(OpAdd, 2, operands)
}

// Sub subtracts left to right across its operands.
func Sub(operands ...interface{}) *Condition {
	return nary(OpSub, 2, operands)
}

// Mul multiplies its operands.
func Mul(operands ...interface{}) *Condition {
	return nary(OpMul, 2, operands)
}

// Div divides a by b. A zero divisor is not rejected here; the server
// reports it as a query error.
func Div(a, b interface{}) *Condition {
	return nary(OpDiv, 2, []interface{}{a, b})
}

// Mod takes a modulo b. Like Div, a zero divisor is left to the server.
func Mod(a, b interface{}) *Condition {
	return nary(OpMod, 2, []interface{}{a, b})
}

// In matches a field against a set of values.
func In(field string, values []interface{}) *Condition {
	if field == "" {
		return failed(zterr.Value("%q requires a non-empty field name", OpIn))
	}
	if values == nil {
		return failed(zterr.Value("%q requires an array of values", OpIn))
	}
	list := make([]interface{}, len(values))
	copy(list, values)
	return single(&node{op: OpIn, left: Field{Name: field}, right: Literal{Value: list}})
}

func stringOp(op, field, value string) *Condition {
	if field == "" || value == "" {
		return failed(zterr.Value("%q requires non-empty field and value strings", op))
	}
	return single(&node{op: op, left: Field{Name: field}, right: Literal{Value: value}})
}

// Contains matches fields containing value, case-sensitively.
func Contains(field, value string) *Condition {
	return stringOp(OpContains, field, value)
}

// StartsWith matches fields beginning with value, case-sensitively.
func StartsWith(field, value string) *Condition {
	return stringOp(OpStartsWith, field, value)
}

// EndsWith matches fields ending with value, case-sensitively.
func EndsWith(field, value string) *Condition {
	return stringOp(OpEndsWith, field, value)
}

// IContains matches fields containing value, ignoring case.
func IContains(field, value string) *Condition {
	return stringOp(OpIContains, field, value)
}

// IStartsWith matches fields beginning with value, ignoring case.
func IStartsWith(field, value string) *Condition {
	return stringOp(OpIStartsWith, field, value)
}

// IEndsWith matches fields ending with value, ignoring case.
func IEndsWith(field, value string) *Condition {
	return stringOp(OpIEndsWith, field, value)
}

// Decode rebuilds a Condition from its serialized form: a node object or a
// list of node objects, as produced by Encode.
func Decode(form interface{}) (*Condition, error) {
	switch v := form.(type) {
	case map[string]interface{}:
		n, err := decodeNode(v)
		if err != nil {
			return nil, err
		}
		return single(n), nil
	case []interface{}:
		if len(v) == 0 {
			return nil, zterr.Value("cannot decode an empty condition list")
		}
		c := &Condition{}
		for _, item := range v {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return nil, zterr.Value("condition list element must be an object, got %T", item)
			}
			n, err := decodeNode(obj)
			if err != nil {
				return nil, err
			}
			c.nodes = append(c.nodes, n)
		}
		return c, nil
	default:
		return nil, zterr.Value("cannot decode condition from %T", form)
	}
}

func decodeNode(obj map[string]interface{}) (*node, error) {
	op, ok := obj["operator"].(string)
	if !ok || op == "" {
		return nil, zterr.Value("condition node is missing an operator")
	}

	operand, ok := obj["operand"]
	if !ok {
		return nil, zterr.Value("condition node %q is missing its operand", op)
	}

	if result, hasResult := obj["result"]; hasResult {
		left, err := decodeOperand(operand)
		if err != nil {
			return nil, err
		}
		return &node{op: op, left: left, right: Literal{Value: result}}, nil
	}

	list, ok := operand.([]interface{})
	if !ok {
		return nil, zterr.Value("condition node %q requires an operand list", op)
	}
	operands := make([]Operand, len(list))
	for i, item := range list {
		o, err := decodeOperand(item)
		if err != nil {
			return nil, err
		}
		operands[i] = o
	}
	return &node{op: op, list: operands, nary: true}, nil
}

func decodeOperand(v interface{}) (Operand, error) {
	switch x := v.(type) {
	case map[string]interface{}:
		n, err := decodeNode(x)
		if err != nil {
			return nil, err
		}
		return single(n), nil
	case []interface{}:
		c, err := Decode(x)
		if err != nil {
			return nil, err
		}
		return c, nil
	case string:
		return Field{Name: x}, nil
	default:
		return Literal{Value: x}, nil
	}
}

// String renders the serialized form for logs and debugging.
func (c *Condition) String() string {
	form, err := c.Encode()
	if err != nil {
		return fmt.Sprintf("!{%v}", err)
	}
	return fmt.Sprintf("%v", form)
}
