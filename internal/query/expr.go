// Package query compiles typed filters and read specs into parameterized
// SQL against the views and tables described by package schema.
package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery is returned for malformed filter, sort, grouping or
// projection combinations.
var ErrInvalidQuery = errors.New("invalid query")

// Op is a filter operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpLt       Op = "lt"
	OpLe       Op = "le"
	OpGt       Op = "gt"
	OpGe       Op = "ge"
	OpLike     Op = "like"
	OpIn       Op = "in"
	OpNull     Op = "null"
	OpNotNull  Op = "notnull"
	OpAnd      Op = "and"
	OpOr       Op = "or"
	OpNot      Op = "not"
	opInSelect Op = "inselect"
)

var comparisons = map[Op]string{
	OpEq: "=",
	OpNe: "!=",
	OpLt: "<",
	OpLe: "<=",
	OpGt: ">",
	OpGe: ">=",
}

// Expr is a boolean filter over logical column names. The zero Expr matches
// every row.
type Expr struct {
	Op   Op
	Col  string
	Val  any
	Vals []any
	Args []Expr

	sub string
}

// Eq matches rows where col equals v.
func Eq(col string, v any) Expr { return Expr{Op: OpEq, Col: col, Val: v} }

// Ne matches rows where col differs from v. NULL never matches.
func Ne(col string, v any) Expr { return Expr{Op: OpNe, Col: col, Val: v} }

// Lt matches rows where col < v.
func Lt(col string, v any) Expr { return Expr{Op: OpLt, Col: col, Val: v} }

// Le matches rows where col <= v.
func Le(col string, v any) Expr { return Expr{Op: OpLe, Col: col, Val: v} }

// Gt matches rows where col > v.
func Gt(col string, v any) Expr { return Expr{Op: OpGt, Col: col, Val: v} }

// Ge matches rows where col >= v.
func Ge(col string, v any) Expr { return Expr{Op: OpGe, Col: col, Val: v} }

// Like matches col against a LIKE pattern using backslash as the escape
// character. Matching is case-insensitive for ASCII.
func Like(col string, v any) Expr { return Expr{Op: OpLike, Col: col, Val: v} }

// IsNull matches rows where col is NULL.
func IsNull(col string) Expr { return Expr{Op: OpNull, Col: col} }

// NotNull matches rows where col is not NULL.
func NotNull(col string) Expr { return Expr{Op: OpNotNull, Col: col} }

// In matches rows where col equals one of vals. An empty list matches
// nothing.
func In(col string, vals ...any) Expr {
	return Expr{Op: OpIn, Col: col, Vals: vals}
}

// Not negates e.
func Not(e Expr) Expr { return Expr{Op: OpNot, Args: []Expr{e}} }

// And joins the non-zero expressions. It returns the zero Expr when none
// remain.
func And(exprs ...Expr) Expr { return join(OpAnd, exprs) }

// Or joins the non-zero expressions.
func Or(exprs ...Expr) Expr { return join(OpOr, exprs) }

func join(op Op, exprs []Expr) Expr {
	args := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if !e.IsZero() {
			args = append(args, e)
		}
	}
	switch len(args) {
	case 0:
		return Expr{}
	case 1:
		return args[0]
	}
	return Expr{Op: op, Args: args}
}

// InSelect matches col against the rows of a trusted subquery written with
// physical names. It cannot be built from caller input.
func InSelect(col, subquery string, args ...any) Expr {
	return Expr{Op: opInSelect, Col: col, Vals: args, sub: subquery}
}

// IsZero reports whether e is the empty filter.
func (e Expr) IsZero() bool { return e.Op == "" }

// ResolveFunc maps a logical column to its physical SQL expression.
type ResolveFunc func(col string) (string, bool)

// Compile renders e as a SQL boolean expression with positional arguments.
func (e Expr) Compile(resolve ResolveFunc) (string, []any, error) {
	var b strings.Builder
	var args []any
	if err := e.compile(resolve, &b, &args); err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func (e Expr) compile(resolve ResolveFunc, b *strings.Builder, args *[]any) error {
	switch e.Op {
	case "":
		b.WriteString("1")
		return nil
	case OpAnd, OpOr:
		if len(e.Args) == 0 {
			return fmt.Errorf("%w: %s without operands", ErrInvalidQuery, e.Op)
		}
		sep := " AND "
		if e.Op == OpOr {
			sep = " OR "
		}
		b.WriteByte('(')
		for i, a := range e.Args {
			if i > 0 {
				b.WriteString(sep)
			}
			if err := a.compile(resolve, b, args); err != nil {
				return err
			}
		}
		b.WriteByte(')')
		return nil
	case OpNot:
		if len(e.Args) != 1 {
			return fmt.Errorf("%w: not takes one operand", ErrInvalidQuery)
		}
		b.WriteString("NOT (")
		if err := e.Args[0].compile(resolve, b, args); err != nil {
			return err
		}
		b.WriteByte(')')
		return nil
	}

	col, ok := resolve(e.Col)
	if !ok {
		return fmt.Errorf("%w: unknown column %q", ErrInvalidQuery, e.Col)
	}
	switch e.Op {
	case OpNull:
		b.WriteString(col + " IS NULL")
	case OpNotNull:
		b.WriteString(col + " IS NOT NULL")
	case OpIn:
		if len(e.Vals) == 0 {
			b.WriteString("0")
			return nil
		}
		b.WriteString(col + " IN (" + placeholders(len(e.Vals)) + ")")
		*args = append(*args, e.Vals...)
	case opInSelect:
		b.WriteString(col + " IN (" + e.sub + ")")
		*args = append(*args, e.Vals...)
	case OpLike:
		if e.Val == nil {
			return fmt.Errorf("%w: %s like needs a value", ErrInvalidQuery, e.Col)
		}
		b.WriteString(col + ` LIKE ? ESCAPE '\'`)
		*args = append(*args, e.Val)
	default:
		sym, ok := comparisons[e.Op]
		if !ok {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, e.Op)
		}
		if e.Val == nil {
			return fmt.Errorf("%w: %s %s needs a value", ErrInvalidQuery, e.Col, e.Op)
		}
		b.WriteString(col + " " + sym + " ?")
		*args = append(*args, e.Val)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// EscapeLike quotes the LIKE wildcards in s so it matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}
