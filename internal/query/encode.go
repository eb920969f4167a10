package query

import (
	"fmt"
	"math"
)

// Map renders e in the nested form used on the wire, e.g.
// {"op":"and","args":[{"op":"eq","col":"username","val":"bob"}]}.
func (e Expr) Map() map[string]any {
	if e.IsZero() {
		return nil
	}
	m := map[string]any{"op": string(e.Op)}
	if e.Col != "" {
		m["col"] = e.Col
	}
	if e.Val != nil {
		m["val"] = e.Val
	}
	if len(e.Vals) > 0 {
		m["vals"] = append([]any(nil), e.Vals...)
	}
	if len(e.Args) > 0 {
		args := make([]any, len(e.Args))
		for i, a := range e.Args {
			args[i] = a.Map()
		}
		m["args"] = args
	}
	return m
}

// ParseExpr decodes the wire form produced by Expr.Map. A nil map yields the
// zero Expr.
func ParseExpr(m map[string]any) (Expr, error) {
	if len(m) == 0 {
		return Expr{}, nil
	}
	op, _ := m["op"].(string)
	e := Expr{Op: Op(op)}
	switch e.Op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpLike, OpIn, OpNull, OpNotNull, OpAnd, OpOr, OpNot:
	default:
		return Expr{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, op)
	}
	if col, ok := m["col"]; ok {
		s, ok := col.(string)
		if !ok {
			return Expr{}, fmt.Errorf("%w: col must be a string", ErrInvalidQuery)
		}
		e.Col = s
	}
	if v, ok := m["val"]; ok {
		e.Val = Normalize(v)
	}
	if vs, ok := m["vals"]; ok {
		list, ok := vs.([]any)
		if !ok {
			return Expr{}, fmt.Errorf("%w: vals must be a list", ErrInvalidQuery)
		}
		for _, v := range list {
			e.Vals = append(e.Vals, Normalize(v))
		}
	}
	if as, ok := m["args"]; ok {
		list, ok := as.([]any)
		if !ok {
			return Expr{}, fmt.Errorf("%w: args must be a list", ErrInvalidQuery)
		}
		for _, a := range list {
			am, ok := a.(map[string]any)
			if !ok {
				return Expr{}, fmt.Errorf("%w: args must hold objects", ErrInvalidQuery)
			}
			sub, err := ParseExpr(am)
			if err != nil {
				return Expr{}, err
			}
			e.Args = append(e.Args, sub)
		}
	}
	return e, nil
}

// Map renders s in wire form.
func (s Spec) Map() map[string]any {
	m := map[string]any{}
	if len(s.Columns) > 0 {
		m["columns"] = stringsToAny(s.Columns)
	}
	if w := s.Where.Map(); w != nil {
		m["where"] = w
	}
	if len(s.GroupBy) > 0 {
		m["group_by"] = stringsToAny(s.GroupBy)
	}
	if len(s.OrderBy) > 0 {
		orders := make([]any, len(s.OrderBy))
		for i, o := range s.OrderBy {
			orders[i] = map[string]any{"col": o.Col, "desc": o.Desc}
		}
		m["order_by"] = orders
	}
	if s.Limit > 0 {
		m["limit"] = s.Limit
	}
	return m
}

// ParseSpec decodes the wire form produced by Spec.Map.
func ParseSpec(m map[string]any) (Spec, error) {
	var s Spec
	var err error
	if s.Columns, err = anyToStrings(m["columns"], "columns"); err != nil {
		return Spec{}, err
	}
	if s.GroupBy, err = anyToStrings(m["group_by"], "group_by"); err != nil {
		return Spec{}, err
	}
	if w, ok := m["where"].(map[string]any); ok {
		if s.Where, err = ParseExpr(w); err != nil {
			return Spec{}, err
		}
	}
	if ob, ok := m["order_by"]; ok {
		list, ok := ob.([]any)
		if !ok {
			return Spec{}, fmt.Errorf("%w: order_by must be a list", ErrInvalidQuery)
		}
		for _, x := range list {
			om, ok := x.(map[string]any)
			if !ok {
				return Spec{}, fmt.Errorf("%w: order_by must hold objects", ErrInvalidQuery)
			}
			col, _ := om["col"].(string)
			desc, _ := om["desc"].(bool)
			s.OrderBy = append(s.OrderBy, Order{Col: col, Desc: desc})
		}
	}
	if l, ok := m["limit"]; ok {
		n, ok := toInt64(Normalize(l))
		if !ok || n < 0 {
			return Spec{}, fmt.Errorf("%w: bad limit %v", ErrInvalidQuery, l)
		}
		s.Limit = int(n)
	}
	return s, nil
}

// Normalize turns integral float64 values, as decoded from JSON or protobuf
// Struct, back into int64. Lists are normalized element-wise.
func Normalize(v any) any {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	}
	return v
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func anyToStrings(v any, field string) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list", ErrInvalidQuery, field)
	}
	out := make([]string, len(list))
	for i, x := range list {
		s, ok := x.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must hold strings", ErrInvalidQuery, field)
		}
		out[i] = s
	}
	return out, nil
}
