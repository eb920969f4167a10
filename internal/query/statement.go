package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/matheus3301/imstore/internal/schema"
)

// Order is one sort key.
type Order struct {
	Col  string
	Desc bool
}

// Spec is a caller's read request against a route.
type Spec struct {
	Columns []string
	Where   Expr
	GroupBy []string
	OrderBy []Order
	Limit   int
}

// Values is a column-to-value map for inserts and updates.
type Values map[string]any

// Keys returns the column names in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether col is set.
func (v Values) Has(col string) bool {
	_, ok := v[col]
	return ok
}

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// Int64 returns col as an integer when it holds one.
func (v Values) Int64(col string) (int64, bool) {
	return toInt64(v[col])
}

func toInt64(x any) (int64, bool) {
	switch n := x.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// Select compiles a read of view. mandated is ANDed with the caller's
// filter. Logical names in s resolve through the view's projection.
func Select(v schema.View, s Spec, mandated Expr) (string, []any, error) {
	cols := s.Columns
	var selected []schema.Column
	if len(cols) == 0 {
		selected = v.Defaults()
	} else {
		for _, name := range cols {
			c, ok := v.Lookup(name)
			if !ok {
				return "", nil, fmt.Errorf("%w: unknown column %q", ErrInvalidQuery, name)
			}
			selected = append(selected, c)
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range selected {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Expr + ` AS "` + c.Name + `"`)
	}
	b.WriteString(" FROM " + v.From)

	where := And(mandated, s.Where)
	var args []any
	if !where.IsZero() {
		clause, whereArgs, err := where.Compile(v.Resolve)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" WHERE " + clause)
		args = whereArgs
	}

	if len(s.GroupBy) > 0 {
		exprs := make([]string, len(s.GroupBy))
		for i, g := range s.GroupBy {
			e, ok := v.Resolve(g)
			if !ok {
				return "", nil, fmt.Errorf("%w: unknown group column %q", ErrInvalidQuery, g)
			}
			exprs[i] = e
		}
		b.WriteString(" GROUP BY " + strings.Join(exprs, ", "))
	}

	if len(s.OrderBy) > 0 {
		exprs := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			e, ok := v.Resolve(o.Col)
			if !ok {
				return "", nil, fmt.Errorf("%w: unknown sort column %q", ErrInvalidQuery, o.Col)
			}
			if o.Desc {
				e += " DESC"
			}
			exprs[i] = e
		}
		b.WriteString(" ORDER BY " + strings.Join(exprs, ", "))
	}

	if s.Limit < 0 {
		return "", nil, fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	if s.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(s.Limit))
	}
	return b.String(), args, nil
}

// Insert compiles an insert into t. With replace set, a row colliding on a
// unique key is overwritten instead of failing.
func Insert(t schema.Table, vals Values, replace bool) (string, []any, error) {
	verb := "INSERT INTO "
	if replace {
		verb = "INSERT OR REPLACE INTO "
	}
	if len(vals) == 0 {
		return verb + t.Name + " DEFAULT VALUES", nil, nil
	}
	keys := vals.Keys()
	args := make([]any, len(keys))
	for i, k := range keys {
		if !t.Has(k) {
			return "", nil, fmt.Errorf("%w: %s has no column %q", ErrInvalidQuery, t.Name, k)
		}
		args[i] = vals[k]
	}
	q := verb + t.Name + " (" + strings.Join(keys, ", ") + ") VALUES (" + placeholders(len(keys)) + ")"
	return q, args, nil
}

// Update compiles an update of t restricted by where.
func Update(t schema.Table, vals Values, where Expr) (string, []any, error) {
	if len(vals) == 0 {
		return "", nil, fmt.Errorf("%w: update without values", ErrInvalidQuery)
	}
	keys := vals.Keys()
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys))
	for i, k := range keys {
		if !t.Has(k) {
			return "", nil, fmt.Errorf("%w: %s has no column %q", ErrInvalidQuery, t.Name, k)
		}
		sets[i] = k + " = ?"
		args = append(args, vals[k])
	}
	q := "UPDATE " + t.Name + " SET " + strings.Join(sets, ", ")
	clause, whereArgs, err := tableWhere(t, where)
	if err != nil {
		return "", nil, err
	}
	return q + clause, append(args, whereArgs...), nil
}

// Delete compiles a delete from t restricted by where.
func Delete(t schema.Table, where Expr) (string, []any, error) {
	clause, args, err := tableWhere(t, where)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + t.Name + clause, args, nil
}

func tableWhere(t schema.Table, where Expr) (string, []any, error) {
	if where.IsZero() {
		return "", nil, nil
	}
	resolve := func(col string) (string, bool) {
		if !t.Has(col) {
			return "", false
		}
		return t.Name + "." + col, true
	}
	clause, args, err := where.Compile(resolve)
	if err != nil {
		return "", nil, err
	}
	return " WHERE " + clause, args, nil
}
