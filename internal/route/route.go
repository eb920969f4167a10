// Package route maps resource locators onto typed routes.
package route

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrUnknownResource is returned when a locator matches no route.
var ErrUnknownResource = errors.New("unknown resource")

const (
	dirPrefix  = "vnd.imstore.dir/"
	itemPrefix = "vnd.imstore.item/"
)

// Route is a matched locator with its path parameters decoded.
type Route struct {
	Kind     Kind
	Locator  string
	Provider int64
	Account  int64
	ID       int64
	Contact  string
	Name     string

	def *def
}

// Notify returns the canonical locator observers of this route watch.
func (r Route) Notify() string { return r.def.notify }

// ContentType returns the typed content kind of the route.
func (r Route) ContentType() string {
	if r.def.item {
		return itemPrefix + r.def.content
	}
	return dirPrefix + r.def.content
}

// Table is a compiled set of route patterns.
type Table struct {
	root  *node
	names map[*def][]string
}

type node struct {
	literal map[string]*node
	numeric *node
	text    *node
	rest    *def
	def     *def
}

func newNode() *node {
	return &node{literal: make(map[string]*node)}
}

// NewTable compiles the built-in routes. It panics on conflicting patterns,
// which is a programming error.
func NewTable() *Table {
	t := &Table{root: newNode(), names: make(map[*def][]string)}
	for i := range defs {
		if err := t.add(&defs[i]); err != nil {
			panic(err)
		}
	}
	return t
}

func (t *Table) add(d *def) error {
	n := t.root
	segs := strings.Split(d.pattern, "/")
	var names []string
	for i, seg := range segs {
		switch {
		case strings.HasPrefix(seg, "**"):
			if i != len(segs)-1 {
				return fmt.Errorf("route %q: rest wildcard must be last", d.pattern)
			}
			if n.rest != nil {
				return fmt.Errorf("route %q: duplicate pattern", d.pattern)
			}
			n.rest = d
			t.names[d] = append(names, seg[2:])
			return nil
		case strings.HasPrefix(seg, ":"):
			if n.numeric == nil {
				n.numeric = newNode()
			}
			names = append(names, seg[1:])
			n = n.numeric
		case strings.HasPrefix(seg, "*"):
			if n.text == nil {
				n.text = newNode()
			}
			names = append(names, seg[1:])
			n = n.text
		default:
			c, ok := n.literal[seg]
			if !ok {
				c = newNode()
				n.literal[seg] = c
			}
			n = c
		}
	}
	if n.def != nil {
		return fmt.Errorf("route %q: duplicate pattern", d.pattern)
	}
	n.def = d
	t.names[d] = names
	return nil
}

// match prefers literal segments, then numeric, then single text segments,
// then the rest wildcard, backtracking when a branch dead-ends. Captured
// values are positional and named by the matched def.
func (n *node) match(segs []string, values *[]string) *def {
	if len(segs) == 0 {
		return n.def
	}
	seg := segs[0]
	if c, ok := n.literal[seg]; ok {
		if d := c.match(segs[1:], values); d != nil {
			return d
		}
	}
	for _, c := range []*node{n.numericFor(seg), n.text} {
		if c == nil {
			continue
		}
		mark := len(*values)
		*values = append(*values, seg)
		if d := c.match(segs[1:], values); d != nil {
			return d
		}
		*values = (*values)[:mark]
	}
	if n.rest != nil {
		*values = append(*values, strings.Join(segs, "/"))
		return n.rest
	}
	return nil
}

func (n *node) numericFor(seg string) *node {
	if n.numeric != nil && isNumeric(seg) {
		return n.numeric
	}
	return nil
}

// Match resolves locator against the table.
func (t *Table) Match(locator string) (Route, error) {
	clean := strings.Trim(locator, "/")
	if clean == "" {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownResource, locator)
	}
	raw := strings.Split(clean, "/")
	segs := make([]string, len(raw))
	for i, s := range raw {
		dec, err := url.PathUnescape(s)
		if err != nil || dec == "" {
			return Route{}, fmt.Errorf("%w: %q", ErrUnknownResource, locator)
		}
		segs[i] = dec
	}

	var values []string
	d := t.root.match(segs, &values)
	if d == nil {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownResource, locator)
	}

	r := Route{Kind: d.kind, Locator: clean, def: d}
	for i, name := range t.names[d] {
		v := values[i]
		switch name {
		case paramProvider:
			r.Provider, _ = strconv.ParseInt(v, 10, 64)
		case paramAccount:
			r.Account, _ = strconv.ParseInt(v, 10, 64)
		case paramID:
			r.ID, _ = strconv.ParseInt(v, 10, 64)
		case paramContact:
			r.Contact = v
		case paramName:
			r.Name = v
		}
	}
	return r, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// Locator joins path segments into a locator, escaping each segment.
func Locator(segs ...string) string {
	esc := make([]string, len(segs))
	for i, s := range segs {
		esc[i] = url.PathEscape(s)
	}
	return strings.Join(esc, "/")
}
