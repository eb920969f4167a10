package ctl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/matheus3301/imstore/internal/api"
	"github.com/matheus3301/imstore/internal/query"
	"github.com/matheus3301/imstore/internal/schema"
)

func decodeObject(raw, what string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return m, nil
}

func parseValues(raw string) (query.Values, error) {
	m, err := decodeObject(raw, "values")
	if err != nil {
		return nil, err
	}
	return api.DecodeValues(m)
}

func parseWhere(raw string) (query.Expr, error) {
	m, err := decodeObject(raw, "where")
	if err != nil {
		return query.Expr{}, err
	}
	return query.ParseExpr(m)
}

func parseSpec(columns []string, where string, order []string, limit int) (query.Spec, error) {
	w, err := parseWhere(where)
	if err != nil {
		return query.Spec{}, err
	}
	spec := query.Spec{Columns: columns, Where: w, Limit: limit}
	for _, o := range order {
		if col, ok := strings.CutPrefix(o, "-"); ok {
			spec.OrderBy = append(spec.OrderBy, query.Order{Col: col, Desc: true})
			continue
		}
		spec.OrderBy = append(spec.OrderBy, query.Order{Col: o})
	}
	return spec, nil
}

var presenceModes = map[string]int{
	"offline":   schema.Offline,
	"invisible": schema.Invisible,
	"away":      schema.Away,
	"idle":      schema.Idle,
	"dnd":       schema.DoNotDisturb,
	"available": schema.Available,
}

// parsePresence accepts a mode name or its numeric code.
func parsePresence(s string) (int, error) {
	if m, ok := presenceModes[strings.ToLower(s)]; ok {
		return m, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < schema.Offline || n > schema.Available {
		return 0, fmt.Errorf("unknown presence mode %q", s)
	}
	return n, nil
}
