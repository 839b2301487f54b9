package store

import (
	"strings"

	"github.com/opennewsroom/newsdesk-api/internal/models"
)

// Op enumerates the neutral filter operators understood by both backends.
type Op string

const (
	OpAnd    Op = "and"
	OpOr     Op = "or"
	OpEq     Op = "eq"
	OpNe     Op = "ne"
	OpIn     Op = "in"
	OpLt     Op = "lt"
	OpLte    Op = "lte"
	OpGt     Op = "gt"
	OpGte    Op = "gte"
	OpExists Op = "exists"
	OpMissing Op = "missing"
)

// Cond is a node of the neutral filter expression. Leaf nodes carry
// Field/Value, composite nodes carry Subs. The zero value matches all
// documents.
type Cond struct {
	Op    Op
	Field string
	Value interface{}
	Subs  []Cond
}

// Eq matches documents whose field equals value.
func Eq(field string, value interface{}) Cond { return Cond{Op: OpEq, Field: field, Value: value} }

// Ne matches documents whose field differs from value.
func Ne(field string, value interface{}) Cond { return Cond{Op: OpNe, Field: field, Value: value} }

// In matches documents whose field equals any of the values.
func In(field string, values ...interface{}) Cond {
	return Cond{Op: OpIn, Field: field, Value: values}
}

// Lt matches documents whose field is strictly below value.
func Lt(field string, value interface{}) Cond { return Cond{Op: OpLt, Field: field, Value: value} }

// Lte matches documents whose field is at or below value.
func Lte(field string, value interface{}) Cond { return Cond{Op: OpLte, Field: field, Value: value} }

// Gt matches documents whose field is strictly above value.
func Gt(field string, value interface{}) Cond { return Cond{Op: OpGt, Field: field, Value: value} }

// Gte matches documents whose field is at or above value.
func Gte(field string, value interface{}) Cond { return Cond{Op: OpGte, Field: field, Value: value} }

// Exists matches documents carrying a non-null field.
func Exists(field string) Cond { return Cond{Op: OpExists, Field: field} }

// Missing matches documents without the field (or with a null value).
func Missing(field string) Cond { return Cond{Op: OpMissing, Field: field} }

// And combines conditions conjunctively.
func And(subs ...Cond) Cond { return Cond{Op: OpAnd, Subs: subs} }

// Or combines conditions disjunctively.
func Or(subs ...Cond) Cond { return Cond{Op: OpOr, Subs: subs} }

// IsZero reports whether the condition is the match-all zero value.
func (c Cond) IsZero() bool {
	return c.Op == "" && c.Field == "" && c.Value == nil && len(c.Subs) == 0
}

// SortField describes one sort key.
type SortField struct {
	Field string
	Desc  bool
}

// Projection restricts the fields returned by a query. Include and
// Exclude are mutually exclusive; system fields are always retained.
type Projection struct {
	Include []string
	Exclude []string
}

// Query is the neutral query representation translated into each
// backend's native language.
type Query struct {
	Where      Cond
	Sort       []SortField
	Page       int
	PageSize   int
	Projection *Projection
}

// Result bundles matching documents with the total hit count.
type Result struct {
	Docs  []models.Doc
	Total int
}

// Lookup resolves a dotted field path against a document.
func Lookup(doc models.Doc, field string) (interface{}, bool) {
	if doc == nil {
		return nil, false
	}
	parts := strings.Split(field, ".")
	cur := doc
	for i, part := range parts {
		if i == len(parts)-1 {
			v, ok := cur[part]
			if !ok || v == nil {
				return nil, false
			}
			return v, true
		}
		cur = cur.GetDoc(part)
		if cur == nil {
			return nil, false
		}
	}
	return nil, false
}

// Matches evaluates the condition against a document. Comparisons follow
// JSON semantics: numbers compare numerically, everything else compares
// as strings (RFC3339 timestamps order correctly this way).
func (c Cond) Matches(doc models.Doc) bool {
	if c.IsZero() {
		return true
	}
	switch c.Op {
	case OpAnd:
		for _, sub := range c.Subs {
			if !sub.Matches(doc) {
				return false
			}
		}
		return true
	case OpOr:
		for _, sub := range c.Subs {
			if sub.Matches(doc) {
				return true
			}
		}
		return len(c.Subs) == 0
	case OpExists:
		_, ok := Lookup(doc, c.Field)
		return ok
	case OpMissing:
		_, ok := Lookup(doc, c.Field)
		return !ok
	}

	actual, ok := Lookup(doc, c.Field)
	switch c.Op {
	case OpEq:
		return ok && equalValues(actual, c.Value)
	case OpNe:
		return !ok || !equalValues(actual, c.Value)
	case OpIn:
		if !ok {
			return false
		}
		values, _ := c.Value.([]interface{})
		for _, v := range values {
			if equalValues(actual, v) {
				return true
			}
		}
		return false
	case OpLt, OpLte, OpGt, OpGte:
		if !ok {
			return false
		}
		cmp, comparable := compareValues(actual, c.Value)
		if !comparable {
			return false
		}
		switch c.Op {
		case OpLt:
			return cmp < 0
		case OpLte:
			return cmp <= 0
		case OpGt:
			return cmp > 0
		default:
			return cmp >= 0
		}
	}
	return false
}

func equalValues(a, b interface{}) bool {
	if na, aok := asFloat(a); aok {
		if nb, bok := asFloat(b); bok {
			return na == nb
		}
	}
	return asString(a) == asString(b)
}

func compareValues(a, b interface{}) (int, bool) {
	if na, aok := asFloat(a); aok {
		if nb, bok := asFloat(b); bok {
			switch {
			case na < nb:
				return -1, true
			case na > nb:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	sa, sb := asString(a), asString(b)
	if sa == "" && sb == "" {
		return 0, false
	}
	// Timestamps compare as instants so mixed sub-second encodings from
	// external payloads still order chronologically.
	if ta, aok := models.ParseTime(sa); aok {
		if tb, bok := models.ParseTime(sb); bok {
			switch {
			case ta.Before(tb):
				return -1, true
			case ta.After(tb):
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return strings.Compare(sa, sb), true
}

func asFloat(v interface{}) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	}
	return 0, false
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
