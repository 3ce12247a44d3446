// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package database

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"gitlab.com/accumulatenetwork/platform/protocol"
)

// MaxQueryLimit is the largest number of documents a query returns.
const MaxQueryLimit = 100

// MaxInItems bounds the values of an "in" condition.
const MaxInItems = 100

// Query operators.
const (
	OpEqual          = "=="
	OpLess           = "<"
	OpLessOrEqual    = "<="
	OpGreater        = ">"
	OpGreaterOrEqual = ">="
	OpIn             = "in"
	OpStartsWith     = "startsWith"
)

var rangeOperators = map[string]bool{
	OpLess:           true,
	OpLessOrEqual:    true,
	OpGreater:        true,
	OpGreaterOrEqual: true,
	OpStartsWith:     true,
}

// InvalidQueryError is returned for a query that is malformed or cannot
// be served by the indices of the document type.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Reason
}

func invalidQuery(format string, args ...any) *InvalidQueryError {
	return &InvalidQueryError{Reason: fmt.Sprintf(format, args...)}
}

// WhereClause is a condition on a document property.
type WhereClause struct {
	Field    string
	Operator string
	Value    any
}

// OrderClause sorts by a document property.
type OrderClause struct {
	Field      string
	Descending bool
}

// Query selects documents of one type.
type Query struct {
	Where      []WhereClause
	OrderBy    []OrderClause
	Limit      int
	StartAt    *protocol.Identifier
	StartAfter *protocol.Identifier
}

// RawQuery is a query as it is sent by clients.
type RawQuery struct {
	Where      []any  `cbor:"where,omitempty"`
	OrderBy    []any  `cbor:"orderBy,omitempty"`
	Limit      uint64 `cbor:"limit,omitempty"`
	StartAt    []byte `cbor:"startAt,omitempty"`
	StartAfter []byte `cbor:"startAfter,omitempty"`
}

// Parse converts the raw query. Where clauses are [field, operator, value]
// and order clauses are [field, "asc" | "desc"].
func (r *RawQuery) Parse() (*Query, error) {
	q := new(Query)
	for i, w := range r.Where {
		c, ok := w.([]any)
		if !ok || len(c) != 3 {
			return nil, invalidQuery("where clause %d must be [field, operator, value]", i)
		}
		field, ok1 := c[0].(string)
		op, ok2 := c[1].(string)
		if !ok1 || !ok2 {
			return nil, invalidQuery("where clause %d must start with a field and an operator", i)
		}
		q.Where = append(q.Where, WhereClause{Field: field, Operator: op, Value: c[2]})
	}

	for i, o := range r.OrderBy {
		c, ok := o.([]any)
		if !ok || len(c) == 0 || len(c) > 2 {
			return nil, invalidQuery("order clause %d must be [field, direction]", i)
		}
		field, ok := c[0].(string)
		if !ok {
			return nil, invalidQuery("order clause %d must start with a field", i)
		}
		oc := OrderClause{Field: field}
		if len(c) == 2 {
			switch c[1] {
			case "asc":
			case "desc":
				oc.Descending = true
			default:
				return nil, invalidQuery("order clause %d direction must be asc or desc", i)
			}
		}
		q.OrderBy = append(q.OrderBy, oc)
	}

	if r.Limit > MaxQueryLimit {
		return nil, invalidQuery("limit must not exceed %d", MaxQueryLimit)
	}
	q.Limit = int(r.Limit)

	var err error
	q.StartAt, err = parseQueryID("startAt", r.StartAt)
	if err != nil {
		return nil, err
	}
	q.StartAfter, err = parseQueryID("startAfter", r.StartAfter)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func parseQueryID(name string, b []byte) (*protocol.Identifier, error) {
	if b == nil {
		return nil, nil
	}
	id, err := protocol.IdentifierFromBytes(b)
	if err != nil {
		return nil, invalidQuery("%s must be a document ID", name)
	}
	return &id, nil
}

// plan is how a validated query is served.
type plan struct {
	// index is nil when the primary tree is scanned
	index  *protocol.Index
	prefix []byte

	// ids is set when the query selects documents by ID
	ids []protocol.Identifier
}

// validate checks the query against the indices of the document type and
// returns how to serve it.
func (q *Query) validate(contract *protocol.DataContract, typ string) (*plan, error) {
	if q.Limit < 0 || q.Limit > MaxQueryLimit {
		return nil, invalidQuery("limit must be between 0 and %d", MaxQueryLimit)
	}
	if q.StartAt != nil && q.StartAfter != nil {
		return nil, invalidQuery("startAt and startAfter cannot be used together")
	}

	indices, err := documentIndices(contract, typ)
	if err != nil {
		return nil, invalidQuery("%v", err)
	}

	var rangeField string
	fields := map[string]bool{}
	equal := map[string]any{}
	for _, w := range q.Where {
		if w.Field == "" {
			return nil, invalidQuery("where clause field must not be empty")
		}
		switch op := w.Operator; {
		case op == OpEqual:
			if _, err := encodeIndexValue(w.Value); err != nil {
				return nil, invalidQuery("%s: %v", w.Field, err)
			}
			equal[w.Field] = w.Value

		case op == OpIn:
			values, ok := w.Value.([]any)
			if !ok || len(values) == 0 {
				return nil, invalidQuery("%s: in requires a non-empty list", w.Field)
			}
			if len(values) > MaxInItems {
				return nil, invalidQuery("%s: in allows at most %d values", w.Field, MaxInItems)
			}
			seen := map[string]bool{}
			for _, v := range values {
				b, err := encodeIndexValue(v)
				if err != nil {
					return nil, invalidQuery("%s: %v", w.Field, err)
				}
				if seen[string(b)] {
					return nil, invalidQuery("%s: in values must be unique", w.Field)
				}
				seen[string(b)] = true
			}

		case rangeOperators[op]:
			if rangeField != "" && rangeField != w.Field {
				return nil, invalidQuery("only one range operator is allowed")
			}
			rangeField = w.Field
			if op == OpStartsWith {
				if s, ok := w.Value.(string); !ok || s == "" {
					return nil, invalidQuery("%s: startsWith requires a non-empty string", w.Field)
				}
				break
			}
			if w.Value == nil {
				return nil, invalidQuery("%s: %s requires a value", w.Field, op)
			}
			if _, err := encodeIndexValue(w.Value); err != nil {
				return nil, invalidQuery("%s: %v", w.Field, err)
			}

		default:
			return nil, invalidQuery("unknown operator %q", w.Operator)
		}
		fields[w.Field] = true
	}

	for _, o := range q.OrderBy {
		if o.Field == "" {
			return nil, invalidQuery("order clause field must not be empty")
		}
	}

	p := new(plan)
	if id, ok := equal[protocol.PropertyID]; ok {
		docID, ok := asIdentifier(id)
		if !ok {
			return nil, invalidQuery("%s must be an identifier", protocol.PropertyID)
		}
		p.ids = []protocol.Identifier{docID}
	}
	for _, w := range q.Where {
		if w.Field != protocol.PropertyID || w.Operator != OpIn || p.ids != nil {
			continue
		}
		for _, v := range w.Value.([]any) {
			docID, ok := asIdentifier(v)
			if !ok {
				return nil, invalidQuery("%s values must be identifiers", protocol.PropertyID)
			}
			p.ids = append(p.ids, docID)
		}
	}

	// The ID is part of every key so it never needs an index
	delete(fields, protocol.PropertyID)
	needed := map[string]bool{}
	for f := range fields {
		needed[f] = true
	}
	for _, o := range q.OrderBy {
		if o.Field != protocol.PropertyID {
			needed[o.Field] = true
		}
	}
	if len(needed) == 0 || p.ids != nil {
		return p, nil
	}

	var best *protocol.Index
	var bestPrefix []byte
	bestLen := -1
	for _, idx := range indices {
		props := map[string]bool{}
		for _, name := range idx.PropertyNames() {
			props[name] = true
		}
		covered := true
		for f := range needed {
			if !props[f] {
				covered = false
				break
			}
		}
		if !covered {
			continue
		}

		var prefix []byte
		n := 0
		for _, prop := range idx.Properties {
			v, ok := equal[prop.Name]
			if !ok {
				break
			}
			prefix, _ = appendIndexValue(prefix, v)
			n++
		}
		if n > bestLen {
			best, bestPrefix, bestLen = idx, prefix, n
		}
	}
	if best == nil {
		var names []string
		for f := range needed {
			names = append(names, f)
		}
		sort.Strings(names)
		return nil, invalidQuery("no index covers %s", strings.Join(names, ", "))
	}
	p.index, p.prefix = best, bestPrefix
	return p, nil
}

func asIdentifier(v any) (protocol.Identifier, bool) {
	switch v := v.(type) {
	case protocol.Identifier:
		return v, true
	case []byte:
		id, err := protocol.IdentifierFromBytes(v)
		return id, err == nil
	}
	return protocol.Identifier{}, false
}

// matches evaluates the where clauses against a document.
func (q *Query) matches(doc *protocol.Document) bool {
	for _, w := range q.Where {
		if !w.matches(doc) {
			return false
		}
	}
	return true
}

func (w *WhereClause) matches(doc *protocol.Document) bool {
	v, ok := doc.Get(w.Field)
	if !ok {
		v = nil
	}

	switch w.Operator {
	case OpStartsWith:
		s, ok := v.(string)
		prefix, _ := w.Value.(string)
		return ok && strings.HasPrefix(s, prefix)

	case OpIn:
		values, _ := w.Value.([]any)
		for _, x := range values {
			if c, ok := compareValues(v, x); ok && c == 0 {
				return true
			}
		}
		return false
	}

	c, ok := compareValues(v, w.Value)
	if !ok {
		return false
	}
	switch w.Operator {
	case OpEqual:
		return c == 0
	case OpLess:
		return c < 0
	case OpLessOrEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterOrEqual:
		return c >= 0
	}
	return false
}

// compareValues orders two values of the same kind. Values of different
// kinds are not comparable, except that null equals null.
func compareValues(a, b any) (int, bool) {
	x, err := encodeIndexValue(a)
	if err != nil {
		return 0, false
	}
	y, err := encodeIndexValue(b)
	if err != nil {
		return 0, false
	}
	if x[0] != y[0] {
		return 0, false
	}
	return bytes.Compare(x, y), true
}

// sortDocuments applies the order clauses. Ties keep their current order.
func (q *Query) sortDocuments(docs []*protocol.Document) {
	if len(q.OrderBy) == 0 {
		return
	}
	keys := make([][][]byte, len(docs))
	for i, d := range docs {
		keys[i] = make([][]byte, len(q.OrderBy))
		for j, o := range q.OrderBy {
			v, _ := d.Get(o.Field)
			keys[i][j], _ = encodeIndexValue(v)
		}
	}
	idx := make([]int, len(docs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		for j, o := range q.OrderBy {
			c := bytes.Compare(keys[idx[a]][j], keys[idx[b]][j])
			if c == 0 {
				continue
			}
			if o.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	sorted := make([]*protocol.Document, len(docs))
	for i, j := range idx {
		sorted[i] = docs[j]
	}
	copy(docs, sorted)
}

func sortByID(docs []*protocol.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].ID.Compare(docs[j].ID) < 0
	})
}

// page applies startAt, startAfter and the limit. A start document that is
// not in the result gives an empty page.
func (q *Query) page(docs []*protocol.Document) []*protocol.Document {
	start := q.StartAt
	skip := 0
	if start == nil && q.StartAfter != nil {
		start, skip = q.StartAfter, 1
	}
	if start != nil {
		found := false
		for i, d := range docs {
			if d.ID == *start {
				docs, found = docs[i+skip:], true
				break
			}
		}
		if !found {
			return nil
		}
	}

	limit := q.Limit
	if limit == 0 {
		limit = MaxQueryLimit
	}
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}
