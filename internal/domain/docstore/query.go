// internal/domain/docstore/query.go

package docstore

import (
	"fmt"
	"strings"
)

// Operator is a query filter comparison
type Operator string

const (
	OpEqual         Operator = "=="
	OpNotEqual      Operator = "!="
	OpLess          Operator = "<"
	OpLessEqual     Operator = "<="
	OpGreater       Operator = ">"
	OpGreaterEqual  Operator = ">="
	OpArrayContains Operator = "array-contains"
	OpIn            Operator = "in"
)

// Direction is a sort direction
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Filter restricts a query on one top-level field
type Filter struct {
	Field string
	Op    Operator
	Value interface{}
}

// Order sorts query results on one top-level field
type Order struct {
	Field     string
	Direction Direction
}

// Query describes a collection query. The zero Limit means unlimited.
type Query struct {
	Collection string
	Filters    []Filter
	Orders     []Order
	Limit      int
}

// Collection starts a query over the given collection path
func Collection(path string) Query {
	return Query{Collection: path}
}

// Where returns a copy of q with an extra filter
func (q Query) Where(field string, op Operator, value interface{}) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: Normalize(value)})
	return q
}

// OrderBy returns a copy of q with an extra sort key
func (q Query) OrderBy(field string, dir Direction) Query {
	orders := make([]Order, len(q.Orders), len(q.Orders)+1)
	copy(orders, q.Orders)
	q.Orders = append(orders, Order{Field: field, Direction: dir})
	return q
}

// WithLimit returns a copy of q limited to n results
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// Key identifies a query. Two queries with the same key return the same
// documents in the same order.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, "|w:%s%s%v", f.Field, f.Op, f.Value)
	}
	for _, o := range q.Orders {
		fmt.Fprintf(&b, "|o:%s:%d", o.Field, o.Direction)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, "|l:%d", q.Limit)
	}
	return b.String()
}
