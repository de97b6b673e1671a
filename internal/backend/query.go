package backend

import (
	"fmt"
	"net/url"
)

// Filter is a column predicate in the backend's query notation.
type Filter struct {
	Column string
	Op     string
	Value  string
}

// Eq matches rows whose column equals value.
func Eq(column, value string) Filter {
	return Filter{Column: column, Op: "eq", Value: value}
}

// Ilike matches rows whose column contains value, case-insensitively.
func Ilike(column, value string) Filter {
	return Filter{Column: column, Op: "ilike", Value: "*" + value + "*"}
}

// Order specifies result ordering.
type Order struct {
	Column    string
	Ascending bool
}

// Query describes a table read: projection, predicates, ordering and paging.
type Query struct {
	Columns string
	Filters []Filter
	Order   *Order
	Limit   int
	Offset  int
}

// encode renders the query as URL parameters.
func (q Query) encode() url.Values {
	params := url.Values{}

	columns := q.Columns
	if columns == "" {
		columns = "*"
	}
	params.Set("select", columns)

	for _, f := range q.Filters {
		params.Set(f.Column, fmt.Sprintf("%s.%s", f.Op, f.Value))
	}
	if q.Order != nil {
		direction := "desc"
		if q.Order.Ascending {
			direction = "asc"
		}
		params.Set("order", fmt.Sprintf("%s.%s", q.Order.Column, direction))
	}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", q.Offset))
	}
	return params
}
