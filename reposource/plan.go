package reposource

import (
	"sort"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-garage-sync/cache"
)

// Operators used in a Plan.
const (
	OpEq   = "="
	OpGte  = ">="
	OpLte  = "<="
	OpIn   = "IN"
	OpLike = "LIKE"
)

// Filter is one WHERE condition. A LIKE filter matches any of Columns.
type Filter struct {
	Columns []string
	Op      string
	Values  []string
}

// Plan is the database form of a list query.
type Plan struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Mapping tells a Source which columns the generic query fields refer to.
type Mapping struct {
	StatusColumn    string
	DateColumn      string
	AssigneeColumn  string
	ServiceIDColumn string
	SearchColumns   []string
}

// DefaultMapping fits the booking tables.
func DefaultMapping() Mapping {
	return Mapping{
		StatusColumn:    "status",
		DateColumn:      "scheduled_at",
		AssigneeColumn:  "assignee_id",
		ServiceIDColumn: "service_id",
	}
}

// PlanFor translates q into a Plan. Filters are emitted in a fixed order and
// Extra keys are applied sorted, so equal queries give equal plans.
func (m Mapping) PlanFor(q cache.QueryState) Plan {
	var p Plan

	if q.Status != "" && m.StatusColumn != "" {
		var statuses []string
		for _, s := range strings.Split(q.Status, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, s)
			}
		}
		if len(statuses) == 1 {
			p.Filters = append(p.Filters, Filter{Columns: []string{m.StatusColumn}, Op: OpEq, Values: statuses})
		} else if len(statuses) > 1 {
			p.Filters = append(p.Filters, Filter{Columns: []string{m.StatusColumn}, Op: OpIn, Values: statuses})
		}
	}
	if q.Search != "" && len(m.SearchColumns) > 0 {
		p.Filters = append(p.Filters, Filter{
			Columns: m.SearchColumns,
			Op:      OpLike,
			Values:  []string{"%" + strings.ToLower(q.Search) + "%"},
		})
	}
	if m.DateColumn != "" {
		if q.From != "" {
			p.Filters = append(p.Filters, Filter{Columns: []string{m.DateColumn}, Op: OpGte, Values: []string{q.From}})
		}
		if q.To != "" {
			p.Filters = append(p.Filters, Filter{Columns: []string{m.DateColumn}, Op: OpLte, Values: []string{q.To}})
		}
	}
	if len(q.ServiceIDs) > 0 && m.ServiceIDColumn != "" {
		p.Filters = append(p.Filters, Filter{Columns: []string{m.ServiceIDColumn}, Op: OpIn, Values: q.ServiceIDs})
	}
	if q.AssigneeID != "" && m.AssigneeColumn != "" {
		p.Filters = append(p.Filters, Filter{Columns: []string{m.AssigneeColumn}, Op: OpEq, Values: []string{q.AssigneeID}})
	}

	keys := make([]string, 0, len(q.Extra))
	for k := range q.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if col := column(k); col != "" && q.Extra[k] != "" {
			p.Filters = append(p.Filters, Filter{Columns: []string{col}, Op: OpEq, Values: []string{q.Extra[k]}})
		}
	}

	p.OrderBy = column(q.SortField)
	p.Desc = q.SortDir == cache.SortDesc
	p.Limit = q.Limit
	p.Offset = q.Offset()
	return p
}

// Criteria renders the plan as repository select criteria.
func (p Plan) Criteria() []repository.SelectCriteria {
	criteria := make([]repository.SelectCriteria, 0, len(p.Filters)+2)

	for _, f := range p.Filters {
		criteria = append(criteria, f.criteria())
	}

	if p.OrderBy != "" {
		dir := "ASC"
		if p.Desc {
			dir = "DESC"
		}
		orderBy := p.OrderBy
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("? "+dir, bun.Ident(orderBy))
		})
	}

	limit, offset := p.Limit, p.Offset
	if limit > 0 {
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Limit(limit).Offset(offset)
		})
	}
	return criteria
}

func (f Filter) criteria() repository.SelectCriteria {
	switch f.Op {
	case OpIn:
		return func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("? IN (?)", bun.Ident(f.Columns[0]), bun.In(f.Values))
		}
	case OpLike:
		return func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				for _, col := range f.Columns {
					q = q.WhereOr("LOWER(?) LIKE ?", bun.Ident(col), f.Values[0])
				}
				return q
			})
		}
	default:
		return func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("? "+f.Op+" ?", bun.Ident(f.Columns[0]), f.Values[0])
		}
	}
}
