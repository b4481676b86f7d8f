package query

import (
	"fmt"
	"strings"
)

// defaultOrder is the deterministic order applied to every Select without an
// explicit OrderBy.
var defaultOrder = []string{"seq ASC", "id COLLATE BINARY ASC"}

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error).
//
// Every Select includes ORDER BY. Values are always bound as ? parameters.
func Compile(q Query) (string, []any, error) {
	if err := Validate(q); err != nil {
		return "", nil, err
	}

	switch query := q.(type) {
	case Select:
		return compileSelect(query)
	case *Select:
		return compileSelect(*query)
	case Count:
		return compileCount(query)
	case *Count:
		return compileCount(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func compileSelect(q Select) (string, []any, error) {
	columns := "*"
	if len(q.Columns) > 0 {
		columns = strings.Join(q.Columns, ", ")
	}

	where, params, err := compileWhere(q.Filter)
	if err != nil {
		return "", nil, err
	}

	order := q.OrderBy
	if len(order) == 0 {
		order = defaultOrder
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		columns, q.From, where, strings.Join(order, ", "))

	if q.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, q.Limit)
	}

	return sql, params, nil
}

func compileCount(q Count) (string, []any, error) {
	where, params, err := compileWhere(q.Filter)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.From, where), params, nil
}

func compileWhere(p Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	sql, params, err := compilePredicate(p)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return " WHERE " + sql, params, nil
}

// compilePredicate compiles a Predicate to a WHERE clause fragment.
func compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case Equals:
		return fmt.Sprintf("%s = ?", pred.Field), []any{pred.Value}, nil
	case Like:
		return fmt.Sprintf("%s LIKE ?", pred.Field), []any{pred.Pattern}, nil
	case IsEmpty:
		return fmt.Sprintf("%s = ''", pred.Field), nil, nil
	case LessOrEqual:
		return fmt.Sprintf("%s <= ?", pred.Field), []any{pred.Value}, nil
	case And:
		return compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileAnd(and And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var parts []string
	var params []any
	for _, pred := range and.Predicates {
		sql, ps, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		if _, nested := pred.(And); nested {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}

	return strings.Join(parts, " AND "), params, nil
}
