package query

import (
	"fmt"
	"regexp"
)

// identifierPattern restricts table, view and column names written into SQL.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// orderTermPattern allows "column [COLLATE BINARY] [ASC|DESC]", in the order
// SQLite's ordering-term grammar requires.
var orderTermPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*( COLLATE BINARY)?( (ASC|DESC))?$`)

// ValidationError reports an invalid query.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid query %s: %s", e.Field, e.Message)
}

// Validate checks that every identifier in q is safe to write into SQL.
func Validate(q Query) error {
	switch query := q.(type) {
	case Select:
		return validateSelect(query)
	case *Select:
		return validateSelect(*query)
	case Count:
		return validateCount(query)
	case *Count:
		return validateCount(*query)
	case nil:
		return &ValidationError{Field: "query", Message: "query is nil"}
	default:
		return &ValidationError{Field: "query", Message: fmt.Sprintf("unsupported type %T", q)}
	}
}

func validateSelect(q Select) error {
	if !identifierPattern.MatchString(q.From) {
		return &ValidationError{Field: "from", Message: fmt.Sprintf("bad identifier %q", q.From)}
	}
	for _, c := range q.Columns {
		if !identifierPattern.MatchString(c) {
			return &ValidationError{Field: "columns", Message: fmt.Sprintf("bad identifier %q", c)}
		}
	}
	for _, o := range q.OrderBy {
		if !orderTermPattern.MatchString(o) {
			return &ValidationError{Field: "order_by", Message: fmt.Sprintf("bad order term %q", o)}
		}
	}
	if q.Limit < 0 {
		return &ValidationError{Field: "limit", Message: "limit must not be negative"}
	}
	return validatePredicate(q.Filter)
}

func validateCount(q Count) error {
	if !identifierPattern.MatchString(q.From) {
		return &ValidationError{Field: "from", Message: fmt.Sprintf("bad identifier %q", q.From)}
	}
	return validatePredicate(q.Filter)
}

func validatePredicate(p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case Equals:
		return validateField(pred.Field)
	case Like:
		return validateField(pred.Field)
	case IsEmpty:
		return validateField(pred.Field)
	case LessOrEqual:
		return validateField(pred.Field)
	case And:
		for _, inner := range pred.Predicates {
			if err := validatePredicate(inner); err != nil {
				return err
			}
		}
		return nil
	default:
		return &ValidationError{Field: "filter", Message: fmt.Sprintf("unsupported predicate %T", p)}
	}
}

func validateField(field string) error {
	if !identifierPattern.MatchString(field) {
		return &ValidationError{Field: "filter", Message: fmt.Sprintf("bad identifier %q", field)}
	}
	return nil
}
