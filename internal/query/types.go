package query

// Query represents an abstract read.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode()
}

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Select reads rows from a table or view.
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY <order> LIMIT <limit>
type Select struct {
	From    string    // Table or view name
	Columns []string  // Column list in scan order (empty = *)
	Filter  Predicate // nil = no filter
	OrderBy []string  // Explicit order terms (empty = seq, id)
	Limit   int       // 0 = no limit
}

func (Select) queryNode() {}

// Count counts rows matching a filter.
type Count struct {
	From   string
	Filter Predicate
}

func (Count) queryNode() {}

// Equals matches field = value.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// Like matches field LIKE pattern. The store enables case-sensitive LIKE, so
// "my%" does not match "MyTenant".
type Like struct {
	Field   string
	Pattern string
}

func (Like) predicateNode() {}

// IsEmpty matches rows whose field is the empty string.
type IsEmpty struct {
	Field string
}

func (IsEmpty) predicateNode() {}

// LessOrEqual matches field <= value.
type LessOrEqual struct {
	Field string
	Value any
}

func (LessOrEqual) predicateNode() {}

// And matches when all predicates match. An empty And matches everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// AllOf builds an And from the non-nil predicates. Returns nil when none
// remain, which compiles to no WHERE clause.
func AllOf(preds ...Predicate) Predicate {
	var kept []Predicate
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return And{Predicates: kept}
	}
}

// EqualsIfSet returns an Equals predicate, or nil when value is empty.
func EqualsIfSet(field, value string) Predicate {
	if value == "" {
		return nil
	}
	return Equals{Field: field, Value: value}
}
