package plan

import (
	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// column is one entry in a Scope: the output column's display name, the
// table it came from (empty for a computed/aliased expression) and its
// index in the current intermediate row.
type column struct {
	table string
	name  string
	index int
}

// Scope resolves qualified (table, column) and unqualified column names to
// row indices for the expression currently being planned.
type Scope struct {
	columns   []column
	unqual    map[string]int // unqualified name -> index, or ambiguous marker
	ambiguous map[string]bool
	constant  bool // true for a scope that must reject every field reference
}

const ambiguousIndex = -1

// NewConstantScope returns a scope that rejects any field reference,
// used while planning expressions with no row context (e.g. INSERT values).
func NewConstantScope() *Scope {
	return &Scope{constant: true, unqual: map[string]int{}, ambiguous: map[string]bool{}}
}

// FromTable seeds a scope with one table's columns, optionally under alias.
func FromTable(table *types.Table, alias string) *Scope {
	s := &Scope{unqual: map[string]int{}, ambiguous: map[string]bool{}}
	tableName := table.Name
	if alias != "" {
		tableName = alias
	}
	for i, c := range table.Columns {
		s.add(tableName, c.Name)
		_ = i
	}
	return s
}

func (s *Scope) add(table, name string) {
	idx := len(s.columns)
	s.columns = append(s.columns, column{table: table, name: name, index: idx})
	if name == "" {
		return
	}
	if _, exists := s.unqual[name]; exists {
		s.ambiguous[name] = true
	} else {
		s.unqual[name] = idx
	}
}

// Project rebuilds a scope reflecting a projection's output names: aliased
// expressions get their alias as an unqualified name; bare column
// references keep their (table, name); everything else is unnamed.
func (s *Scope) Project(items []ProjectionItem) *Scope {
	out := &Scope{unqual: map[string]int{}, ambiguous: map[string]bool{}}
	for _, it := range items {
		switch {
		case it.Alias != "":
			out.add("", it.Alias)
		case it.SourceTable != "" || it.SourceName != "":
			out.add(it.SourceTable, it.SourceName)
		default:
			out.add("", "")
		}
	}
	return out
}

// Resolve looks up a (table, name) reference — table is "" for an
// unqualified reference — and returns its row index.
func (s *Scope) Resolve(table, name string) (int, error) {
	if s.constant {
		return 0, errs.Value("no table available for field %q", name)
	}
	if table != "" {
		for _, c := range s.columns {
			if c.table == table && c.name == name {
				return c.index, nil
			}
		}
		return 0, errs.Value("unknown field %s.%s", table, name)
	}
	if s.ambiguous[name] {
		return 0, errs.Value("ambiguous field %q", name)
	}
	idx, ok := s.unqual[name]
	if !ok {
		return 0, errs.Value("unknown field %q", name)
	}
	return idx, nil
}

// Len reports the scope's column count, used to expand SELECT *.
func (s *Scope) Len() int { return len(s.columns) }

// ColumnNames returns the scope's column display names in order, used to
// build a Query ResultSet's column header.
func (s *Scope) ColumnNames() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		switch {
		case c.name != "":
			out[i] = c.name
		default:
			out[i] = "?column?"
		}
	}
	return out
}
