package postgres

import (
	"fmt"
	"strings"

	"github.com/gosuda/dossier/internal/domain"
)

// compileQuery renders q as a SELECT over the documents table. Field names
// travel as bind parameters, never as SQL text.
func compileQuery(q domain.Query) (string, []any, error) {
	if q.Collection == "" {
		return "", nil, fmt.Errorf("postgres.compileQuery: empty collection")
	}
	if q.Limit < 0 {
		return "", nil, fmt.Errorf("postgres.compileQuery: negative limit %d", q.Limit)
	}

	var sb strings.Builder
	args := []any{q.Collection}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString("SELECT id, body FROM documents WHERE collection = $1")
	for _, f := range q.Filters {
		if f.Field == "" {
			return "", nil, fmt.Errorf("postgres.compileQuery: filter with empty field")
		}
		field := next(f.Field)
		value := next(f.Value)
		fmt.Fprintf(&sb, " AND body->>%s::text = %s::text", field, value)
	}

	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY body->%s::text %s, id %s", next(q.OrderBy), dir, dir)
	} else {
		fmt.Fprintf(&sb, " ORDER BY id %s", dir)
	}

	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %s", next(q.Limit))
	}

	return sb.String(), args, nil
}
