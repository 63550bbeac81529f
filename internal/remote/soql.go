package remote

import (
	"fmt"
	"strings"
)

// INClauseLimit caps how many ids one IN clause may carry; larger sets are
// chunked by the caller.
const INClauseLimit = 200

// SelectQuery builds a field-list query with optional filtering and paging.
func SelectQuery(fields []string, objectType, where, orderBy string, limit, offset int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(fields, ", "), objectType)
	if where != "" {
		fmt.Fprintf(&b, " WHERE %s", where)
	}
	if orderBy != "" {
		fmt.Fprintf(&b, " ORDER BY %s", orderBy)
	}
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

// CountQuery builds the record-count query used for progress totals.
func CountQuery(objectType, where string) string {
	q := fmt.Sprintf("SELECT COUNT() FROM %s", objectType)
	if where != "" {
		q += " WHERE " + where
	}
	return q
}

// ProbeQuery builds the minimal existence probe for one field.
func ProbeQuery(field, objectType string) string {
	return fmt.Sprintf("SELECT %s FROM %s LIMIT 1", field, objectType)
}

// InClause renders a quoted id list for an IN filter.
func InClause(field string, ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = "'" + strings.ReplaceAll(id, "'", "\\'") + "'"
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(quoted, ", "))
}

// ChunkIDs splits ids into groups no larger than size, preserving order.
func ChunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = INClauseLimit
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
