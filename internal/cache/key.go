package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key computes the cache key for a query-level entry. The statement text
// is whitespace-normalized and case-folded, and bindings are serialized
// with sorted keys at every nesting level, so semantically identical
// calls collide regardless of incidental formatting differences.
func Key(connID, sql string, params []interface{}) string {
	var sb strings.Builder
	sb.WriteString(connID)
	sb.WriteString("|")
	sb.WriteString(normalizeSQL(sql))
	sb.WriteString("|")
	for i, p := range params {
		if i > 0 {
			sb.WriteString(",")
		}
		writeValue(&sb, p)
	}
	return sb.String()
}

// normalizeSQL collapses runs of whitespace and lowercases the statement.
func normalizeSQL(sql string) string {
	return strings.Join(strings.Fields(strings.ToLower(sql)), " ")
}

// writeValue serializes a bound value stably. Map keys are sorted at
// every nesting level; the dynamic type is included so values of
// different types never collide (1 vs "1").
func writeValue(sb *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("<nil>")
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(k)
			sb.WriteString(":")
			writeValue(sb, val[k])
		}
		sb.WriteString("}")
	case []interface{}:
		sb.WriteString("[")
		for i, e := range val {
			if i > 0 {
				sb.WriteString(",")
			}
			writeValue(sb, e)
		}
		sb.WriteString("]")
	default:
		fmt.Fprintf(sb, "%T(%v)", val, val)
	}
}

// RowKey computes the row-cache key for a primary-key value. The value
// is normalized by formatting so that a caller's int matches the driver's
// int64 for the same row.
func RowKey(id interface{}) string {
	return fmt.Sprintf("%v", id)
}
