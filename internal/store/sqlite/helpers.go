package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// jsonText marshals v for a TEXT column, substituting def for nil slices/maps.
func jsonText(v any, def string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return def, nil
	}
	return string(data), nil
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// columnUpdate builds "SET a = ?, b = ?" from an allow-listed update map.
func columnUpdate(updates map[string]any, allowed map[string]bool) (string, []any, error) {
	var sets []string
	var args []any
	for col, val := range updates {
		if !allowed[col] {
			return "", nil, fmt.Errorf("column %q cannot be updated", col)
		}
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	return strings.Join(sets, ", "), args, nil
}
