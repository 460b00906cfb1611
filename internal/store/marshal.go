package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// scanRow reads the current row of rows as driver values.
func scanRow(rows *sql.Rows, n int) ([]any, error) {
	values := make([]any, n)
	ptrs := make([]any, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	return values, nil
}

// asInt64 converts a scanned integer value.
func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), x == float64(int64(x))
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// keyOf encodes driver values as an index key. Values that compare equal in
// SQLite encode equally: integers and integral reals share a form.
func keyOf(values []any) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(0)
		}
		switch x := v.(type) {
		case nil:
			b.WriteString("n")
		case int64:
			b.WriteString("i" + strconv.FormatInt(x, 10))
		case int32:
			b.WriteString("i" + strconv.FormatInt(int64(x), 10))
		case float64:
			if x == float64(int64(x)) {
				b.WriteString("i" + strconv.FormatInt(int64(x), 10))
			} else {
				b.WriteString("f" + strconv.FormatFloat(x, 'g', -1, 64))
			}
		case bool:
			if x {
				b.WriteString("i1")
			} else {
				b.WriteString("i0")
			}
		case time.Time:
			b.WriteString("t" + x.UTC().Format(time.RFC3339Nano))
		case []byte:
			b.WriteString("s" + string(x))
		default:
			b.WriteString("s" + fmt.Sprint(x))
		}
	}
	return b.String()
}
