package querysql

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/rdo/internal/queryir"
)

// sqliteTimeLayout is the layout go-sqlite3 uses when writing time.Time.
const sqliteTimeLayout = "2006-01-02 15:04:05.999999999-07:00"

// CompileCreateTable renders a CREATE TABLE statement. A seeded identity
// adds a second command that primes sqlite_sequence so the first generated
// value equals the seed.
func CompileCreateTable(def *queryir.CreateTable) (Script, error) {
	if err := queryir.Validate(def).Err(); err != nil {
		return Script{}, err
	}

	var b strings.Builder
	b.WriteString("CREATE ")
	if def.Temp {
		b.WriteString("TEMP ")
	}
	b.WriteString("TABLE ")
	if def.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(quoteIdent(def.Name))
	b.WriteString(" (\n")

	var lines []string
	autoIncrement := ""
	for _, c := range def.Columns {
		line, err := columnDef(c)
		if err != nil {
			return Script{}, fmt.Errorf("table %s: %w", def.Name, err)
		}
		if c.AutoIncrement {
			autoIncrement = c.Name
		}
		lines = append(lines, line)
	}
	if len(def.PrimaryKey) > 0 {
		if autoIncrement != "" {
			return Script{}, fmt.Errorf("table %s: AUTOINCREMENT column %s must be the only primary key", def.Name, autoIncrement)
		}
		lines = append(lines, "PRIMARY KEY ("+identList(def.PrimaryKey)+")")
	}
	for _, u := range def.Unique {
		lines = append(lines, "UNIQUE ("+identList(u)+")")
	}
	for _, fk := range def.ForeignKeys {
		line := "FOREIGN KEY (" + identList(fk.Columns) + ") REFERENCES " +
			quoteIdent(fk.RefTable) + " (" + identList(fk.RefColumns) + ")"
		if fk.OnDelete != "" {
			line += " ON DELETE " + fk.OnDelete
		}
		lines = append(lines, line)
	}
	for i, l := range lines {
		b.WriteString("  ")
		b.WriteString(l)
		if i < len(lines)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")

	script := Script{Commands: []Command{{SQL: b.String()}}}
	if def.Seed != nil {
		if autoIncrement == "" {
			return Script{}, fmt.Errorf("table %s: identity seed requires an AUTOINCREMENT column", def.Name)
		}
		seq := "sqlite_sequence"
		if def.Temp {
			seq = "temp.sqlite_sequence"
		}
		script.Commands = append(script.Commands, Command{
			SQL: "INSERT INTO " + seq + " (name, seq) SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM " +
				seq + " WHERE name = ?)",
			Params: []any{def.Name, *def.Seed - 1, def.Name},
		})
	}
	return script, nil
}

func columnDef(c queryir.ColumnDef) (string, error) {
	if c.Type == "" {
		return "", fmt.Errorf("column %s has no type", c.Name)
	}
	var b strings.Builder
	b.WriteString(quoteIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(c.Type)
	switch {
	case c.AutoIncrement:
		if c.Type != "INTEGER" {
			return "", fmt.Errorf("AUTOINCREMENT column %s must be INTEGER, got %s", c.Name, c.Type)
		}
		b.WriteString(" PRIMARY KEY AUTOINCREMENT")
	case c.PrimaryKey:
		b.WriteString(" PRIMARY KEY")
	}
	if c.NotNull && !c.AutoIncrement {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		lit, err := literal(c.Default)
		if err != nil {
			return "", fmt.Errorf("column %s default: %w", c.Name, err)
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(lit)
	}
	return b.String(), nil
}

// literal renders a driver value as an SQL literal for DDL.
func literal(v any) (string, error) {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case []byte:
		return "X'" + hex.EncodeToString(x) + "'", nil
	case time.Time:
		return "'" + x.Format(sqliteTimeLayout) + "'", nil
	}
	return "", fmt.Errorf("unsupported literal type %T", v)
}

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// Inline returns cmd's SQL with each ? placeholder outside quotes replaced
// by its parameter as a literal.
func Inline(cmd Command) (string, error) {
	var b strings.Builder
	var quote rune
	next := 0
	for _, r := range cmd.SQL {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			if next >= len(cmd.Params) {
				return "", fmt.Errorf("placeholder %d has no parameter", next+1)
			}
			lit, err := literal(cmd.Params[next])
			if err != nil {
				return "", err
			}
			next++
			b.WriteString(lit)
			continue
		}
		b.WriteRune(r)
	}
	if next != len(cmd.Params) {
		return "", fmt.Errorf("%d parameters for %d placeholders", len(cmd.Params), next)
	}
	return b.String(), nil
}
