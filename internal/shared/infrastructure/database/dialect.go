package database

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sqliteTimeFormat is fixed-width so stored timestamps compare lexically.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// Dialect hides the few differences between PostgreSQL and SQLite that
// hand-written queries care about: placeholders and timestamp encoding.
// Queries are written with $N placeholders.
type Dialect struct {
	Driver Driver
}

// DialectOf returns the dialect of a connection.
func DialectOf(conn Connection) Dialect {
	return Dialect{Driver: conn.Driver()}
}

// IsPostgres reports whether queries run against PostgreSQL.
func (d Dialect) IsPostgres() bool {
	return d.Driver == DriverPostgres
}

// Rebind rewrites $N placeholders to SQLite's ?N, which keeps repeated
// parameters pointing at the same argument.
func (d Dialect) Rebind(query string) string {
	if d.IsPostgres() {
		return query
	}
	b := []byte(query)
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '$' && b[i+1] >= '0' && b[i+1] <= '9' {
			b[i] = '?'
		}
	}
	return string(b)
}

// Time encodes a timestamp argument.
func (d Dialect) Time(t time.Time) any {
	if d.IsPostgres() {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTimeFormat)
}

// NullTime encodes an optional timestamp argument.
func (d Dialect) NullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.Time(*t)
}

// Placeholders returns "$from, $from+1, ..." for n arguments.
func Placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(parts, ", ")
}

// Timestamp scans a timestamp from either driver: time.Time from pgx, text from SQLite.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (t *Timestamp) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	t.Time, t.Valid = parsed.UTC(), true
	return nil
}

// Ptr returns nil for NULL.
func (t Timestamp) Ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// JSONArg marshals a value for a JSON/JSONB column.
func JSONArg(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// JSON scans a JSON/JSONB column into raw bytes.
type JSON []byte

// Scan implements sql.Scanner.
func (j *JSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("cannot scan %T into json: %w", src, err)
		}
		*j = b
	}
	return nil
}

// Decode unmarshals the column; an empty column leaves v untouched.
func (j JSON) Decode(v any) error {
	if len(j) == 0 {
		return nil
	}
	return json.Unmarshal(j, v)
}
