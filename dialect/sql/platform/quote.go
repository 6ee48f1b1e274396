package platform

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/relmap/dialect/sql/schema"
)

// QuoteIdentifier quotes an identifier. A dotted identifier is split into
// its schema and table parts and each part is quoted on its own.
func (p *Platform) QuoteIdentifier(id string) string {
	parts := strings.Split(id, ".")
	for i, part := range parts {
		parts[i] = p.quotePart(part)
	}
	return strings.Join(parts, ".")
}

// QuoteValue renders a value as an SQL literal.
//
// Non-finite floats use the dialect's spelling: 'NaN'::float8 and
// 'Infinity'::float8 on PostgreSQL. Elsewhere infinities render as an
// overflowing literal (9e999) and NaN renders as NULL, which is what SQLite
// stores for it. MySQL rejects the overflowing literal.
func (p *Platform) QuoteValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return p.quoteBool(v)
	case string:
		return p.quoteString(v)
	case []byte:
		return p.quoteBytes(v)
	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(v).Int(), 10)
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(v).Uint(), 10)
	case float32:
		return p.quoteFloat(float64(v), 32)
	case float64:
		return p.quoteFloat(v, 64)
	case time.Time:
		return p.quoteString(v.Format(p.timeFormat))
	case uuid.UUID:
		return p.quoteString(v.String())
	case json.RawMessage:
		return p.quoteString(string(v))
	case fmt.Stringer:
		return p.quoteString(v.String())
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "NULL"
		}
		return p.QuoteValue(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		buf, err := json.Marshal(v)
		if err != nil {
			return p.quoteString(fmt.Sprint(v))
		}
		return p.quoteString(string(buf))
	case reflect.String:
		return p.quoteString(rv.String())
	case reflect.Bool:
		return p.quoteBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return p.quoteFloat(rv.Float(), 32)
	case reflect.Float64:
		return p.quoteFloat(rv.Float(), 64)
	}
	return p.quoteString(fmt.Sprint(v))
}

// TableIdentifierOf returns the quoted, namespace-qualified identifier of a
// table.
func (p *Platform) TableIdentifierOf(t *schema.Table) string {
	return p.QuoteIdentifier(t.FullName(p.schemaDelimiter))
}

func (p *Platform) columnList(columns []*schema.Column) string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = p.QuoteIdentifier(c.Name)
	}
	return strings.Join(names, ", ")
}

func (p *Platform) defaultDDL(c *schema.Column) string {
	if c.Default == nil {
		return ""
	}
	return "DEFAULT " + p.QuoteValue(c.Default)
}

func doubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func singleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func floatLiteral(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "NULL"
	case math.IsInf(f, 1):
		return "9e999"
	case math.IsInf(f, -1):
		return "-9e999"
	}
	return strconv.FormatFloat(f, 'g', -1, bitSize)
}

func pgFloatLiteral(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "'NaN'::float8"
	case math.IsInf(f, 1):
		return "'Infinity'::float8"
	case math.IsInf(f, -1):
		return "'-Infinity'::float8"
	}
	return strconv.FormatFloat(f, 'g', -1, bitSize)
}

func boolKeyword(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func hexLiteral(b []byte) string {
	return "X'" + strings.ToUpper(hex.EncodeToString(b)) + "'"
}

func nullDDL(c *schema.Column) string {
	if c.NotNull {
		return "NOT NULL"
	}
	return "NULL"
}

func referentialActions(fk *schema.ForeignKey) []string {
	var parts []string
	if fk.OnUpdate != "" {
		parts = append(parts, "ON UPDATE "+fk.OnUpdate)
	}
	if fk.OnDelete != "" {
		parts = append(parts, "ON DELETE "+fk.OnDelete)
	}
	return parts
}

// joinSet joins the non-empty parts.
func joinSet(parts []string, sep string) string {
	out := parts[:0:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, sep)
}

func itoa(i int) string { return strconv.Itoa(i) }
