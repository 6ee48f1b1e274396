package platform

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/relmap"
	"github.com/syssam/relmap/entity"
	ql "github.com/syssam/relmap/querylanguage"
)

// valueEncoder is implemented by serializers that convert single values, like
// entity.SQLSerializer.
type valueEncoder interface {
	EncodeValue(f *entity.Field, v any) (any, error)
}

// FilterSQL translates a predicate on the fields of an entity into an SQL
// condition. Columns are qualified with alias when it is not empty. Values
// are serialized with the schema serializer and inlined as quoted literals.
// A nil predicate yields an empty condition.
func (p *Platform) FilterSQL(s *entity.Schema, alias string, pred ql.P) (string, error) {
	if pred == nil {
		return "", nil
	}
	fb := &filterBuilder{p: p, s: s, alias: alias}
	if enc, ok := entity.SerializerOf(s).(valueEncoder); ok {
		fb.enc = enc
	}
	return fb.expr(pred)
}

type filterBuilder struct {
	p     *Platform
	s     *entity.Schema
	alias string
	enc   valueEncoder
}

func (b *filterBuilder) expr(x ql.Expr) (string, error) {
	switch x := x.(type) {
	case *ql.UnaryExpr:
		if x.Op != ql.OpNot {
			return "", b.unsupported("unary operator %s", x.Op)
		}
		inner, err := b.expr(x.X)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case *ql.BinaryExpr:
		switch x.Op {
		case ql.OpAnd, ql.OpOr:
			return b.logical(x.Op, []ql.Expr{x.X, x.Y})
		default:
			return b.compare(x)
		}
	case *ql.NaryExpr:
		return b.logical(x.Op, x.Xs)
	case *ql.CallExpr:
		return b.call(x)
	default:
		return "", b.unsupported("expression %T", x)
	}
}

func (b *filterBuilder) logical(op ql.Op, xs []ql.Expr) (string, error) {
	var keyword string
	switch op {
	case ql.OpAnd:
		keyword = " AND "
	case ql.OpOr:
		keyword = " OR "
	default:
		return "", b.unsupported("logical operator %s", op)
	}
	parts := make([]string, 0, len(xs))
	for _, x := range xs {
		s, err := b.expr(x)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, keyword) + ")", nil
}

var compareOps = map[ql.Op]string{
	ql.OpEQ:  "=",
	ql.OpNEQ: "!=",
	ql.OpGT:  ">",
	ql.OpGTE: ">=",
	ql.OpLT:  "<",
	ql.OpLTE: "<=",
}

func (b *filterBuilder) compare(x *ql.BinaryExpr) (string, error) {
	fx, ok := x.X.(*ql.Field)
	if !ok {
		return "", b.unsupported("left operand %T", x.X)
	}
	f, col, err := b.column(fx.Name)
	if err != nil {
		return "", err
	}
	// Field to field comparison.
	if fy, ok := x.Y.(*ql.Field); ok {
		op, ok := compareOps[x.Op]
		if !ok {
			return "", b.unsupported("operator %s between fields", x.Op)
		}
		_, other, err := b.column(fy.Name)
		if err != nil {
			return "", err
		}
		return col + " " + op + " " + other, nil
	}
	v, ok := x.Y.(*ql.Value)
	if !ok && x.Y != nil {
		return "", b.unsupported("right operand %T", x.Y)
	}
	switch x.Op {
	case ql.OpEQ, ql.OpNEQ:
		if v.IsNil() {
			if x.Op == ql.OpEQ {
				return col + " IS NULL", nil
			}
			return col + " IS NOT NULL", nil
		}
		fallthrough
	case ql.OpGT, ql.OpGTE, ql.OpLT, ql.OpLTE:
		if v.IsNil() {
			return "", b.unsupported("operator %s with NULL", x.Op)
		}
		lit, err := b.literal(f, v.V)
		if err != nil {
			return "", err
		}
		return col + " " + compareOps[x.Op] + " " + lit, nil
	case ql.OpIn, ql.OpNotIn:
		var items []any
		if !v.IsNil() {
			rv := reflect.ValueOf(v.V)
			if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
				return "", b.unsupported("operator %s with %T", x.Op, v.V)
			}
			for i := 0; i < rv.Len(); i++ {
				items = append(items, rv.Index(i).Interface())
			}
		}
		if len(items) == 0 {
			if x.Op == ql.OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		lits := make([]string, len(items))
		for i, it := range items {
			if lits[i], err = b.literal(f, it); err != nil {
				return "", err
			}
		}
		keyword := " IN ("
		if x.Op == ql.OpNotIn {
			keyword = " NOT IN ("
		}
		return col + keyword + strings.Join(lits, ", ") + ")", nil
	default:
		return "", b.unsupported("operator %s", x.Op)
	}
}

func (b *filterBuilder) call(x *ql.CallExpr) (string, error) {
	if len(x.Args) != 2 {
		return "", b.unsupported("call %s with %d arguments", x.Func, len(x.Args))
	}
	fx, ok := x.Args[0].(*ql.Field)
	if !ok {
		return "", b.unsupported("call %s on %T", x.Func, x.Args[0])
	}
	v, ok := x.Args[1].(*ql.Value)
	if !ok || v.IsNil() {
		return "", b.unsupported("call %s without a value", x.Func)
	}
	s, ok := v.V.(string)
	if !ok {
		return "", b.unsupported("call %s with %T", x.Func, v.V)
	}
	_, col, err := b.column(fx.Name)
	if err != nil {
		return "", err
	}
	escape := " ESCAPE " + b.p.QuoteValue(`\`)
	switch x.Func {
	case ql.FuncEqualFold:
		return "LOWER(" + col + ") = " + b.p.QuoteValue(strings.ToLower(s)), nil
	case ql.FuncContains:
		return col + " LIKE " + b.p.QuoteValue("%"+escapeLike(s)+"%") + escape, nil
	case ql.FuncContainsFold:
		return "LOWER(" + col + ") LIKE " + b.p.QuoteValue("%"+escapeLike(strings.ToLower(s))+"%") + escape, nil
	case ql.FuncHasPrefix:
		return col + " LIKE " + b.p.QuoteValue(escapeLike(s)+"%") + escape, nil
	case ql.FuncHasSuffix:
		return col + " LIKE " + b.p.QuoteValue("%"+escapeLike(s)) + escape, nil
	default:
		return "", b.unsupported("function %s", x.Func)
	}
}

func (b *filterBuilder) column(name string) (*entity.Field, string, error) {
	f, err := b.s.MustField(name)
	if err != nil {
		return nil, "", err
	}
	if !f.IsStored() {
		return nil, "", relmap.NewConfigError(b.s.Label(), relmap.ErrUnknownField, "field %q has no column", name)
	}
	if b.alias == "" {
		return f, b.p.QuoteIdentifier(f.Name), nil
	}
	return f, b.p.QuoteIdentifier(b.alias) + "." + b.p.QuoteIdentifier(f.Name), nil
}

func (b *filterBuilder) literal(f *entity.Field, v any) (string, error) {
	if b.enc != nil {
		ev, err := b.enc.EncodeValue(f, v)
		if err != nil {
			return "", err
		}
		v = ev
	}
	return b.p.QuoteValue(v), nil
}

func (b *filterBuilder) unsupported(format string, args ...any) error {
	return relmap.NewUnsupportedError("filter "+b.s.Label(), fmt.Errorf(format, args...))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
