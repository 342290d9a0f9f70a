package query

import (
	"fmt"
	"strings"

	"dyntables/internal/codec"
	"dyntables/internal/domain"
)

// Predicate is one filter on a physical column. Value is already encoded
// for the column's storage type, except for the substring operators which
// take the text to look for.
type Predicate struct {
	Column  string
	Storage codec.StorageType
	Op      domain.FilterOp
	Value   any
}

const likeEscape = '!'

// escapeLike escapes the LIKE wildcards of s with likeEscape.
func escapeLike(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '%' || r == '_' || r == likeEscape {
			b.WriteRune(likeEscape)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (g *Gateway) predicate(p Predicate) (string, []any, error) {
	col := g.dialect.Quote(p.Column)
	text := g.dialect.TextExpr(col)
	like := g.dialect.LowerExpr(text) + " LIKE ? ESCAPE '!'"

	if p.Op.NeedsValue() && p.Value == nil && p.Op != domain.FilterEquals && p.Op != domain.FilterNotEquals {
		return "", nil, domain.Validation("filter", "operator %s needs a value", p.Op).WithColumn(p.Column)
	}

	switch p.Op {
	case domain.FilterEquals:
		if p.Value == nil {
			return col + " IS NULL", nil, nil
		}
		return col + " = ?", []any{g.bind(p.Value)}, nil
	case domain.FilterNotEquals:
		if p.Value == nil {
			return col + " IS NOT NULL", nil, nil
		}
		return "(" + col + " <> ? OR " + col + " IS NULL)", []any{g.bind(p.Value)}, nil
	case domain.FilterGT:
		return col + " > ?", []any{g.bind(p.Value)}, nil
	case domain.FilterGTE:
		return col + " >= ?", []any{g.bind(p.Value)}, nil
	case domain.FilterLT:
		return col + " < ?", []any{g.bind(p.Value)}, nil
	case domain.FilterLTE:
		return col + " <= ?", []any{g.bind(p.Value)}, nil
	case domain.FilterContains:
		return like, []any{"%" + likeText(p.Value) + "%"}, nil
	case domain.FilterNotContains:
		return "(" + col + " IS NULL OR NOT (" + like + "))", []any{"%" + likeText(p.Value) + "%"}, nil
	case domain.FilterStartsWith:
		return like, []any{likeText(p.Value) + "%"}, nil
	case domain.FilterEndsWith:
		return like, []any{"%" + likeText(p.Value)}, nil
	case domain.FilterIsEmpty:
		return g.emptyExpr(col, p.Storage), nil, nil
	case domain.FilterIsNotEmpty:
		return "NOT (" + g.emptyExpr(col, p.Storage) + ")", nil, nil
	}
	return "", nil, domain.Validation("filter", "unknown operator %q", p.Op).WithColumn(p.Column)
}

func likeText(v any) string {
	return escapeLike(strings.ToLower(fmt.Sprint(v)))
}

// emptyExpr is true for null cells and, on text and JSON columns, for
// values that carry no content. It is never null itself, so NOT of it is
// the exact complement.
func (g *Gateway) emptyExpr(col string, st codec.StorageType) string {
	switch st {
	case codec.StorageText:
		return "(" + col + " IS NULL OR " + g.dialect.TextExpr(col) + " = '')"
	case codec.StorageJSON:
		return "(" + col + " IS NULL OR " + g.dialect.TextExpr(col) + " IN ('', '[]', '{}', 'null'))"
	}
	return "(" + col + " IS NULL)"
}
