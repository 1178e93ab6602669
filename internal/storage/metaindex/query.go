package metaindex

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
)

// Поисковый язык:
//
//	field:value          точное совпадение поля
//	field:"a b"          значение в кавычках (без шаблонов)
//	field:(a OR b)       группа значений для одного поля
//	field:[a TO b]       диапазон для date, forecastDistance, version (* — открытая граница)
//	field:*              поле заполнено
//	text                 подстрока имени без учёта регистра
//	AND, OR, NOT, ( )    логика; термы подряд объединяются через AND
//
// В значениях без кавычек * и ? работают как шаблоны (ILIKE).

// fieldKind — тип значения поля.
type fieldKind int

const (
	kindText fieldKind = iota
	kindInt
	kindDate
	kindUUID
)

type fieldDef struct {
	column string
	kind   fieldKind
}

// fields — допустимые поля запроса и соответствующие столбцы.
// Только эти имена попадают в текст SQL.
var fields = map[string]fieldDef{
	"id":               {"id", kindUUID},
	"uuid":             {"id", kindUUID},
	"name":             {"name", kindText},
	"format":           {"format", kindText},
	"type":             {"type", kindText},
	"date":             {"date", kindDate},
	"forecastDistance": {"forecast_distance", kindInt},
	"geographicalCode": {"geographical_code", kindText},
	"country":          {"country", kindText},
	"version":          {"version", kindInt},
	"businessProcess":  {"business_process", kindText},
	"tsoCode":          {"tso_code", kindText},
}

// noMatchTerm — терм, которому не соответствует ни одна запись.
const noMatchTerm = "(NOT *)"

// DateSearchTerm строит терм запроса, совпадающий с любой из дат.
// Без дат возвращает терм, не совпадающий ни с чем, так что
// DateSearchTerm() + " AND ..." остаётся корректным запросом.
func DateSearchTerm(dates ...time.Time) string {
	if len(dates) == 0 {
		return noMatchTerm
	}
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = strconv.Quote(model.FormatDate(d))
	}
	return "date:(" + strings.Join(parts, " OR ") + ")"
}

// ---- лексер ----

type tokenType int

const (
	tokEOF tokenType = iota
	tokWord
	tokQuoted
	tokField
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokAnd
	tokOr
	tokNot
	tokTo
)

type token struct {
	typ tokenType
	val string
	pos int
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidQuery, fmt.Sprintf(format, args...))
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	rs := []rune(input)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case r == '[':
			tokens = append(tokens, token{tokLBracket, "[", i})
			i++
		case r == ']':
			tokens = append(tokens, token{tokRBracket, "]", i})
			i++
		case r == '"':
			start := i
			i++
			var sb strings.Builder
			closed := false
			for i < len(rs) {
				if rs[i] == '\\' && i+1 < len(rs) {
					sb.WriteRune(rs[i+1])
					i += 2
					continue
				}
				if rs[i] == '"' {
					closed = true
					i++
					break
				}
				sb.WriteRune(rs[i])
				i++
			}
			if !closed {
				return nil, invalid("незакрытая кавычка в позиции %d", start)
			}
			tokens = append(tokens, token{tokQuoted, sb.String(), start})
		default:
			start := i
			for i < len(rs) && !unicode.IsSpace(rs[i]) && !strings.ContainsRune(`()[]"`, rs[i]) {
				i++
			}
			tokens = append(tokens, wordTokens(string(rs[start:i]), start)...)
		}
	}
	return append(tokens, token{tokEOF, "", len(rs)}), nil
}

// wordTokens распознаёт ключевые слова и префикс field:.
// Двоеточия внутри значения (даты без кавычек) сохраняются.
func wordTokens(word string, pos int) []token {
	switch word {
	case "AND", "&&":
		return []token{{tokAnd, word, pos}}
	case "OR", "||":
		return []token{{tokOr, word, pos}}
	case "NOT":
		return []token{{tokNot, word, pos}}
	case "TO":
		return []token{{tokTo, word, pos}}
	}
	if i := strings.IndexByte(word, ':'); i > 0 && isIdent(word[:i]) {
		out := []token{{tokField, word[:i], pos}}
		if rest := word[i+1:]; rest != "" {
			out = append(out, token{tokWord, rest, pos + i + 1})
		}
		return out
	}
	return []token{{tokWord, word, pos}}
}

func isIdent(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return s != ""
}

// ---- синтаксическое дерево ----

type node interface {
	toSQL(b *sqlBuilder) (string, error)
}

type andNode struct{ left, right node }
type orNode struct{ left, right node }
type notNode struct{ inner node }
type matchAllNode struct{}

// termNode — сравнение поля со значением. field == "" — свободный текст.
type termNode struct {
	field  string
	value  string
	quoted bool
}

// rangeNode — field:[from TO to]; пустая граница — открытая.
type rangeNode struct {
	field    string
	from, to string
}

// ---- парсер ----

type queryParser struct {
	tokens []token
	pos    int
}

func (p *queryParser) peek() token { return p.tokens[p.pos] }

func (p *queryParser) next() token {
	t := p.tokens[p.pos]
	if t.typ != tokEOF {
		p.pos++
	}
	return t
}

func parseQuery(input string) (node, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &queryParser{tokens: tokens}
	if p.peek().typ == tokEOF {
		return matchAllNode{}, nil
	}
	n, err := p.parseOr("")
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.typ != tokEOF {
		return nil, invalid("неожиданный %q в позиции %d", t.val, t.pos)
	}
	return n, nil
}

// parseOr разбирает выражение; field — поле группы значений ("" вне группы).
func (p *queryParser) parseOr(field string) (node, error) {
	left, err := p.parseAnd(field)
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokOr {
		p.next()
		right, err := p.parseAnd(field)
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *queryParser) parseAnd(field string) (node, error) {
	left, err := p.parseNot(field)
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().typ {
		case tokAnd:
			p.next()
		case tokWord, tokQuoted, tokField, tokLParen, tokNot:
			// термы подряд — неявный AND
		default:
			return left, nil
		}
		right, err := p.parseNot(field)
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
}

func (p *queryParser) parseNot(field string) (node, error) {
	if p.peek().typ == tokNot {
		p.next()
		inner, err := p.parseNot(field)
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	return p.parsePrimary(field)
}

func (p *queryParser) parsePrimary(field string) (node, error) {
	t := p.next()
	switch t.typ {
	case tokLParen:
		n, err := p.parseOr(field)
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.typ != tokRParen {
			return nil, invalid("ожидалась ) в позиции %d", c.pos)
		}
		return n, nil
	case tokWord:
		return termNode{field: field, value: t.val}, nil
	case tokQuoted:
		return termNode{field: field, value: t.val, quoted: true}, nil
	case tokField:
		if _, ok := fields[t.val]; !ok {
			return nil, invalid("неизвестное поле %q", t.val)
		}
		return p.parseFieldValue(t.val)
	case tokEOF:
		return nil, invalid("неожиданный конец запроса")
	default:
		return nil, invalid("неожиданный %q в позиции %d", t.val, t.pos)
	}
}

func (p *queryParser) parseFieldValue(field string) (node, error) {
	t := p.next()
	switch t.typ {
	case tokWord:
		return termNode{field: field, value: t.val}, nil
	case tokQuoted:
		return termNode{field: field, value: t.val, quoted: true}, nil
	case tokLParen:
		n, err := p.parseOr(field)
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.typ != tokRParen {
			return nil, invalid("ожидалась ) в позиции %d", c.pos)
		}
		return n, nil
	case tokLBracket:
		return p.parseRange(field)
	default:
		return nil, invalid("нет значения для поля %q", field)
	}
}

func (p *queryParser) parseRange(field string) (node, error) {
	bound := func() (string, error) {
		t := p.next()
		switch t.typ {
		case tokWord:
			if t.val == "*" {
				return "", nil
			}
			return t.val, nil
		case tokQuoted:
			return t.val, nil
		}
		return "", invalid("ожидалась граница диапазона в позиции %d", t.pos)
	}
	from, err := bound()
	if err != nil {
		return nil, err
	}
	if t := p.next(); t.typ != tokTo {
		return nil, invalid("ожидалось TO в позиции %d", t.pos)
	}
	to, err := bound()
	if err != nil {
		return nil, err
	}
	if t := p.next(); t.typ != tokRBracket {
		return nil, invalid("ожидалась ] в позиции %d", t.pos)
	}
	return rangeNode{field: field, from: from, to: to}, nil
}

// ---- SQL ----

// sqlBuilder накапливает аргументы $n.
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// buildSearchWhere переводит запрос в WHERE-условие с аргументами.
// Пустой запрос — без условия.
func buildSearchWhere(query string) (string, []any, error) {
	n, err := parseQuery(query)
	if err != nil {
		return "", nil, err
	}
	if _, ok := n.(matchAllNode); ok {
		return "", nil, nil
	}
	b := &sqlBuilder{}
	cond, err := n.toSQL(b)
	if err != nil {
		return "", nil, err
	}
	return "WHERE " + cond, b.args, nil
}

func (n andNode) toSQL(b *sqlBuilder) (string, error) {
	l, err := n.left.toSQL(b)
	if err != nil {
		return "", err
	}
	r, err := n.right.toSQL(b)
	if err != nil {
		return "", err
	}
	return "(" + l + " AND " + r + ")", nil
}

func (n orNode) toSQL(b *sqlBuilder) (string, error) {
	l, err := n.left.toSQL(b)
	if err != nil {
		return "", err
	}
	r, err := n.right.toSQL(b)
	if err != nil {
		return "", err
	}
	return "(" + l + " OR " + r + ")", nil
}

func (n notNode) toSQL(b *sqlBuilder) (string, error) {
	inner, err := n.inner.toSQL(b)
	if err != nil {
		return "", err
	}
	// NULL-поля не совпадают с термом, поэтому NOT должен их включать
	return "(" + inner + ") IS NOT TRUE", nil
}

func (matchAllNode) toSQL(*sqlBuilder) (string, error) { return "TRUE", nil }

func (n termNode) toSQL(b *sqlBuilder) (string, error) {
	if n.field == "" {
		if !n.quoted && n.value == "*" {
			return "TRUE", nil
		}
		pattern := "%" + escapeLike(n.value) + "%"
		if !n.quoted {
			pattern = "%" + likePattern(n.value) + "%"
		}
		return "name ILIKE " + b.arg(pattern), nil
	}

	def := fields[n.field]
	if !n.quoted && n.value == "*" {
		return def.column + " IS NOT NULL", nil
	}

	switch def.kind {
	case kindUUID:
		id, err := uuid.Parse(n.value)
		if err != nil {
			return "", invalid("некорректный идентификатор %q", n.value)
		}
		return def.column + " = " + b.arg(id.String()), nil
	case kindInt:
		v, err := strconv.Atoi(n.value)
		if err != nil {
			return "", invalid("поле %s: ожидалось целое, получено %q", n.field, n.value)
		}
		return def.column + " = " + b.arg(v), nil
	case kindDate:
		d, err := model.ParseDate(n.value)
		if err != nil {
			return "", invalid("поле %s: некорректная дата %q", n.field, n.value)
		}
		return def.column + " = " + b.arg(d), nil
	default:
		if !n.quoted && strings.ContainsAny(n.value, "*?") {
			return def.column + " ILIKE " + b.arg(likePattern(n.value)), nil
		}
		return def.column + " = " + b.arg(n.value), nil
	}
}

func (n rangeNode) toSQL(b *sqlBuilder) (string, error) {
	def := fields[n.field]
	if def.kind != kindInt && def.kind != kindDate {
		return "", invalid("поле %s не поддерживает диапазоны", n.field)
	}

	convert := func(s string) (any, error) {
		switch def.kind {
		case kindInt:
			v, err := strconv.Atoi(s)
			if err != nil {
				return nil, invalid("поле %s: ожидалось целое, получено %q", n.field, s)
			}
			return v, nil
		case kindDate:
			d, err := model.ParseDate(s)
			if err != nil {
				return nil, invalid("поле %s: некорректная дата %q", n.field, s)
			}
			return d, nil
		}
		return nil, invalid("поле %s не поддерживает диапазоны", n.field)
	}

	var conds []string
	if n.from != "" {
		v, err := convert(n.from)
		if err != nil {
			return "", err
		}
		conds = append(conds, def.column+" >= "+b.arg(v))
	}
	if n.to != "" {
		v, err := convert(n.to)
		if err != nil {
			return "", err
		}
		conds = append(conds, def.column+" <= "+b.arg(v))
	}
	if len(conds) == 0 {
		return def.column + " IS NOT NULL", nil
	}
	return "(" + strings.Join(conds, " AND ") + ")", nil
}

// escapeLike экранирует спецсимволы LIKE.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// likePattern переводит * и ? в шаблоны LIKE, остальное экранирует.
func likePattern(s string) string {
	return strings.NewReplacer("*", "%", "?", "_").Replace(escapeLike(s))
}
