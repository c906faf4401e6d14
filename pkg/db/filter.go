package db

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// subjects of filter and order-by expressions.
const (
	SubjectAttribute = "attribute"
	SubjectMetric    = "metric"
	SubjectParam     = "param"
	SubjectTag       = "tag"
)

// attributes which hold millisecond timestamps. Others are strings.
var numericAttributes = map[string]bool{
	"start_time": true,
	"end_time":   true,
}

var stringAttributes = map[string]bool{
	"run_id":       true,
	"run_name":     true,
	"status":       true,
	"artifact_uri": true,
}

// RunCondition is a single comparison in a run search filter.
//
// For numeric comparisons (metrics, start_time, end_time) Number holds the
// right-hand side. For string comparisons (params, tags, string attributes)
// Value holds it.
type RunCondition struct {
	Subject string
	Key     string
	Op      string
	Value   string
	Number  float64
}

// Match tests the condition against a run.
//
// A run not having the key (metric, param, tag or end time) never matches,
// whichever the operator is.
func (c RunCondition) Match(r Run) bool {
	switch c.Subject {
	case SubjectMetric:
		m, ok := r.LatestMetric(c.Key)
		if !ok {
			return false
		}
		return matchNumber(m.Value, c.Op, c.Number)
	case SubjectParam:
		v, ok := r.Param(c.Key)
		if !ok {
			return false
		}
		return matchString(v, c.Op, c.Value)
	case SubjectTag:
		v, ok := r.Tag(c.Key)
		if !ok {
			return false
		}
		return matchString(v, c.Op, c.Value)
	case SubjectAttribute:
		switch c.Key {
		case "run_id":
			return matchString(r.Id, c.Op, c.Value)
		case "run_name":
			return matchString(r.Name, c.Op, c.Value)
		case "status":
			return matchString(string(r.Status), c.Op, c.Value)
		case "artifact_uri":
			return matchString(r.ArtifactUri, c.Op, c.Value)
		case "start_time":
			return matchNumber(float64(r.StartedAt.UnixMilli()), c.Op, c.Number)
		case "end_time":
			if r.EndedAt == nil {
				return false
			}
			return matchNumber(float64(r.EndedAt.UnixMilli()), c.Op, c.Number)
		}
	}
	return false
}

func matchNumber(actual float64, op string, expected float64) bool {
	switch op {
	case "=":
		return actual == expected
	case "!=":
		return actual != expected
	case ">":
		return expected < actual
	case ">=":
		return expected <= actual
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected
	}
	return false
}

func matchString(actual string, op string, expected string) bool {
	switch op {
	case "=":
		return actual == expected
	case "!=":
		return actual != expected
	case "LIKE":
		return matchLike(actual, expected, false)
	case "ILIKE":
		return matchLike(actual, expected, true)
	}
	return false
}

// matchLike tests a SQL LIKE pattern. % matches any sequence, _ a single char.
func matchLike(actual string, pattern string, foldCase bool) bool {
	expr := strings.Builder{}
	if foldCase {
		expr.WriteString("(?i)")
	}
	expr.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			expr.WriteString(".*")
		case '_':
			expr.WriteString(".")
		default:
			expr.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	expr.WriteString("$")

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return false
	}
	return re.MatchString(actual)
}

// RunOrder is a single sort key of a run search.
type RunOrder struct {
	Subject string
	Key     string
	Desc    bool
}

func (o RunOrder) numeric() bool {
	return o.Subject == SubjectMetric ||
		(o.Subject == SubjectAttribute && numericAttributes[o.Key])
}

// compare returns negative when a comes before b, positive when after.
//
// Runs not having the sort key come last, whichever the direction is.
func (o RunOrder) compare(a, b Run) int {
	if o.numeric() {
		x, xok := o.number(a)
		y, yok := o.number(b)
		if xok != yok {
			if xok {
				return -1
			}
			return 1
		}
		switch {
		case !xok, x == y:
			return 0
		case x < y:
			return o.signed(-1)
		default:
			return o.signed(1)
		}
	}

	x, xok := o.str(a)
	y, yok := o.str(b)
	if xok != yok {
		if xok {
			return -1
		}
		return 1
	}
	switch {
	case !xok, x == y:
		return 0
	case x < y:
		return o.signed(-1)
	default:
		return o.signed(1)
	}
}

func (o RunOrder) signed(c int) int {
	if o.Desc {
		return -c
	}
	return c
}

func (o RunOrder) number(r Run) (float64, bool) {
	switch o.Subject {
	case SubjectMetric:
		m, ok := r.LatestMetric(o.Key)
		return m.Value, ok
	case SubjectAttribute:
		switch o.Key {
		case "start_time":
			return float64(r.StartedAt.UnixMilli()), true
		case "end_time":
			if r.EndedAt == nil {
				return 0, false
			}
			return float64(r.EndedAt.UnixMilli()), true
		}
	}
	return 0, false
}

func (o RunOrder) str(r Run) (string, bool) {
	switch o.Subject {
	case SubjectParam:
		return r.Param(o.Key)
	case SubjectTag:
		return r.Tag(o.Key)
	case SubjectAttribute:
		switch o.Key {
		case "run_id":
			return r.Id, true
		case "run_name":
			return r.Name, true
		case "status":
			return string(r.Status), true
		case "artifact_uri":
			return r.ArtifactUri, true
		}
	}
	return "", false
}

// SortRuns sorts runs by orderBy, then by start time (newest first),
// then by run id.
func SortRuns(runs []Run, orderBy []RunOrder) {
	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i], runs[j]
		for _, o := range orderBy {
			switch c := o.compare(a, b); {
			case c < 0:
				return true
			case 0 < c:
				return false
			}
		}
		if !a.StartedAt.Equal(b.StartedAt) {
			return b.StartedAt.Before(a.StartedAt)
		}
		return a.Id < b.Id
	})
}

// ParseRunFilter parses a run search filter into conditions.
//
// The filter is a conjunction of comparisons:
//
//	metrics.accuracy >= 0.9 AND params.model = 'forest' AND tags.team != 'ml'
//
// Subjects are metrics, params, tags and attributes, singular or plural.
// A key without subject is an attribute. Keys may be quoted with backquotes
// or double quotes. Metrics, start_time and end_time compare against bare
// numbers with = != < <= > >=; others against quoted strings with
// = != LIKE ILIKE.
func ParseRunFilter(filter string) ([]RunCondition, error) {
	s := &scanner{src: filter}
	conds := []RunCondition{}

	s.skipSpace()
	if s.eof() {
		return conds, nil
	}
	for {
		c, err := parseComparison(s)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)

		s.skipSpace()
		if s.eof() {
			return conds, nil
		}
		if !s.takeKeyword("AND") {
			return nil, fmt.Errorf("filter: expected AND, found %q", s.rest())
		}
	}
}

// ParseRunOrder parses a single order-by clause, like "metrics.accuracy DESC".
//
// The direction is ASC or DESC, default ASC. Subjects and keys are as in
// ParseRunFilter.
func ParseRunOrder(clause string) (RunOrder, error) {
	s := &scanner{src: clause}

	subject, key, err := parseSubjectKey(s)
	if err != nil {
		return RunOrder{}, err
	}
	if subject == SubjectAttribute && !numericAttributes[key] && !stringAttributes[key] {
		return RunOrder{}, fmt.Errorf("order by: unknown attribute %q", key)
	}

	o := RunOrder{Subject: subject, Key: key}
	s.skipSpace()
	switch {
	case s.eof():
	case s.takeKeyword("ASC"):
	case s.takeKeyword("DESC"):
		o.Desc = true
	default:
		return RunOrder{}, fmt.Errorf("order by: expected ASC or DESC, found %q", s.rest())
	}
	s.skipSpace()
	if !s.eof() {
		return RunOrder{}, fmt.Errorf("order by: trailing %q", s.rest())
	}
	return o, nil
}

func parseComparison(s *scanner) (RunCondition, error) {
	subject, key, err := parseSubjectKey(s)
	if err != nil {
		return RunCondition{}, err
	}

	op, err := parseOperator(s)
	if err != nil {
		return RunCondition{}, err
	}

	value, number, isNumber, err := parseValue(s)
	if err != nil {
		return RunCondition{}, err
	}

	c := RunCondition{Subject: subject, Key: key, Op: op}
	wantNumber := subject == SubjectMetric ||
		(subject == SubjectAttribute && numericAttributes[key])
	if subject == SubjectAttribute && !numericAttributes[key] && !stringAttributes[key] {
		return RunCondition{}, fmt.Errorf("filter: unknown attribute %q", key)
	}

	if wantNumber {
		if !isNumber {
			return RunCondition{}, fmt.Errorf(
				"filter: %s.%s compares against a number, not %q", subject, key, value,
			)
		}
		switch op {
		case "=", "!=", ">", ">=", "<", "<=":
		default:
			return RunCondition{}, fmt.Errorf("filter: %s is not for numbers", op)
		}
		c.Number = number
		return c, nil
	}

	if isNumber {
		return RunCondition{}, fmt.Errorf(
			"filter: %s.%s compares against a quoted string", subject, key,
		)
	}
	switch op {
	case "=", "!=", "LIKE", "ILIKE":
	default:
		return RunCondition{}, fmt.Errorf("filter: %s is not for strings", op)
	}
	c.Value = value
	return c, nil
}

func parseSubjectKey(s *scanner) (string, string, error) {
	s.skipSpace()
	if s.eof() {
		return "", "", fmt.Errorf("filter: expected a key, found nothing")
	}

	first, err := parseIdentifier(s)
	if err != nil {
		return "", "", err
	}
	if s.eof() || s.peek() != '.' {
		return SubjectAttribute, first, nil
	}
	s.pos += 1 // "."

	subject, err := asSubject(first)
	if err != nil {
		return "", "", err
	}
	key, err := parseIdentifier(s)
	if err != nil {
		return "", "", err
	}
	return subject, key, nil
}

func asSubject(word string) (string, error) {
	switch strings.ToLower(word) {
	case "metric", "metrics":
		return SubjectMetric, nil
	case "param", "params", "parameter", "parameters":
		return SubjectParam, nil
	case "tag", "tags":
		return SubjectTag, nil
	case "attribute", "attributes":
		return SubjectAttribute, nil
	default:
		return "", fmt.Errorf("filter: unknown subject %q", word)
	}
}

func parseIdentifier(s *scanner) (string, error) {
	if s.eof() {
		return "", fmt.Errorf("filter: expected a key, found nothing")
	}
	if c := s.peek(); c == '`' || c == '"' {
		return s.quoted(c)
	}
	w := s.word()
	if w == "" {
		return "", fmt.Errorf("filter: expected a key, found %q", s.rest())
	}
	return w, nil
}

func parseOperator(s *scanner) (string, error) {
	s.skipSpace()
	for _, op := range []string{">=", "<=", "!=", "=", ">", "<"} {
		if s.take(op) {
			return op, nil
		}
	}
	if s.takeKeyword("LIKE") {
		return "LIKE", nil
	}
	if s.takeKeyword("ILIKE") {
		return "ILIKE", nil
	}
	return "", fmt.Errorf("filter: expected an operator, found %q", s.rest())
}

func parseValue(s *scanner) (string, float64, bool, error) {
	s.skipSpace()
	if s.eof() {
		return "", 0, false, fmt.Errorf("filter: expected a value, found nothing")
	}
	if c := s.peek(); c == '\'' || c == '"' {
		v, err := s.quoted(c)
		return v, 0, false, err
	}

	w := s.number()
	n, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return "", 0, false, fmt.Errorf("filter: expected a value, found %q", w+s.rest())
	}
	return "", n, true, nil
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) eof() bool {
	return len(s.src) <= s.pos
}

func (s *scanner) peek() byte {
	return s.src[s.pos]
}

func (s *scanner) rest() string {
	return s.src[s.pos:]
}

func (s *scanner) skipSpace() {
	for !s.eof() && (s.src[s.pos] == ' ' || s.src[s.pos] == '\t' ||
		s.src[s.pos] == '\r' || s.src[s.pos] == '\n') {
		s.pos += 1
	}
}

func isWordChar(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9') || c == '_'
}

func (s *scanner) word() string {
	start := s.pos
	for !s.eof() && isWordChar(s.peek()) {
		s.pos += 1
	}
	return s.src[start:s.pos]
}

func (s *scanner) number() string {
	start := s.pos
	for !s.eof() && strings.ContainsRune("+-.0123456789eE", rune(s.peek())) {
		s.pos += 1
	}
	return s.src[start:s.pos]
}

// take consumes tok when the rest starts with it.
func (s *scanner) take(tok string) bool {
	if strings.HasPrefix(s.rest(), tok) {
		s.pos += len(tok)
		return true
	}
	return false
}

// takeKeyword consumes the next word when it equals kw, case-insensitively.
func (s *scanner) takeKeyword(kw string) bool {
	p := s.pos
	s.skipSpace()
	if w := s.word(); strings.EqualFold(w, kw) {
		return true
	}
	s.pos = p
	return false
}

// quoted consumes a quoted string opened and closed by q.
func (s *scanner) quoted(q byte) (string, error) {
	s.pos += 1 // opening quote
	start := s.pos
	for !s.eof() {
		if s.peek() == q {
			v := s.src[start:s.pos]
			s.pos += 1
			return v, nil
		}
		s.pos += 1
	}
	return "", fmt.Errorf("filter: quote %c is not closed: %q", q, s.src[start-1:])
}
