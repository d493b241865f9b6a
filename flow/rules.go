package flow

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

type ruleKind uint8

const (
	ruleRequired ruleKind = iota
	ruleMinLen
	ruleLength
	rulePattern
	ruleEmail
	ruleMobile
	ruleNotBefore
	ruleNotAfter
	ruleOneOf
	ruleURL
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	mobilePattern = regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)
	phoneNoise    = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// Rule is a single check of a field pipeline. Rules are built with the
// constructors below and evaluated in order.
type Rule struct {
	kind    ruleKind
	n       int
	re      *regexp.Regexp
	limit   func() time.Time
	options []string
	msg     string
}

func Required(msg string) Rule { return Rule{kind: ruleRequired, msg: msg} }

func MinLen(n int, msg string) Rule { return Rule{kind: ruleMinLen, n: n, msg: msg} }

func Length(n int, msg string) Rule { return Rule{kind: ruleLength, n: n, msg: msg} }

func Pattern(expr, msg string) Rule {
	return Rule{kind: rulePattern, re: regexp.MustCompile(expr), msg: msg}
}

func Email(msg string) Rule { return Rule{kind: ruleEmail, msg: msg} }

// Mobile accepts international mobile numbers, ignoring spaces, dashes,
// dots and parentheses.
func Mobile(msg string) Rule { return Rule{kind: ruleMobile, msg: msg} }

func NotBefore(limit func() time.Time, msg string) Rule {
	return Rule{kind: ruleNotBefore, limit: limit, msg: msg}
}

func NotAfter(limit func() time.Time, msg string) Rule {
	return Rule{kind: ruleNotAfter, limit: limit, msg: msg}
}

// OneOf matches case-insensitively.
func OneOf(msg string, options ...string) Rule {
	return Rule{kind: ruleOneOf, options: options, msg: msg}
}

func URL(msg string) Rule { return Rule{kind: ruleURL, msg: msg} }

func (r Rule) passes(v any) bool {
	switch r.kind {
	case ruleRequired:
		return !empty(v)
	case ruleNotBefore, ruleNotAfter:
		t, ok := v.(time.Time)
		if !ok {
			return false
		}
		if r.kind == ruleNotBefore {
			return !t.Before(r.limit())
		}
		return !t.After(r.limit())
	}

	s, ok := v.(string)
	if !ok {
		return false
	}
	switch r.kind {
	case ruleMinLen:
		return utf8.RuneCountInString(s) >= r.n
	case ruleLength:
		return utf8.RuneCountInString(s) == r.n
	case rulePattern:
		return r.re.MatchString(s)
	case ruleEmail:
		return emailPattern.MatchString(strings.TrimSpace(s))
	case ruleMobile:
		return mobilePattern.MatchString(phoneNoise.Replace(s))
	case ruleOneOf:
		for _, o := range r.options {
			if strings.EqualFold(strings.TrimSpace(s), o) {
				return true
			}
		}
		return false
	case ruleURL:
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && (u.Host != "" || u.Opaque != "")
	}
	return false
}

func empty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case time.Time:
		return x.IsZero()
	}
	return false
}

// Field is the rule pipeline of one form field. An empty value of an
// Optional field passes without running the rules. A failed Required rule
// stops the pipeline; every other failed rule is reported.
type Field struct {
	Name     string
	Optional bool
	Rules    []Rule
}

func (f Field) check(v any) []FieldError {
	if f.Optional && empty(v) {
		return nil
	}
	var errs []FieldError
	for _, r := range f.Rules {
		if r.passes(v) {
			continue
		}
		errs = append(errs, FieldError{Field: f.Name, Message: r.msg})
		if r.kind == ruleRequired {
			break
		}
	}
	return errs
}

// Record is a plain data record of field values: strings or time.Time.
type Record map[string]any

type Schema []Field

func (s Schema) field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate runs the pipelines of the named fields against rec, or of every
// field when names is empty. Unknown names are ignored.
func (s Schema) Validate(rec Record, names ...string) ValidationError {
	fields := s
	if len(names) > 0 {
		fields = make(Schema, 0, len(names))
		for _, n := range names {
			if f, ok := s.field(n); ok {
				fields = append(fields, f)
			}
		}
	}
	var errs ValidationError
	for _, f := range fields {
		errs = append(errs, f.check(rec[f.Name])...)
	}
	return errs
}
