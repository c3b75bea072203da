package argeval

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// ValueKind names how the values consumed by an option are interpreted.
type ValueKind int

// The kinds of values an option can deliver.
const (
	KindNone ValueKind = iota
	KindCallback
	KindString
	KindInteger
	KindFloat
	KindDouble
)

// String returns the lowercase name of the kind.
func (k ValueKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCallback:
		return "callback"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	default:
		return "unknown"
	}
}

// scalar reports whether values of this kind are stored into a host variable.
func (k ValueKind) scalar() bool {
	return k == KindString || k == KindInteger || k == KindFloat || k == KindDouble
}

// Handler receives the values consumed for an option and returns an application
// defined status code. Zero means success.
type Handler func(values []string) int

// A Target is where a matched option delivers its values. The concrete shape of a
// Target fixes its ValueKind, so a table cannot pair a kind with the wrong variable.
type Target interface {
	Kind() ValueKind

	// assign delivers the consumed values. The returned code is only meaningful for
	// callbacks.
	assign(values []string) (int, error)
	// current renders the value held by a scalar target for help output.
	current() (string, bool)
	// bound reports whether the target refers to something it can write to or call.
	bound() bool
}

// NoValue is the target of options that only count occurrences.
func NoValue() Target {
	return noValue{}
}

// Func calls h with the consumed values.
func Func(h Handler) Target {
	return funcTarget{h: h}
}

// String stores the first consumed value into p.
func String(p *string) Target {
	return stringTarget{p: p}
}

// Int parses the first consumed value as an integer into p. Decimal as well as
// 0x, 0o and 0b prefixed values are accepted.
func Int(p *int) Target {
	return intTarget{p: p}
}

// Float parses the first consumed value as a float32 into p.
func Float(p *float32) Target {
	return floatTarget{p: p}
}

// Double parses the first consumed value as a float64 into p.
func Double(p *float64) Target {
	return doubleTarget{p: p}
}

type noValue struct{}

func (noValue) Kind() ValueKind { return KindNone }
func (noValue) assign([]string) (int, error) { return 0, nil }
func (noValue) current() (string, bool) { return "", false }
func (noValue) bound() bool { return true }

type funcTarget struct{ h Handler }

func (t funcTarget) Kind() ValueKind { return KindCallback }

func (t funcTarget) assign(values []string) (int, error) {
	// handlers get their own copy so they cannot rewrite the caller's argument vector
	return t.h(append([]string(nil), values...)), nil
}

func (t funcTarget) current() (string, bool) { return "", false }
func (t funcTarget) bound() bool { return t.h != nil }

type stringTarget struct{ p *string }

func (t stringTarget) Kind() ValueKind { return KindString }

func (t stringTarget) assign(values []string) (int, error) {
	*t.p = values[0]
	return 0, nil
}

func (t stringTarget) current() (string, bool) { return *t.p, true }
func (t stringTarget) bound() bool { return t.p != nil }

type intTarget struct{ p *int }

func (t intTarget) Kind() ValueKind { return KindInteger }

func (t intTarget) assign(values []string) (int, error) {
	v, err := parseInt(values[0])
	if err != nil {
		return 0, err
	}
	*t.p = v
	return 0, nil
}

func (t intTarget) current() (string, bool) { return cast.ToString(*t.p), true }
func (t intTarget) bound() bool { return t.p != nil }

type floatTarget struct{ p *float32 }

func (t floatTarget) Kind() ValueKind { return KindFloat }

func (t floatTarget) assign(values []string) (int, error) {
	if err := checkDecimal(values[0]); err != nil {
		return 0, err
	}
	v, err := cast.ToFloat32E(values[0])
	if err == nil && (math.IsNaN(float64(v)) || math.IsInf(float64(v), 0)) {
		err = errors.Errorf("%q is not finite", values[0])
	}
	if err != nil {
		return 0, err
	}
	*t.p = v
	return 0, nil
}

func (t floatTarget) current() (string, bool) { return cast.ToString(*t.p), true }
func (t floatTarget) bound() bool { return t.p != nil }

type doubleTarget struct{ p *float64 }

func (t doubleTarget) Kind() ValueKind { return KindDouble }

func (t doubleTarget) assign(values []string) (int, error) {
	if err := checkDecimal(values[0]); err != nil {
		return 0, err
	}
	v, err := cast.ToFloat64E(values[0])
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = errors.Errorf("%q is not finite", values[0])
	}
	if err != nil {
		return 0, err
	}
	*t.p = v
	return 0, nil
}

func (t doubleTarget) current() (string, bool) { return cast.ToString(*t.p), true }
func (t doubleTarget) bound() bool { return t.p != nil }

// parseInt reads a base 10 integer; leading zeros stay decimal. Only an explicit 0x, 0o or 0b
// prefix selects another base.
func parseInt(token string) (int, error) {
	digits := strings.TrimLeft(token, "+-")
	if len(digits) > 2 && digits[0] == '0' && strings.ContainsRune("xXoObB", rune(digits[1])) {
		if strings.ContainsAny(token, "_.") {
			return 0, errors.Errorf("%q is not an integer", token)
		}
		return cast.ToIntE(token)
	}
	return strconv.Atoi(token)
}

// checkDecimal rejects everything but digits, signs, a decimal point and an exponent, so hex
// floats, digit separators and NaN or Inf spellings never reach the conversion.
func checkDecimal(token string) error {
	if i := strings.IndexFunc(token, func(r rune) bool {
		return !strings.ContainsRune("0123456789+-.eE", r)
	}); i >= 0 {
		return errors.Errorf("%q is not a decimal number", token)
	}
	return nil
}
