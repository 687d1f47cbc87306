// Number representation. Integers stay exact: int64 when they fit, uint64
// above math.MaxInt64 and json.Number beyond that. Every other number is a
// finite float64.

package tree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"regexp"
	"strconv"
)

var integerLiteral = regexp.MustCompile(`^-?(0|[1-9][0-9]*)$`)

// ParseNumber converts a JSON number literal into the tree's model.
func ParseNumber(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u, nil
	}
	if integerLiteral.MatchString(s) {
		return json.Number(s), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("%w: bad number %q", ErrInvalidData, s)
	}
	return f, nil
}

// IsNumber reports whether v is a normalized number.
func IsNumber(v any) bool {
	switch v.(type) {
	case int64, uint64, float64, json.Number:
		return true
	}
	return false
}

// FormatNumber returns the decimal form of a normalized number, without
// exponent or trailing zeros.
func FormatNumber(v any) string {
	switch t := v.(type) {
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return string(t)
	}
	return fmt.Sprint(v)
}

// CompareNumbers compares two normalized numbers by value.
func CompareNumbers(a, b any) int {
	return bigFloat(a).Cmp(bigFloat(b))
}

func bigFloat(v any) *big.Float {
	f := new(big.Float).SetPrec(512)
	switch t := v.(type) {
	case int64:
		f.SetInt64(t)
	case uint64:
		f.SetUint64(t)
	case float64:
		f.SetFloat64(t)
	case json.Number:
		f.SetString(string(t))
	}
	return f
}

// bigInt returns v as an integer, if it is one.
func bigInt(v any) (*big.Int, bool) {
	switch t := v.(type) {
	case int64:
		return big.NewInt(t), true
	case uint64:
		return new(big.Int).SetUint64(t), true
	case json.Number:
		return new(big.Int).SetString(string(t), 10)
	}
	return nil, false
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float64:
		return t
	case json.Number:
		f, _ := strconv.ParseFloat(string(t), 64)
		return f
	}
	return math.NaN()
}

// addNumber returns n plus or minus an unsigned decimal operand. Integer
// operands applied to integers are computed exactly.
func addNumber(n any, sign byte, operand string) (any, error) {
	if x, ok := bigInt(n); ok {
		if d, ok := new(big.Int).SetString(operand, 10); ok {
			if sign == '-' {
				d.Neg(d)
			}
			return ParseNumber(x.Add(x, d).String())
		}
	}
	d, err := strconv.ParseFloat(operand, 64)
	if err != nil || math.IsInf(d, 0) {
		return nil, fmt.Errorf("%w: operand %q is out of range", ErrInvalidIncrement, operand)
	}
	f := toFloat(n)
	if sign == '-' {
		f -= d
	} else {
		f += d
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("%w: result overflows", ErrInvalidIncrement)
	}
	return f, nil
}

// DecodeJSON parses a single JSON value keeping integers exact. Numbers are
// converted as by [ParseNumber]; nothing else is checked.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after the top level value")
	}
	return numbers(v)
}

// numbers replaces json.Number values in place.
func numbers(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		return ParseNumber(string(t))
	case map[string]any:
		for k, e := range t {
			n, err := numbers(e)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
	case []any:
		for i, e := range t {
			n, err := numbers(e)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
	}
	return v, nil
}
