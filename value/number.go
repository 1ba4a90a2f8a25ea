package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number is an integer or floating point value. Integer arithmetic stays
// integral until a float operand or a division forces floating point.
type Number struct {
	i     int64
	f     float64
	isInt bool
}

// Int builds an integral Number.
func Int(i int64) Number { return Number{i: i, f: float64(i), isInt: true} }

// Float builds a floating point Number.
func Float(f float64) Number { return Number{f: f} }

// IsZero reports whether the number equals zero.
func (n Number) IsZero() bool { return n.Float() == 0 }

// Float returns the number as float64.
func (n Number) Float() float64 {
	if n.isInt {
		return float64(n.i)
	}
	return n.f
}

// Value returns int64 for integral numbers and float64 otherwise.
func (n Number) Value() any {
	if n.isInt {
		return n.i
	}
	if n.f == math.Trunc(n.f) && math.Abs(n.f) < 1<<53 {
		return int64(n.f)
	}
	return n.f
}

// ToNumber coerces Go numeric kinds and numeric strings.
func ToNumber(v any) (Number, bool) {
	switch t := v.(type) {
	case int:
		return Int(int64(t)), true
	case int8:
		return Int(int64(t)), true
	case int16:
		return Int(int64(t)), true
	case int32:
		return Int(int64(t)), true
	case int64:
		return Int(t), true
	case uint:
		return Int(int64(t)), true
	case uint8:
		return Int(int64(t)), true
	case uint16:
		return Int(int64(t)), true
	case uint32:
		return Int(int64(t)), true
	case uint64:
		return Int(int64(t)), true
	case float32:
		return Float(float64(t)), true
	case float64:
		return Float(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return Number{}, false
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float(f), true
		}
	}
	return Number{}, false
}

// MustNumber coerces v or returns an error naming the operation.
func MustNumber(op string, v any) (Number, error) {
	if v == nil {
		return Int(0), nil
	}
	n, ok := ToNumber(v)
	if !ok {
		return Number{}, fmt.Errorf("value: %s requires a number, got %T(%v)", op, v, v)
	}
	return n, nil
}

// Add returns a + b.
func Add(a, b Number) Number {
	if a.isInt && b.isInt {
		return Int(a.i + b.i)
	}
	return Float(a.Float() + b.Float())
}

// Subtract returns a - b.
func Subtract(a, b Number) Number {
	if a.isInt && b.isInt {
		return Int(a.i - b.i)
	}
	return Float(a.Float() - b.Float())
}

// Multiply returns a * b.
func Multiply(a, b Number) Number {
	if a.isInt && b.isInt {
		return Int(a.i * b.i)
	}
	return Float(a.Float() * b.Float())
}

// Divide returns a / b, failing on division by zero.
func Divide(a, b Number) (Number, error) {
	if b.IsZero() {
		return Number{}, fmt.Errorf("value: division by zero")
	}
	return Float(a.Float() / b.Float()), nil
}

// Modulus returns a mod b, failing on a zero divisor.
func Modulus(a, b Number) (Number, error) {
	if b.IsZero() {
		return Number{}, fmt.Errorf("value: modulus by zero")
	}
	if a.isInt && b.isInt {
		return Int(a.i % b.i), nil
	}
	return Float(math.Mod(a.Float(), b.Float())), nil
}

// CompareNumbers returns -1, 0 or 1.
func CompareNumbers(a, b Number) int {
	if a.isInt && b.isInt {
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		}
		return 0
	}
	af, bf := a.Float(), b.Float()
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}
