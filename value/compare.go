package value

import (
	"fmt"
	"strings"
	"time"
)

// Layouts accepted when casting strings to dates and times.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
	TimeLayout     = "15:04:05"
)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	DateTimeLayout,
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	DateLayout,
	"2006/01/02",
	"20060102",
}

// ToTime coerces time.Time values and strings in the accepted layouts.
func ToTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateTimeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// Equals compares two values after coercing them to a common kind:
// numbers, then booleans, then times, then strings.
func Equals(a, b any) bool {
	if a == nil || b == nil {
		return IsEmpty(a) && IsEmpty(b)
	}
	if an, ok := ToNumber(a); ok {
		if bn, ok := ToNumber(b); ok {
			return CompareNumbers(an, bn) == 0
		}
	}
	if ab, ok := a.(bool); ok {
		bb, err := ToBool(b)
		return err == nil && ab == bb
	}
	if bb, ok := b.(bool); ok {
		ab, err := ToBool(a)
		return err == nil && ab == bb
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := ToTime(b); ok {
			return at.Equal(bt)
		}
	}
	if bt, ok := b.(time.Time); ok {
		if at, ok := ToTime(a); ok {
			return at.Equal(bt)
		}
	}
	return ToString(a) == ToString(b)
}

// Compare orders two values as numbers, times or strings. Nil sorts first.
func Compare(a, b any) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}
	if an, ok := ToNumber(a); ok {
		if bn, ok := ToNumber(b); ok {
			return CompareNumbers(an, bn), nil
		}
	}
	_, aIsTime := a.(time.Time)
	_, bIsTime := b.(time.Time)
	if aIsTime || bIsTime {
		at, aok := ToTime(a)
		bt, bok := ToTime(b)
		if !aok || !bok {
			return 0, fmt.Errorf("value: cannot compare %T with %T", a, b)
		}
		return at.Compare(bt), nil
	}
	return strings.Compare(ToString(a), ToString(b)), nil
}

// In reports whether v equals any element of candidates. A string holding
// comma separated values is treated as a list.
func In(v any, candidates any) bool {
	var list []any
	if s, ok := candidates.(string); ok {
		for _, part := range strings.Split(s, ",") {
			list = append(list, strings.TrimSpace(part))
		}
	} else if l, ok := ToList(candidates); ok {
		list = l
	} else if candidates != nil {
		list = []any{candidates}
	}
	for _, c := range list {
		if Equals(v, c) {
			return true
		}
	}
	return false
}
