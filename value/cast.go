package value

import (
	"fmt"
	"strings"
	"time"
)

// Factor type families as declared on topic factors.
const (
	KindText     = "text"
	KindNumber   = "number"
	KindUnsigned = "unsigned"
	KindSequence = "sequence"
	KindBoolean  = "boolean"
	KindDate     = "date"
	KindDateTime = "datetime"
	KindFullTime = "full-datetime"
	KindTime     = "time"
	KindObject   = "object"
	KindArray    = "array"
	KindEnum     = "enum"
)

// CastForFactor converts v to the storage representation of a factor type.
// Nil and empty strings cast to nil; unknown types keep the value.
func CastForFactor(kind string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" && kind != KindText {
		return nil, nil
	}
	switch kind {
	case KindNumber:
		n, ok := ToNumber(v)
		if !ok {
			return nil, fmt.Errorf("value: cannot cast %v to number", v)
		}
		return n.Value(), nil
	case KindUnsigned, KindSequence:
		n, ok := ToNumber(v)
		if !ok || n.Float() < 0 {
			return nil, fmt.Errorf("value: cannot cast %v to unsigned number", v)
		}
		return n.Value(), nil
	case KindBoolean:
		return ToBool(v)
	case KindDate:
		t, ok := ToTime(v)
		if !ok {
			return nil, fmt.Errorf("value: cannot cast %v to date", v)
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()), nil
	case KindDateTime, KindFullTime:
		t, ok := ToTime(v)
		if !ok {
			return nil, fmt.Errorf("value: cannot cast %v to datetime", v)
		}
		if kind == KindDateTime {
			t = t.Truncate(time.Second)
		}
		return t, nil
	case KindTime:
		if t, ok := ToTime(v); ok {
			return t.Format(TimeLayout), nil
		}
		s := ToString(v)
		if _, err := time.Parse(TimeLayout, s); err != nil {
			return nil, fmt.Errorf("value: cannot cast %v to time", v)
		}
		return s, nil
	case KindText, KindEnum:
		return ToString(v), nil
	}
	return v, nil
}
