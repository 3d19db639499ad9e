package smartqr

import (
	"strconv"
	"strings"

	"smartqr/internal/engine/scancontext"
)

// fieldValue is the scan-context value a condition type compares against.
type fieldValue struct {
	numeric bool
	str     string
	num     float64
}

func (f fieldValue) text() string {
	if f.numeric {
		return formatNumber(f.num)
	}
	return f.str
}

func contextField(t ConditionType, sc scancontext.ScanContext) (fieldValue, bool) {
	switch t {
	case ConditionDevice:
		return fieldValue{str: sc.Device.Type}, true
	case ConditionLocation:
		return fieldValue{str: sc.Location.Country}, true
	case ConditionTime:
		return fieldValue{numeric: true, num: float64(sc.LocalTime().Hour())}, true
	case ConditionLanguage:
		return fieldValue{str: sc.Location.Language}, true
	case ConditionReferrer:
		return fieldValue{str: sc.Referrer}, true
	case ConditionUserAgent:
		return fieldValue{str: sc.Device.RawUserAgent}, true
	default:
		return fieldValue{}, false
	}
}

// EvaluateCondition reports whether a single condition holds for the scan.
// Unknown types, unknown operators and mismatched value shapes never match.
func EvaluateCondition(cond Condition, sc scancontext.ScanContext) bool {
	field, ok := contextField(cond.Type, sc)
	if !ok {
		return false
	}
	v := cond.Value

	switch cond.Operator {
	case OpEquals:
		if field.numeric {
			return v.kind == KindNumber && v.num == field.num
		}
		return v.kind == KindString && v.str == field.str

	case OpContains, OpStartsWith, OpEndsWith:
		needle, ok := scalarText(v)
		if !ok {
			return false
		}
		haystack := strings.ToLower(field.text())
		needle = strings.ToLower(needle)
		switch cond.Operator {
		case OpContains:
			return strings.Contains(haystack, needle)
		case OpStartsWith:
			return strings.HasPrefix(haystack, needle)
		default:
			return strings.HasSuffix(haystack, needle)
		}

	case OpIn:
		switch {
		case !field.numeric && v.kind == KindStrings:
			for _, s := range v.strs {
				if s == field.str {
					return true
				}
			}
		case field.numeric && v.kind == KindNumbers:
			for _, n := range v.numbers {
				if n == field.num {
					return true
				}
			}
		}
		return false

	case OpBetween:
		if !field.numeric || v.kind != KindNumbers || len(v.numbers) != 2 {
			return false
		}
		return field.num >= v.numbers[0] && field.num <= v.numbers[1]

	default:
		return false
	}
}

func scalarText(v ConditionValue) (string, bool) {
	switch v.kind {
	case KindString:
		return v.str, true
	case KindNumber:
		return formatNumber(v.num), true
	default:
		return "", false
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
