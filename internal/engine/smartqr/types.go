package smartqr

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

type ConditionType string

const (
	ConditionDevice    ConditionType = "device"
	ConditionLocation  ConditionType = "location"
	ConditionTime      ConditionType = "time"
	ConditionLanguage  ConditionType = "language"
	ConditionReferrer  ConditionType = "referrer"
	ConditionUserAgent ConditionType = "user_agent"
)

type Operator string

const (
	OpEquals     Operator = "equals"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
	OpIn         Operator = "in"
	OpBetween    Operator = "between"
)

type ActionType string

const (
	ActionRedirect ActionType = "redirect"
	ActionContent  ActionType = "content"
	ActionAPICall  ActionType = "api_call"
)

// ValueKind tags the variant held by a ConditionValue.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindString
	KindNumber
	KindStrings
	KindNumbers
)

// ConditionValue is one of: string, number, []string, []number.
type ConditionValue struct {
	kind    ValueKind
	str     string
	num     float64
	strs    []string
	numbers []float64
}

func StringValue(s string) ConditionValue {
	return ConditionValue{kind: KindString, str: s}
}

func NumberValue(n float64) ConditionValue {
	return ConditionValue{kind: KindNumber, num: n}
}

func StringsValue(s ...string) ConditionValue {
	return ConditionValue{kind: KindStrings, strs: append([]string(nil), s...)}
}

func NumbersValue(n ...float64) ConditionValue {
	return ConditionValue{kind: KindNumbers, numbers: append([]float64(nil), n...)}
}

func (v ConditionValue) Kind() ValueKind { return v.kind }

func (v ConditionValue) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return formatNumber(v.num)
	case KindStrings:
		return fmt.Sprint(v.strs)
	case KindNumbers:
		return fmt.Sprint(v.numbers)
	default:
		return ""
	}
}

func (v ConditionValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindStrings:
		return json.Marshal(v.strs)
	case KindNumbers:
		return json.Marshal(v.numbers)
	default:
		return []byte("null"), nil
	}
}

func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = ConditionValue{}

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if len(raw) == 0 {
			*v = StringsValue()
			return nil
		}
		if first := bytes.TrimSpace(raw[0]); len(first) > 0 && first[0] == '"' {
			var strs []string
			if err := json.Unmarshal(data, &strs); err != nil {
				return errors.New("condition value: mixed array element types")
			}
			*v = StringsValue(strs...)
			return nil
		}
		var nums []float64
		if err := json.Unmarshal(data, &nums); err != nil {
			return errors.New("condition value: array must hold only strings or only numbers")
		}
		*v = NumbersValue(nums...)
		return nil
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("condition value: unsupported JSON %s", string(data))
		}
		*v = NumberValue(n)
		return nil
	}
}

type Condition struct {
	Type     ConditionType  `json:"type"`
	Operator Operator       `json:"operator"`
	Value    ConditionValue `json:"value"`
}

// TrafficSplit spreads a redirect across weighted URL variants.
type TrafficSplit struct {
	URLs    []string  `json:"urls"`
	Weights []float64 `json:"trafficWeights"`
}

type Action struct {
	Type     ActionType        `json:"type"`
	Value    string            `json:"value"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Split    *TrafficSplit     `json:"split,omitempty"`
}

type Rule struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Priority   int         `json:"priority"`
	Conditions []Condition `json:"conditions"`
	Action     Action      `json:"action"`
	Enabled    bool        `json:"enabled"`
}

type Analytics struct {
	TrackingEnabled bool     `json:"trackingEnabled"`
	ConversionGoals []string `json:"conversionGoals,omitempty"`
}

// MultiURLConfig is the routing configuration of one QR code.
type MultiURLConfig struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	DefaultURL  string    `json:"defaultUrl"`
	Rules       []Rule    `json:"rules"`
	Analytics   Analytics `json:"analytics"`
}

// Value implements the driver.Valuer interface for MultiURLConfig
func (c MultiURLConfig) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for MultiURLConfig
func (c *MultiURLConfig) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return errors.New("type assertion to []byte failed")
	}
}
