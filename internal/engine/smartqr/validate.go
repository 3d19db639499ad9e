package smartqr

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ConfigError lists every problem found while building a config.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid smart QR config: " + strings.Join(e.Problems, "; ")
}

// ValidateConfig performs the construction-time checks. A config that passes
// can always be resolved without errors caused by its own shape.
func ValidateConfig(cfg MultiURLConfig) error {
	var problems []string

	if cfg.DefaultURL == "" {
		problems = append(problems, "defaultUrl is required")
	} else if err := validateURL(cfg.DefaultURL); err != nil {
		problems = append(problems, fmt.Sprintf("defaultUrl: %v", err))
	}

	seen := make(map[string]bool, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		label := fmt.Sprintf("rule %d", i)
		if rule.ID == "" {
			problems = append(problems, label+": id is required")
		} else {
			label = fmt.Sprintf("rule %q", rule.ID)
			if seen[rule.ID] {
				problems = append(problems, label+": duplicate id")
			}
			seen[rule.ID] = true
		}

		for j, cond := range rule.Conditions {
			if err := validateCondition(cond); err != nil {
				problems = append(problems, fmt.Sprintf("%s: condition %d: %v", label, j, err))
			}
		}
		for _, p := range validateAction(rule.Action) {
			problems = append(problems, fmt.Sprintf("%s: action: %s", label, p))
		}
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

func validateCondition(cond Condition) error {
	numericField := cond.Type == ConditionTime

	switch cond.Type {
	case ConditionDevice, ConditionLocation, ConditionTime, ConditionLanguage, ConditionReferrer, ConditionUserAgent:
	default:
		return fmt.Errorf("unknown condition type %q", cond.Type)
	}

	v := cond.Value
	switch cond.Operator {
	case OpEquals:
		if numericField && v.Kind() != KindNumber {
			return errors.New("equals on time needs a numeric hour")
		}
		if !numericField && v.Kind() != KindString {
			return errors.New("equals needs a string value")
		}
	case OpContains, OpStartsWith, OpEndsWith:
		if v.Kind() != KindString && v.Kind() != KindNumber {
			return fmt.Errorf("%s needs a scalar value", cond.Operator)
		}
	case OpIn:
		if numericField && v.Kind() != KindNumbers {
			return errors.New("in on time needs a numeric array")
		}
		if !numericField && v.Kind() != KindStrings {
			return errors.New("in needs a string array")
		}
	case OpBetween:
		if !numericField {
			return fmt.Errorf("between is only supported for numeric fields, not %q", cond.Type)
		}
		if v.Kind() != KindNumbers || len(v.numbers) != 2 {
			return errors.New("between needs a 2-element numeric range")
		}
	default:
		return fmt.Errorf("unknown operator %q", cond.Operator)
	}
	return nil
}

func validateAction(a Action) []string {
	var problems []string
	switch a.Type {
	case ActionRedirect:
		if a.Split != nil {
			if err := ValidateSplit(a.Split.URLs, a.Split.Weights); err != nil {
				var cfgErr *ConfigError
				if errors.As(err, &cfgErr) {
					problems = append(problems, cfgErr.Problems...)
				}
			}
		} else if err := validateURL(a.Value); err != nil {
			problems = append(problems, err.Error())
		}
	case ActionContent:
		if a.Value == "" {
			problems = append(problems, "content reference is required")
		}
	case ActionAPICall:
		if err := validateURL(a.Value); err != nil {
			problems = append(problems, err.Error())
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown action type %q", a.Type))
	}
	return problems
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must start with http:// or https://", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}
