package smartqr

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"smartqr/internal/engine/scancontext"
)

// Resolution is the outcome of routing one scan. Fallback is set whenever the
// config's default URL was used; Err explains a degraded fallback and is nil
// when simply no rule matched.
type Resolution struct {
	URL      string
	RuleID   string
	Action   ActionType
	Fallback bool
	Err      error
}

type Engine struct {
	extractor *scancontext.Extractor
	caller    APICaller
	selector  *VariantSelector
}

func NewEngine(extractor *scancontext.Extractor, caller APICaller, selector *VariantSelector) *Engine {
	if extractor == nil {
		extractor = scancontext.NewExtractor(nil, scancontext.Options{})
	}
	if caller == nil {
		caller = NewHTTPAPICaller(0)
	}
	if selector == nil {
		selector = NewVariantSelector(nil)
	}
	return &Engine{extractor: extractor, caller: caller, selector: selector}
}

// Resolve builds the scan context from raw signals and routes the scan.
// It never fails: every error path ends at cfg.DefaultURL.
func (e *Engine) Resolve(ctx context.Context, cfg MultiURLConfig, sig scancontext.RawSignals) (res Resolution) {
	defer func() {
		if r := recover(); r != nil {
			res = fallback(cfg, fmt.Errorf("resolve panicked: %v", r))
			log.Error().Str("config_id", cfg.ID).Interface("panic", r).Msg("recovered from panic in Resolve")
		}
	}()

	sc, err := e.extractor.Extract(ctx, sig)
	if err != nil {
		log.Debug().Err(err).Str("config_id", cfg.ID).Msg("scan location unresolved")
	}
	return e.ResolveContext(ctx, cfg, sc)
}

// ResolveContext routes a scan whose context was already extracted.
func (e *Engine) ResolveContext(ctx context.Context, cfg MultiURLConfig, sc scancontext.ScanContext) (res Resolution) {
	defer func() {
		if r := recover(); r != nil {
			res = fallback(cfg, fmt.Errorf("rule evaluation panicked: %v", r))
			log.Error().Str("config_id", cfg.ID).Interface("panic", r).Msg("recovered from panic in ResolveContext")
		}
	}()

	rule, ok := MatchRule(cfg.Rules, sc)
	if !ok {
		return fallback(cfg, nil)
	}

	switch rule.Action.Type {
	case ActionRedirect:
		target := rule.Action.Value
		if split := rule.Action.Split; split != nil && len(split.URLs) > 0 {
			target = e.selector.Select(split.URLs, split.Weights)
		}
		if target == "" {
			return fallback(cfg, fmt.Errorf("rule %s has an empty redirect target", rule.ID))
		}
		return Resolution{URL: target, RuleID: rule.ID, Action: ActionRedirect}

	case ActionContent:
		return Resolution{URL: ContentPath(cfg.ID, rule.ID), RuleID: rule.ID, Action: ActionContent}

	case ActionAPICall:
		target, err := e.caller.Call(ctx, rule.Action.Value, APICallPayload{
			ConfigID: cfg.ID,
			RuleID:   rule.ID,
			Context:  sc,
			Metadata: rule.Action.Metadata,
		})
		if err != nil {
			log.Warn().Err(err).Str("config_id", cfg.ID).Str("rule_id", rule.ID).Msg("api_call action failed, using default url")
			res := fallback(cfg, err)
			res.RuleID = rule.ID
			res.Action = ActionAPICall
			return res
		}
		return Resolution{URL: target, RuleID: rule.ID, Action: ActionAPICall}

	default:
		return fallback(cfg, fmt.Errorf("rule %s has unknown action type %q", rule.ID, rule.Action.Type))
	}
}

// MatchRule returns the first enabled rule, by descending priority, whose
// conditions all hold. Equal priorities keep their configured order.
func MatchRule(rules []Rule, sc scancontext.ScanContext) (Rule, bool) {
	for _, rule := range SortRules(rules) {
		if !rule.Enabled {
			continue
		}
		if ruleMatches(rule, sc) {
			return rule, true
		}
	}
	return Rule{}, false
}

// SortRules returns a copy of rules ordered by priority, highest first.
func SortRules(rules []Rule) []Rule {
	ordered := append([]Rule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return ordered
}

func ruleMatches(rule Rule, sc scancontext.ScanContext) bool {
	for _, cond := range rule.Conditions {
		if !EvaluateCondition(cond, sc) {
			return false
		}
	}
	return true
}

// ContentPath is the internal reference served for content actions.
func ContentPath(configID, ruleID string) string {
	return fmt.Sprintf("/content/%s/%s", configID, ruleID)
}

func fallback(cfg MultiURLConfig, err error) Resolution {
	return Resolution{URL: cfg.DefaultURL, Fallback: true, Err: err}
}
