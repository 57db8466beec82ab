package render

import "github.com/John-Robertt/clashsub/internal/model"

// classicRuleTypes are the rule types classic Clash accepts. Clash Meta
// accepts these and many more, so it has no list.
var classicRuleTypes = map[string]struct{}{
	"DOMAIN":         {},
	"DOMAIN-SUFFIX":  {},
	"DOMAIN-KEYWORD": {},
	"GEOIP":          {},
	"IP-CIDR":        {},
	"IP-CIDR6":       {},
	"SRC-IP-CIDR":    {},
	"SRC-PORT":       {},
	"DST-PORT":       {},
	"PROCESS-NAME":   {},
	"PROCESS-PATH":   {},
	"RULE-SET":       {},
	"SCRIPT":         {},
	"MATCH":          {},
}

// AllowedRuleTypes returns the rule type allow-list for target, or nil when the
// target has no restriction.
func AllowedRuleTypes(target Target) map[string]struct{} {
	if target == TargetClash {
		return classicRuleTypes
	}
	return nil
}

// UnsupportedRules returns the parsed rules whose type target does not know.
// Rules are still emitted verbatim; callers report these as warnings.
func UnsupportedRules(target Target, rules []model.Rule) []model.Rule {
	allowed := AllowedRuleTypes(target)
	if allowed == nil {
		return nil
	}
	var out []model.Rule
	for _, r := range rules {
		if r.Type == "" {
			continue
		}
		if _, ok := allowed[r.Type]; !ok {
			out = append(out, r)
		}
	}
	return out
}
