// Package rules inspects Clash rule lines. Rules are always emitted verbatim;
// this package only extracts their policy target and reports suspicious
// lines as warnings.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/clashsub/internal/model"
)

// builtinPolicies are valid rule targets without a matching group.
var builtinPolicies = map[string]struct{}{
	"DIRECT":      {},
	"REJECT":      {},
	"REJECT-DROP": {},
	"PASS":        {},
	"COMPATIBLE":  {},
}

// options that may trail the policy.
var trailingOptions = map[string]struct{}{
	"no-resolve": {},
	"src":        {},
}

type RuleError struct {
	Code    string
	Message string
	Hint    string
	Cause   error
}

func (e *RuleError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *RuleError) Unwrap() error { return e.Cause }

// Parse splits a rule line into its type and policy.
func Parse(line string) (model.Rule, error) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	if line == "" {
		return model.Rule{}, &RuleError{Code: "RULE_PARSE_ERROR", Message: "规则为空"}
	}
	parts, err := split(line)
	if err != nil {
		return model.Rule{}, &RuleError{Code: "RULE_PARSE_ERROR", Message: "规则括号不匹配", Cause: err}
	}
	typ := strings.ToUpper(parts[0])
	if typ == "" {
		return model.Rule{}, &RuleError{Code: "RULE_PARSE_ERROR", Message: "规则类型不能为空"}
	}

	switch typ {
	case "MATCH", "FINAL":
		if len(parts) != 2 || parts[1] == "" {
			return model.Rule{}, &RuleError{
				Code:    "RULE_PARSE_ERROR",
				Message: "MATCH 规则必须是 MATCH,<POLICY>",
			}
		}
		return model.Rule{Raw: line, Type: "MATCH", Policy: parts[1]}, nil
	}

	if len(parts) < 3 {
		return model.Rule{}, &RuleError{
			Code:    "RULE_PARSE_ERROR",
			Message: "规则字段数量不合法",
			Hint:    "expected: TYPE,VALUE,POLICY[,no-resolve]",
		}
	}
	for _, opt := range parts[3:] {
		if _, ok := trailingOptions[strings.ToLower(opt)]; !ok {
			return model.Rule{}, &RuleError{
				Code:    "RULE_PARSE_ERROR",
				Message: fmt.Sprintf("不支持的规则选项：%s", opt),
				Hint:    "expected: TYPE,VALUE,POLICY[,no-resolve]",
			}
		}
	}
	if parts[1] == "" || parts[2] == "" {
		return model.Rule{}, &RuleError{Code: "RULE_PARSE_ERROR", Message: "规则 VALUE/POLICY 不能为空"}
	}
	if _, ok := trailingOptions[strings.ToLower(parts[2])]; ok {
		return model.Rule{}, &RuleError{
			Code:    "RULE_PARSE_ERROR",
			Message: "规则缺少 POLICY（不允许仅写 no-resolve）",
		}
	}
	return model.Rule{Raw: line, Type: typ, Policy: parts[2]}, nil
}

// Policy returns the policy target of a rule line.
func Policy(line string) (string, error) {
	r, err := Parse(line)
	if err != nil {
		return "", err
	}
	return r.Policy, nil
}

// split cuts line at top-level commas. Commas inside parentheses (logical
// rules such as AND,((DOMAIN,a.com),(NETWORK,UDP)),REJECT) are kept.
func split(line string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, errors.New("unbalanced ')'")
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(line[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, errors.New("unbalanced '('")
	}
	return append(parts, strings.TrimSpace(line[start:])), nil
}
