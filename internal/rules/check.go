package rules

import (
	"errors"
	"fmt"

	"github.com/John-Robertt/clashsub/internal/model"
)

// Warning describes a rule line that a client may reject or that routes to
// nowhere. Warnings never stop generation.
type Warning struct {
	AppError model.AppError
	Cause    error
}

func (w *Warning) Error() string {
	if w == nil {
		return "<nil>"
	}
	return model.FormatError(w.AppError, w.Cause)
}

func (w *Warning) Unwrap() error { return w.Cause }

// Check inspects template rule lines against the known group names. Line
// numbers in the warnings are 1-based indexes into lines.
func Check(lines []string, groupNames []string) []*Warning {
	groups := make(map[string]struct{}, len(groupNames))
	for _, g := range groupNames {
		groups[g] = struct{}{}
	}

	var out []*Warning
	warn := func(i int, line, code, msg string, cause error) {
		out = append(out, &Warning{
			AppError: model.AppError{
				Code:    code,
				Message: msg,
				Stage:   "check_rules",
				Line:    i,
				Snippet: model.Snippet(line, 200),
			},
			Cause: cause,
		})
	}

	matchAt := 0
	for i, line := range lines {
		r, err := Parse(line)
		if err != nil {
			code := "RULE_PARSE_ERROR"
			msg := "规则无法解析"
			var re *RuleError
			if errors.As(err, &re) {
				code, msg = re.Code, re.Message
			}
			warn(i+1, line, code, msg, err)
			continue
		}
		if r.Type == "MATCH" {
			if matchAt != 0 {
				warn(i+1, line, "RULE_MATCH_DUPLICATE", "存在多条 MATCH 规则", nil)
			}
			matchAt = i + 1
		}
		if _, ok := builtinPolicies[r.Policy]; ok {
			continue
		}
		if _, ok := groups[r.Policy]; !ok {
			warn(i+1, line, "REFERENCE_NOT_FOUND", fmt.Sprintf("规则策略引用不存在：%s", r.Policy), nil)
		}
	}

	switch {
	case matchAt == 0:
		warn(0, "", "RULE_MATCH_MISSING", "缺少兜底规则 MATCH", nil)
	case matchAt != len(lines):
		warn(matchAt, lines[matchAt-1], "RULE_MATCH_NOT_LAST", "兜底规则 MATCH 必须是最后一条", nil)
	}
	return out
}
