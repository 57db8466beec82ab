// Package compiler expands template groups against the registered nodes and
// inspects the template rules.
package compiler

import (
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/rules"
	"github.com/John-Robertt/clashsub/internal/template"
)

type Result struct {
	Groups []model.Group
	Rules  []model.Rule

	// Warnings are rule problems that a client may trip over. They never
	// stop compilation.
	Warnings []*rules.Warning
}

type CompileError struct {
	AppError model.AppError
	Cause    error
}

func (e *CompileError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return model.FormatError(e.AppError, e.Cause)
}

func (e *CompileError) Unwrap() error { return e.Cause }

// Compile expands every template group. nodes must already carry their final
// unique names, in registry order.
func Compile(nodes []model.Node, tmpl *template.Template) (*Result, error) {
	if tmpl == nil {
		return nil, &CompileError{
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: "template 不能为空",
				Stage:   "compile",
			},
		}
	}

	names := lo.Map(nodes, func(n model.Node, _ int) string { return n.Name })

	// Group name namespace must not overlap node names.
	groupNames := tmpl.GroupNames()
	if clash := lo.Intersect(groupNames, names); len(clash) > 0 {
		return nil, &CompileError{
			AppError: model.AppError{
				Code:    "PROFILE_VALIDATE_ERROR",
				Message: fmt.Sprintf("策略组名与节点名冲突：%s", clash[0]),
				Stage:   "compile",
			},
		}
	}

	groups := make([]model.Group, 0, len(tmpl.Groups))
	claimed := make(map[string]struct{})
	for _, gs := range tmpl.Groups {
		groups = append(groups, expandGroup(gs, names, claimed))
	}

	out := make([]model.Rule, 0, len(tmpl.Rules))
	for _, line := range tmpl.Rules {
		r, err := rules.Parse(line)
		if err != nil {
			// kept verbatim; Check reports it
			r = model.Rule{Raw: line}
		}
		out = append(out, r)
	}

	return &Result{
		Groups:   groups,
		Rules:    out,
		Warnings: rules.Check(tmpl.Rules, groupNames),
	}, nil
}

// expandGroup fills gs with nodes. Nodes taken by an earlier exclusive group
// are in claimed and skipped by later exclusive groups.
func expandGroup(gs template.GroupSpec, names []string, claimed map[string]struct{}) model.Group {
	g := model.Group{Name: gs.Name, Type: gs.Type, AutoInclude: gs.AutoInclude()}
	if !g.AutoInclude {
		g.Members = slices.Clone(gs.Members)
		if g.Members == nil {
			g.Members = []string{}
		}
		return g
	}

	selected := names
	if gs.Filter != nil {
		selected = lo.Filter(names, func(name string, _ int) bool {
			if _, taken := claimed[name]; gs.Exclusive && taken {
				return false
			}
			return gs.Filter.MatchString(name)
		})
		if gs.Exclusive {
			for _, name := range selected {
				claimed[name] = struct{}{}
			}
		}
		// a filter that matches nothing falls back to the first node
		if len(selected) == 0 && len(names) > 0 {
			selected = names[:1]
		}
	}

	members := make([]string, 0, len(gs.Members)+len(selected))
	placed := false
	for _, m := range gs.Members {
		if m == template.AllToken {
			members = append(members, selected...)
			placed = true
			continue
		}
		members = append(members, m)
	}
	if !placed {
		members = append(members, selected...)
	}
	g.Members = lo.Uniq(members)
	return g
}
