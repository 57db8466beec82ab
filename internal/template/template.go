// Package template loads a Clash configuration template and renders nodes and
// expanded groups into it.
//
// The template is kept as raw bytes and re-parsed into a yaml.Node tree for
// every render, so key order, comments and keys this package does not know
// about survive, and the template itself is never mutated.
package template

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/clashsub/internal/model"
)

// AllToken in a group's member list expands to every node (or every node the
// group's filter matches).
const AllToken = "@all"

const (
	keyProxies     = "proxies"
	keyProxyGroups = "proxy-groups"
	keyRules       = "rules"
	keyName        = "name"
	keyType        = "type"
	keyFilter      = "filter"
	keyIncludeAll  = "include-all"
	keyExclusive   = "exclusive"
)

//go:embed default.yaml
var defaultYAML []byte

// GroupSpec is a template proxy group before expansion.
type GroupSpec struct {
	Name string
	Type string

	// Members is the literal member list, possibly containing AllToken.
	Members []string

	// IncludeAll is set by "include-all: true".
	IncludeAll bool

	// Filter selects nodes by name. Nil when the group has no filter.
	Filter *regexp.Regexp

	// Exclusive filter groups share their nodes: a node goes to the first
	// exclusive group, in template order, whose filter matches it.
	Exclusive bool
}

// AutoInclude reports whether the group receives nodes.
func (g GroupSpec) AutoInclude() bool {
	if g.IncludeAll || g.Filter != nil {
		return true
	}
	for _, m := range g.Members {
		if m == AllToken {
			return true
		}
	}
	return false
}

type Template struct {
	URL    string
	Groups []GroupSpec
	Rules  []string

	src []byte
}

// Field is an extra top-level key for Render.
type Field struct {
	Key   string
	Value any
}

// Default returns the built-in template.
func Default() *Template {
	t, err := Parse("builtin:default", defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("template: builtin default is invalid: %v", err))
	}
	return t
}

// Parse validates a template. A document without a non-empty proxy-groups or
// rules sequence is rejected with a *TemplateError.
func Parse(sourceURL string, data []byte) (*Template, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, newTemplateError(sourceURL, "INVALID_ARGUMENT", "template 不能为空", "", nil)
	}
	root, err := decode(data)
	if err != nil {
		return nil, newTemplateError(sourceURL, "TEMPLATE_PARSE_ERROR", "template YAML 解析失败", "", err)
	}
	if root.Kind != yaml.MappingNode {
		return nil, newTemplateError(sourceURL, "TEMPLATE_PARSE_ERROR", "template 顶层必须是映射", "", nil)
	}

	t := &Template{URL: sourceURL, src: append([]byte(nil), data...)}

	if v := mapGet(root, keyProxies); v != nil && v.Kind != yaml.SequenceNode && v.Tag != "!!null" {
		return nil, newTemplateError(sourceURL, "TEMPLATE_SECTION_ERROR", "proxies 必须是列表", "", nil)
	}

	groups := mapGet(root, keyProxyGroups)
	if groups == nil || groups.Kind != yaml.SequenceNode || len(groups.Content) == 0 {
		return nil, newTemplateError(sourceURL, "TEMPLATE_SECTION_ERROR", "template 缺少 proxy-groups", "", nil)
	}
	seen := make(map[string]struct{}, len(groups.Content))
	for i, g := range groups.Content {
		spec, err := parseGroup(g)
		if err != nil {
			return nil, newTemplateError(sourceURL, "TEMPLATE_GROUP_INVALID",
				fmt.Sprintf("第 %d 个策略组不合法", i+1), spec.Name, err)
		}
		if _, ok := seen[spec.Name]; ok {
			return nil, newTemplateError(sourceURL, "TEMPLATE_GROUP_INVALID",
				fmt.Sprintf("策略组名重复：%s", spec.Name), spec.Name, nil)
		}
		seen[spec.Name] = struct{}{}
		t.Groups = append(t.Groups, spec)
	}

	rules := mapGet(root, keyRules)
	if rules == nil || rules.Kind != yaml.SequenceNode || len(rules.Content) == 0 {
		return nil, newTemplateError(sourceURL, "TEMPLATE_SECTION_ERROR", "template 缺少 rules", "", nil)
	}
	for _, r := range rules.Content {
		if r.Kind != yaml.ScalarNode {
			return nil, newTemplateError(sourceURL, "TEMPLATE_SECTION_ERROR", "rules 只能包含字符串", "", nil)
		}
		t.Rules = append(t.Rules, r.Value)
	}
	return t, nil
}

func parseGroup(n *yaml.Node) (GroupSpec, error) {
	var spec GroupSpec
	if n.Kind != yaml.MappingNode {
		return spec, errors.New("group must be a mapping")
	}
	if v := mapGet(n, keyName); v != nil && v.Kind == yaml.ScalarNode {
		spec.Name = strings.TrimSpace(v.Value)
	}
	if spec.Name == "" {
		return spec, errors.New("group name is empty")
	}
	if v := mapGet(n, keyType); v != nil && v.Kind == yaml.ScalarNode {
		spec.Type = strings.TrimSpace(v.Value)
	}
	if spec.Type == "" {
		return spec, errors.New("group type is empty")
	}

	if v := mapGet(n, keyProxies); v != nil {
		switch {
		case v.Kind == yaml.SequenceNode:
			for _, m := range v.Content {
				if m.Kind != yaml.ScalarNode {
					return spec, errors.New("group proxies must be strings")
				}
				spec.Members = append(spec.Members, m.Value)
			}
		case v.Tag == "!!null":
		default:
			return spec, errors.New("group proxies must be a list")
		}
	}
	if v := mapGet(n, keyIncludeAll); v != nil {
		if err := v.Decode(&spec.IncludeAll); err != nil {
			return spec, fmt.Errorf("include-all: %w", err)
		}
	}
	if v := mapGet(n, keyFilter); v != nil {
		expr := strings.TrimSpace(v.Value)
		if v.Kind != yaml.ScalarNode || expr == "" {
			return spec, errors.New("filter must be a non-empty string")
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return spec, fmt.Errorf("filter: %w", err)
		}
		spec.Filter = re
	}
	if v := mapGet(n, keyExclusive); v != nil {
		if err := v.Decode(&spec.Exclusive); err != nil {
			return spec, fmt.Errorf("exclusive: %w", err)
		}
		if spec.Exclusive && spec.Filter == nil {
			return spec, errors.New("exclusive requires filter")
		}
	}
	return spec, nil
}

// GroupNames returns the group names in template order.
func (t *Template) GroupNames() []string {
	out := make([]string, len(t.Groups))
	for i, g := range t.Groups {
		out[i] = g.Name
	}
	return out
}

// Render produces the final document: the top-level proxies list is replaced
// with proxies, each group's member list with the expanded one from groups,
// marker keys are removed and rules are left untouched. Extra fields are only
// added when the template does not define the key.
func (t *Template) Render(proxies any, groups []model.Group, extra ...Field) ([]byte, error) {
	doc, err := decodeDocument(t.src)
	if err != nil {
		return nil, newTemplateError(t.URL, "TEMPLATE_PARSE_ERROR", "template YAML 解析失败", "", err)
	}
	root := doc.Content[0]

	var proxiesNode yaml.Node
	if err := proxiesNode.Encode(proxies); err != nil {
		return nil, fmt.Errorf("encode proxies: %w", err)
	}
	if proxiesNode.Kind != yaml.SequenceNode {
		proxiesNode = yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	}
	// An empty list is written in flow style so the key stays a list.
	if len(proxiesNode.Content) == 0 {
		proxiesNode.Style = yaml.FlowStyle
	}
	mapSet(root, keyProxies, &proxiesNode)

	members := make(map[string][]string, len(groups))
	for _, g := range groups {
		members[g.Name] = g.Members
	}
	for _, g := range mapGet(root, keyProxyGroups).Content {
		name := strings.TrimSpace(mapGet(g, keyName).Value)
		m, ok := members[name]
		if !ok {
			continue
		}
		seq, err := stringSeq(m)
		if err != nil {
			return nil, err
		}
		mapSet(g, keyProxies, seq)
		mapDelete(g, keyFilter)
		mapDelete(g, keyIncludeAll)
		mapDelete(g, keyExclusive)
	}

	for _, f := range extra {
		if mapGet(root, f.Key) != nil {
			continue
		}
		var v yaml.Node
		if err := v.Encode(f.Value); err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.Key, err)
		}
		mapSet(root, f.Key, &v)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func stringSeq(items []string) (*yaml.Node, error) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, s := range items {
		var n yaml.Node
		if err := n.Encode(s); err != nil {
			return nil, err
		}
		seq.Content = append(seq.Content, &n)
	}
	if len(seq.Content) == 0 {
		seq.Style = yaml.FlowStyle
	}
	return seq, nil
}

func decodeDocument(data []byte) (yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return doc, errors.New("empty yaml document")
	}
	return doc, nil
}

func decode(data []byte) (*yaml.Node, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	return doc.Content[0], nil
}

func mapGet(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func mapSet(m *yaml.Node, key string, v *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = v
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		v,
	)
}

func mapDelete(m *yaml.Node, key string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return
		}
	}
}
