// Package registry holds the ordered, uniquely named node set of one run.
//
// Nodes are added in arrival order during the write phase; after Freeze the
// registry is read-only.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"unicode"

	"github.com/John-Robertt/clashsub/internal/model"
)

var (
	ErrDuplicate = errors.New("duplicate node")
	ErrFrozen    = errors.New("registry is frozen")
)

// builtin policies can never be used as node names.
var builtin = []string{"DIRECT", "REJECT"}

type Options struct {
	// Reserved names (typically the template's group names) that nodes must not
	// take.
	Reserved []string

	// DropDuplicates drops a node whose endpoint, credential and params equal an
	// earlier node's. Names are ignored for this check.
	DropDuplicates bool
}

type Error struct {
	AppError model.AppError
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return model.FormatError(e.AppError, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

type Registry struct {
	opt      Options
	nodes    []model.Node
	used     map[string]struct{}
	reserved map[string]struct{}
	seen     map[string]string // identity -> final name
	frozen   bool
}

func New(opt Options) *Registry {
	r := &Registry{
		opt:      opt,
		used:     make(map[string]struct{}),
		reserved: make(map[string]struct{}),
		seen:     make(map[string]string),
	}
	for _, name := range append(append([]string(nil), builtin...), opt.Reserved...) {
		if name = strings.TrimSpace(name); name != "" {
			r.reserved[name] = struct{}{}
		}
	}
	return r
}

// Add validates n, assigns its final unique name and appends it. The stored
// node is returned.
func (r *Registry) Add(n model.Node) (model.Node, error) {
	if r.frozen {
		return model.Node{}, &Error{
			AppError: model.AppError{Code: "REGISTRY_FROZEN", Message: "节点表已冻结", Stage: "register"},
			Cause:    ErrFrozen,
		}
	}
	if err := n.Validate(); err != nil {
		return model.Node{}, &Error{
			AppError: model.AppError{
				Code:    "NODE_INVALID",
				Message: "节点字段不合法",
				Stage:   "register",
				Snippet: model.Snippet(n.Name, 200),
			},
			Cause: err,
		}
	}

	id := n.Identity()
	if prev, ok := r.seen[id]; ok && r.opt.DropDuplicates {
		return model.Node{}, &Error{
			AppError: model.AppError{
				Code:    "NODE_DUPLICATE",
				Message: fmt.Sprintf("重复节点已丢弃（与 %s 相同）", prev),
				Stage:   "register",
				Snippet: model.Snippet(n.Name, 200),
			},
			Cause: ErrDuplicate,
		}
	}

	n.Params = maps.Clone(n.Params)
	n.Name = r.uniqueName(SanitizeName(n.Name, n.Address()))
	r.used[n.Name] = struct{}{}
	if _, ok := r.seen[id]; !ok {
		r.seen[id] = n.Name
	}
	r.nodes = append(r.nodes, n)
	return n, nil
}

func (r *Registry) uniqueName(base string) string {
	if !r.taken(base) {
		return base
	}
	for i := 2; ; i++ {
		try := fmt.Sprintf("%s-%d", base, i)
		if !r.taken(try) {
			return try
		}
	}
}

func (r *Registry) taken(name string) bool {
	if _, ok := r.used[name]; ok {
		return true
	}
	_, ok := r.reserved[name]
	return ok
}

// Freeze ends the write phase.
func (r *Registry) Freeze() { r.frozen = true }

func (r *Registry) Frozen() bool { return r.frozen }

func (r *Registry) Len() int { return len(r.nodes) }

// Nodes returns the nodes in registry order. The slice is a copy.
func (r *Registry) Nodes() []model.Node {
	return append([]model.Node(nil), r.nodes...)
}

// Names returns the final node names in registry order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.nodes))
	for i, n := range r.nodes {
		out[i] = n.Name
	}
	return out
}

// MarshalJSON renders the node list as an indented JSON array. Non-ASCII and
// HTML characters are written as-is.
func (r *Registry) MarshalJSON() ([]byte, error) {
	out := make([]model.Node, len(r.nodes))
	for i, n := range r.nodes {
		if n.Params == nil {
			n.Params = map[string]string{}
		}
		out[i] = n
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SanitizeName trims name and replaces control characters with spaces. An
// empty result falls back to def.
func SanitizeName(name, def string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" {
		return def
	}
	return name
}
