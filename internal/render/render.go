// Package render turns registry nodes into Clash proxy entries and complete
// configuration documents for the supported clients.
package render

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/clashsub/internal/compiler"
	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/template"
)

type Target string

const (
	// TargetClash is classic Clash.
	TargetClash Target = "clash"
	// TargetMeta is Clash Meta (mihomo), which understands the extended
	// fields.
	TargetMeta Target = "meta"
)

// Targets lists the document targets in output order.
var Targets = []Target{TargetClash, TargetMeta}

func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetClash, TargetMeta:
		return t, nil
	case "mihomo", "clash-meta", "clash_meta":
		return TargetMeta, nil
	default:
		return "", &RenderError{
			AppError: model.AppError{
				Code:    "UNSUPPORTED_TARGET",
				Message: fmt.Sprintf("不支持的 target：%s", s),
				Stage:   "render",
			},
		}
	}
}

type RenderError struct {
	AppError model.AppError
	Cause    error
}

func (e *RenderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return model.FormatError(e.AppError, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// Document renders the full configuration for target. Groups come from res,
// rules are copied from the template as written.
func Document(target Target, tmpl *template.Template, nodes []model.Node, res *compiler.Result) ([]byte, error) {
	if tmpl == nil || res == nil {
		return nil, &RenderError{
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: "render input 不能为空",
				Stage:   "render",
			},
		}
	}
	proxies, err := Proxies(target, nodes)
	if err != nil {
		return nil, err
	}
	out, err := tmpl.Render(proxies, res.Groups, Extras(target)...)
	if err != nil {
		return nil, &RenderError{
			AppError: model.AppError{
				Code:    "RENDER_ERROR",
				Message: "配置渲染失败",
				Stage:   "render",
				URL:     tmpl.URL,
			},
			Cause: err,
		}
	}
	return out, nil
}

// Extras returns the top-level keys target adds when the template lacks them.
func Extras(target Target) []template.Field {
	if target != TargetMeta {
		return nil
	}
	return []template.Field{
		{Key: "geodata-mode", Value: true},
		{Key: "geox-url", Value: geoxURL{
			GeoIP:   "https://cdn.jsdelivr.net/gh/Loyalsoldier/v2ray-rules-dat@release/geoip.dat",
			GeoSite: "https://cdn.jsdelivr.net/gh/Loyalsoldier/v2ray-rules-dat@release/geosite.dat",
			MMDB:    "https://cdn.jsdelivr.net/gh/Loyalsoldier/geoip@release/Country.mmdb",
		}},
		{Key: "sniffer", Value: sniffer{
			Enable: true,
			Sniff: map[string]sniffProto{
				"HTTP": {Ports: []any{80, "8080-8880"}, OverrideDestination: true},
				"TLS":  {Ports: []any{443, 8443}},
				"QUIC": {Ports: []any{443, 8443}},
			},
		}},
	}
}

type geoxURL struct {
	GeoIP   string `yaml:"geoip"`
	GeoSite string `yaml:"geosite"`
	MMDB    string `yaml:"mmdb"`
}

type sniffer struct {
	Enable bool                  `yaml:"enable"`
	Sniff  map[string]sniffProto `yaml:"sniff"`
}

type sniffProto struct {
	Ports               []any `yaml:"ports"`
	OverrideDestination bool  `yaml:"override-destination,omitempty"`
}
