package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/sub/ss"
)

// Proxy is one entry of the Clash proxies list. Field order is output order.
type Proxy struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	UUID     string `yaml:"uuid,omitempty"`
	AlterID  *int   `yaml:"alterId,omitempty"`
	Cipher   string `yaml:"cipher,omitempty"`
	Password string `yaml:"password,omitempty"`
	UDP      bool   `yaml:"udp"`

	TLS            bool     `yaml:"tls,omitempty"`
	ServerName     string   `yaml:"servername,omitempty"`
	SNI            string   `yaml:"sni,omitempty"`
	SkipCertVerify *bool    `yaml:"skip-cert-verify,omitempty"`
	ALPN           []string `yaml:"alpn,omitempty"`

	Network  string    `yaml:"network,omitempty"`
	WSOpts   *WSOpts   `yaml:"ws-opts,omitempty"`
	HTTPOpts *HTTPOpts `yaml:"http-opts,omitempty"`
	H2Opts   *H2Opts   `yaml:"h2-opts,omitempty"`
	GRPCOpts *GRPCOpts `yaml:"grpc-opts,omitempty"`

	Plugin     string         `yaml:"plugin,omitempty"`
	PluginOpts map[string]any `yaml:"plugin-opts,omitempty"`

	Flow              string       `yaml:"flow,omitempty"`
	ClientFingerprint string       `yaml:"client-fingerprint,omitempty"`
	RealityOpts       *RealityOpts `yaml:"reality-opts,omitempty"`
}

type WSOpts struct {
	Path    string            `yaml:"path"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

type HTTPOpts struct {
	Method  string              `yaml:"method,omitempty"`
	Path    []string            `yaml:"path"`
	Headers map[string][]string `yaml:"headers,omitempty"`
}

type H2Opts struct {
	Host []string `yaml:"host,omitempty"`
	Path string   `yaml:"path"`
}

type GRPCOpts struct {
	ServiceName string `yaml:"grpc-service-name"`
}

type RealityOpts struct {
	PublicKey string `yaml:"public-key"`
	ShortID   string `yaml:"short-id,omitempty"`
}

// Proxies renders nodes in order. Fields the target cannot express are left
// out; a node is never dropped.
func Proxies(target Target, nodes []model.Node) ([]Proxy, error) {
	out := make([]Proxy, 0, len(nodes))
	for _, n := range nodes {
		p, err := renderProxy(target, n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func renderProxy(target Target, n model.Node) (Proxy, error) {
	p := Proxy{
		Name:   n.Name,
		Type:   string(n.Protocol),
		Server: n.Server,
		Port:   n.Port,
		UDP:    true,
	}
	meta := target == TargetMeta

	switch n.Protocol {
	case model.ProtocolVMess:
		p.UUID = n.Credential
		aid, _ := strconv.Atoi(n.Param(model.ParamAlterID, "0"))
		p.AlterID = &aid
		p.Cipher = n.Param(model.ParamCipher, "auto")
		if n.Params[model.ParamSecurity] == "tls" {
			p.TLS = true
			p.ServerName = n.Param(model.ParamSNI, n.Params[model.ParamHost])
		}
		// vmess carries the grpc service name in path
		transport(&p, n, n.Params[model.ParamPath])
	case model.ProtocolVLESS:
		p.UUID = n.Credential
		switch n.Params[model.ParamSecurity] {
		case "tls", "xtls":
			p.TLS = true
			p.ServerName = n.Params[model.ParamSNI]
		case "reality":
			p.TLS = true
			p.ServerName = n.Params[model.ParamSNI]
			if meta {
				p.RealityOpts = &RealityOpts{
					PublicKey: n.Params[model.ParamPublicKey],
					ShortID:   n.Params[model.ParamShortID],
				}
				p.ClientFingerprint = n.Param(model.ParamFingerprint, "chrome")
			}
		}
		if meta {
			p.Flow = n.Params[model.ParamFlow]
		}
		transport(&p, n, n.Params[model.ParamServiceName])
	case model.ProtocolTrojan:
		p.Password = n.Credential
		p.SNI = n.Params[model.ParamSNI]
		skip := n.Params[model.ParamAllowInsecure] == "1"
		p.SkipCertVerify = &skip
		transport(&p, n, n.Params[model.ParamServiceName])
	case model.ProtocolSS:
		p.Cipher = n.Params[model.ParamMethod]
		p.Password = n.Credential
		p.Plugin, p.PluginOpts = ssPlugin(n.Params[model.ParamPlugin], n.Params[model.ParamPluginOpts])
	default:
		return Proxy{}, &RenderError{
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: fmt.Sprintf("不支持的节点类型：%s", n.Protocol),
				Stage:   "render",
				Snippet: n.Name,
			},
		}
	}

	if meta && n.Protocol != model.ProtocolSS {
		if alpn := n.Params[model.ParamALPN]; alpn != "" {
			p.ALPN = splitList(alpn)
		}
		if p.ClientFingerprint == "" {
			p.ClientFingerprint = n.Params[model.ParamFingerprint]
		}
	}
	return p, nil
}

// transport fills network and its options. Hosts and paths fall back to the
// documented defaults: the server address and "/".
func transport(p *Proxy, n model.Node, serviceName string) {
	network := n.Param(model.ParamNetwork, "tcp")
	host := n.Param(model.ParamHost, n.Server)
	path := n.Param(model.ParamPath, "/")

	switch network {
	case "ws":
		p.Network = "ws"
		p.WSOpts = &WSOpts{Path: path, Headers: map[string]string{"Host": host}}
	case "grpc":
		p.Network = "grpc"
		p.GRPCOpts = &GRPCOpts{ServiceName: serviceName}
	case "h2":
		p.Network = "h2"
		p.H2Opts = &H2Opts{Host: []string{host}, Path: path}
	case "http":
		p.Network = "http"
		p.HTTPOpts = &HTTPOpts{Path: []string{path}, Headers: map[string][]string{"Host": {host}}}
	default:
		if n.Params[model.ParamHeaderType] == "http" {
			p.Network = "http"
			p.HTTPOpts = &HTTPOpts{Method: "GET", Path: []string{path}, Headers: map[string][]string{"Host": {host}}}
			return
		}
		// tcp, and transports Clash has no key for (kcp, quic), render as
		// the documented default.
		if n.Protocol == model.ProtocolVMess {
			p.Network = "tcp"
		}
	}
}

// ssPlugin maps SIP003 plugin names to the Clash plugin keys. Unknown plugins
// pass through with their options as a generic map.
func ssPlugin(name, opts string) (string, map[string]any) {
	if name == "" {
		return "", nil
	}
	kv := ss.PluginOptions(opts)
	switch name {
	case "simple-obfs", "obfs-local":
		m := map[string]any{}
		for _, o := range kv {
			switch o[0] {
			case "obfs":
				m["mode"] = o[1]
			case "obfs-host":
				m["host"] = o[1]
			}
		}
		return "obfs", m
	case "v2ray-plugin":
		m := map[string]any{"mode": "websocket"}
		for _, o := range kv {
			switch o[0] {
			case "mode":
				m["mode"] = o[1]
			case "tls":
				m["tls"] = true
			case "host":
				m["host"] = o[1]
			case "path":
				m["path"] = o[1]
			case "mux":
				m["mux"] = o[1] != "0" && o[1] != "false"
			}
		}
		return "v2ray-plugin", m
	default:
		m := make(map[string]any, len(kv))
		for _, o := range kv {
			if o[1] == "" {
				m[o[0]] = true
				continue
			}
			m[o[0]] = o[1]
		}
		return name, m
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
