// Package trojan decodes and encodes trojan:// links.
package trojan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/sub/uri"
)

const scheme = "trojan://"

var params = []uri.Param{
	{Query: "type", Key: model.ParamNetwork},
	{Query: "security", Key: model.ParamSecurity},
	{Query: "sni", Key: model.ParamSNI},
	{Query: "host", Key: model.ParamHost},
	{Query: "path", Key: model.ParamPath},
	{Query: "serviceName", Key: model.ParamServiceName},
	{Query: "fp", Key: model.ParamFingerprint},
	{Query: "alpn", Key: model.ParamALPN},
	{Query: "allowInsecure", Key: model.ParamAllowInsecure},
}

func Parse(link string) (model.Node, error) {
	l, err := uri.ParseLink(strings.TrimSpace(link), scheme)
	if err != nil {
		return model.Node{}, fmt.Errorf("trojan: %w", err)
	}

	n := model.Node{
		Protocol:   model.ProtocolTrojan,
		Name:       l.Name,
		Server:     l.Server,
		Port:       l.Port,
		Credential: l.Credential,
	}
	for _, p := range params {
		v := l.Query.Get(p.Query)
		switch p.Key {
		case model.ParamNetwork, model.ParamSecurity:
			v = strings.ToLower(strings.TrimSpace(v))
		case model.ParamSNI:
			// older clients write the server name as "peer"
			if strings.TrimSpace(v) == "" {
				v = l.Query.Get("peer")
			}
		case model.ParamAllowInsecure:
			v = normalizeBool(v)
		}
		n.SetParam(p.Key, v)
	}
	return n, nil
}

// normalizeBool keeps only a truthy allowInsecure; false is the default.
func normalizeBool(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return "1"
	default:
		return ""
	}
}

// Encode renders n as a trojan:// link.
func Encode(n model.Node) (string, error) {
	if n.Protocol != model.ProtocolTrojan {
		return "", errors.New("not a trojan node")
	}
	l := uri.Link{Credential: n.Credential, Server: n.Server, Port: n.Port, Name: n.Name}
	return uri.BuildLink(scheme, l, params, n.Params), nil
}
