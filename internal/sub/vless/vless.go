// Package vless decodes and encodes vless:// links.
package vless

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/sub/uri"
)

const scheme = "vless://"

// params maps link query keys to node params, in the order Encode writes them.
var params = []uri.Param{
	{Query: "type", Key: model.ParamNetwork},
	{Query: "security", Key: model.ParamSecurity},
	{Query: "sni", Key: model.ParamSNI},
	{Query: "host", Key: model.ParamHost},
	{Query: "path", Key: model.ParamPath},
	{Query: "serviceName", Key: model.ParamServiceName},
	{Query: "flow", Key: model.ParamFlow},
	{Query: "fp", Key: model.ParamFingerprint},
	{Query: "pbk", Key: model.ParamPublicKey},
	{Query: "sid", Key: model.ParamShortID},
	{Query: "alpn", Key: model.ParamALPN},
}

func Parse(link string) (model.Node, error) {
	l, err := uri.ParseLink(strings.TrimSpace(link), scheme)
	if err != nil {
		return model.Node{}, fmt.Errorf("vless: %w", err)
	}
	id, err := uuid.Parse(l.Credential)
	if err != nil {
		return model.Node{}, fmt.Errorf("vless: id: %w", err)
	}

	n := model.Node{
		Protocol:   model.ProtocolVLESS,
		Name:       l.Name,
		Server:     l.Server,
		Port:       l.Port,
		Credential: id.String(),
	}
	for _, p := range params {
		v := l.Query.Get(p.Query)
		switch p.Key {
		case model.ParamNetwork, model.ParamSecurity:
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "none" && p.Key == model.ParamSecurity {
				v = ""
			}
		}
		n.SetParam(p.Key, v)
	}
	return n, nil
}

// Encode renders n as a vless:// link.
func Encode(n model.Node) (string, error) {
	if n.Protocol != model.ProtocolVLESS {
		return "", errors.New("not a vless node")
	}
	l := uri.Link{Credential: n.Credential, Server: n.Server, Port: n.Port, Name: n.Name}
	return uri.BuildLink(scheme, l, params, n.Params), nil
}
