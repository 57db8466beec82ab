// Package ss decodes and encodes Shadowsocks links.
//
// Accepted forms:
//
//	ss://<b64(method:password)>@<host>:<port>[/][?plugin=...][#name]   (SIP002)
//	ss://<method>:<password>@<host>:<port>[#name]                      (plain userinfo)
//	ss://<b64(method:password@host:port)>[#name]                        (legacy)
//
// The legacy form is tried first on the whole body: when it decodes to a
// plausible method:password@host:port it wins, otherwise the body is split at
// the last '@'. A crafted SIP002 link whose full body also happens to be valid
// base64 of such a string is therefore read as legacy.
package ss

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/sub/uri"
)

const scheme = "ss://"

var methodRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.+-]*$`)

func Parse(link string) (model.Node, error) {
	link = strings.TrimSpace(link)
	if !strings.HasPrefix(link, scheme) {
		return model.Node{}, errors.New("missing ss:// prefix")
	}
	withoutFrag, name := uri.SplitFragment(strings.TrimPrefix(link, scheme))

	body, query, hasQuery := strings.Cut(withoutFrag, "?")
	// Only an empty path or a single trailing "/" is accepted; anything else
	// fails host:port parsing below. Standard base64 may itself contain '/'.
	body = strings.TrimSuffix(body, "/")
	if body == "" {
		return model.Node{}, errors.New("empty ss link body")
	}

	plugin, pluginOpts, err := parsePlugin(query, hasQuery)
	if err != nil {
		return model.Node{}, err
	}

	method, password, hostPort, err := splitBody(body)
	if err != nil {
		return model.Node{}, err
	}
	server, port, err := uri.ParseHostPort(hostPort)
	if err != nil {
		return model.Node{}, fmt.Errorf("server: %w", err)
	}

	n := model.Node{
		Protocol:   model.ProtocolSS,
		Name:       name,
		Server:     server,
		Port:       port,
		Credential: password,
	}
	n.SetParam(model.ParamMethod, strings.ToLower(method))
	n.SetParam(model.ParamPlugin, plugin)
	n.SetParam(model.ParamPluginOpts, pluginOpts)
	return n, nil
}

func splitBody(body string) (method, password, hostPort string, err error) {
	if decoded, derr := uri.DecodeBase64String(body); derr == nil {
		at := strings.LastIndex(decoded, "@")
		if at > 0 {
			m, p, ok := splitMethodPassword(decoded[:at])
			if ok {
				if _, _, herr := uri.ParseHostPort(decoded[at+1:]); herr == nil {
					return m, p, decoded[at+1:], nil
				}
			}
		}
	}

	at := strings.LastIndex(body, "@")
	if at <= 0 || at == len(body)-1 {
		return "", "", "", errors.New("ss link has no decodable userinfo")
	}
	userinfo, hostPort := body[:at], body[at+1:]

	if decoded, derr := uri.DecodeBase64String(userinfo); derr == nil {
		if m, p, ok := splitMethodPassword(decoded); ok {
			return m, p, hostPort, nil
		}
	}
	plain, perr := url.PathUnescape(userinfo)
	if perr != nil {
		return "", "", "", fmt.Errorf("userinfo: %w", perr)
	}
	if m, p, ok := splitMethodPassword(plain); ok {
		return m, p, hostPort, nil
	}
	return "", "", "", errors.New("ss userinfo is not method:password")
}

func splitMethodPassword(s string) (string, string, bool) {
	m, p, ok := strings.Cut(s, ":")
	if !ok {
		return "", "", false
	}
	m = strings.TrimSpace(m)
	if !methodRe.MatchString(m) || strings.TrimSpace(p) == "" {
		return "", "", false
	}
	if strings.ContainsAny(p, "\r\n\x00") {
		return "", "", false
	}
	return m, p, true
}

// parsePlugin extracts the SIP002 plugin parameter. net/url.ParseQuery rejects
// unescaped semicolons, which plugin values use, so the query is split by hand.
func parsePlugin(query string, hasQuery bool) (string, string, error) {
	if !hasQuery || query == "" {
		return "", "", nil
	}
	var value string
	for _, part := range strings.Split(query, "&") {
		k, v, _ := strings.Cut(part, "=")
		if k != "plugin" {
			continue
		}
		dv, err := url.QueryUnescape(v)
		if err != nil {
			return "", "", fmt.Errorf("plugin: %w", err)
		}
		value = dv
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", "", nil
	}
	name, opts, _ := strings.Cut(value, ";")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", errors.New("empty plugin name")
	}
	return name, strings.TrimSpace(opts), nil
}

// PluginOptions splits a "k=v;k2=v2" option string, keeping order.
func PluginOptions(s string) [][2]string {
	var out [][2]string
	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		k, v, _ := strings.Cut(seg, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, [2]string{k, strings.TrimSpace(v)})
	}
	return out
}
