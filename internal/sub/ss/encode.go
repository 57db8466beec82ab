package ss

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/sub/uri"
)

// Encode renders n as a SIP002 link.
func Encode(n model.Node) (string, error) {
	if n.Protocol != model.ProtocolSS {
		return "", errors.New("not an ss node")
	}
	method := n.Params[model.ParamMethod]
	if method == "" || n.Credential == "" {
		return "", errors.New("ss node without method or password")
	}
	userB64 := base64.RawURLEncoding.EncodeToString([]byte(method + ":" + n.Credential))

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString(userB64)
	b.WriteByte('@')
	b.WriteString(uri.JoinHostPort(n.Server, n.Port))

	if plugin := n.Params[model.ParamPlugin]; plugin != "" {
		v := plugin
		if opts := n.Params[model.ParamPluginOpts]; opts != "" {
			v += ";" + opts
		}
		b.WriteString("/?plugin=")
		b.WriteString(uri.Escape(v))
	}
	if n.Name != "" {
		b.WriteByte('#')
		b.WriteString(uri.Escape(n.Name))
	}
	return b.String(), nil
}
