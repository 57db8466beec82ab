package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Protocol string

const (
	ProtocolVMess  Protocol = "vmess"
	ProtocolVLESS  Protocol = "vless"
	ProtocolSS     Protocol = "ss"
	ProtocolTrojan Protocol = "trojan"
)

// Protocols lists the supported protocols in dispatch order.
var Protocols = []Protocol{ProtocolVMess, ProtocolVLESS, ProtocolSS, ProtocolTrojan}

// Scheme returns the link prefix for p, e.g. "vmess://".
func (p Protocol) Scheme() string { return string(p) + "://" }

func (p Protocol) Valid() bool {
	switch p {
	case ProtocolVMess, ProtocolVLESS, ProtocolSS, ProtocolTrojan:
		return true
	default:
		return false
	}
}

// Keys of Node.Params. Which keys are meaningful depends on the protocol, see
// AllowedParams.
const (
	ParamAlterID       = "alter_id"
	ParamCipher        = "cipher"
	ParamNetwork       = "network"
	ParamHeaderType    = "header_type"
	ParamHost          = "host"
	ParamPath          = "path"
	ParamSecurity      = "security"
	ParamSNI           = "sni"
	ParamALPN          = "alpn"
	ParamFingerprint   = "fingerprint"
	ParamServiceName   = "service_name"
	ParamFlow          = "flow"
	ParamPublicKey     = "public_key"
	ParamShortID       = "short_id"
	ParamAllowInsecure = "allow_insecure"
	ParamMethod        = "method"
	ParamPlugin        = "plugin"
	ParamPluginOpts    = "plugin_opts"
)

var allowedParams = map[Protocol]map[string]struct{}{
	ProtocolVMess: setOf(
		ParamAlterID, ParamCipher, ParamNetwork, ParamHeaderType, ParamHost, ParamPath,
		ParamSecurity, ParamSNI, ParamALPN, ParamFingerprint,
	),
	ProtocolVLESS: setOf(
		ParamNetwork, ParamSecurity, ParamSNI, ParamHost, ParamPath, ParamServiceName,
		ParamFlow, ParamFingerprint, ParamPublicKey, ParamShortID, ParamALPN,
	),
	ProtocolTrojan: setOf(
		ParamNetwork, ParamSecurity, ParamSNI, ParamHost, ParamPath, ParamServiceName,
		ParamALPN, ParamFingerprint, ParamAllowInsecure,
	),
	ProtocolSS: setOf(ParamMethod, ParamPlugin, ParamPluginOpts),
}

func setOf(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// AllowedParams reports whether key is meaningful for protocol p.
func AllowedParams(p Protocol, key string) bool {
	_, ok := allowedParams[p][key]
	return ok
}

// Node is the uniform record every link decoder produces.
//
// Params only holds values that were present in the link. Defaults are applied
// by consumers (see Param), so a decoded node re-encodes to the same link.
type Node struct {
	Protocol   Protocol          `json:"protocol"`
	Name       string            `json:"name"`
	Server     string            `json:"server"`
	Port       int               `json:"port"`
	Credential string            `json:"credential"`
	Params     map[string]string `json:"protocol_params"`
}

// Param returns the value of key, or def when it is absent or empty.
func (n Node) Param(key, def string) string {
	if v := n.Params[key]; v != "" {
		return v
	}
	return def
}

// SetParam stores v under key. Empty values are not stored.
func (n *Node) SetParam(key, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	if n.Params == nil {
		n.Params = make(map[string]string)
	}
	n.Params[key] = v
}

// Address is the "server:port" label used when a node carries no name.
func (n Node) Address() string {
	if strings.Contains(n.Server, ":") {
		return fmt.Sprintf("[%s]:%d", n.Server, n.Port)
	}
	return fmt.Sprintf("%s:%d", n.Server, n.Port)
}

func (n Node) Validate() error {
	if !n.Protocol.Valid() {
		return fmt.Errorf("unsupported protocol %q", n.Protocol)
	}
	if strings.TrimSpace(n.Server) == "" {
		return errors.New("empty server")
	}
	if n.Port < 1 || n.Port > 65535 {
		return fmt.Errorf("port out of range: %d", n.Port)
	}
	if strings.TrimSpace(n.Credential) == "" {
		return errors.New("empty credential")
	}
	for _, k := range n.ParamKeys() {
		if !AllowedParams(n.Protocol, k) {
			return fmt.Errorf("param %q is not valid for %s", k, n.Protocol)
		}
	}
	if n.Protocol == ProtocolSS && n.Params[ParamMethod] == "" {
		return errors.New("ss node without method")
	}
	return nil
}

// ParamKeys returns the param keys in sorted order.
func (n Node) ParamKeys() []string {
	keys := make([]string, 0, len(n.Params))
	for k := range n.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Identity is a stable key over everything except the name.
func (n Node) Identity() string {
	var b strings.Builder
	b.WriteString(string(n.Protocol))
	b.WriteByte('\n')
	b.WriteString(strings.ToLower(n.Server))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "%d", n.Port)
	b.WriteByte('\n')
	b.WriteString(n.Credential)
	b.WriteByte('\n')
	for _, k := range n.ParamKeys() {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(n.Params[k])
		b.WriteByte(';')
	}
	return b.String()
}
