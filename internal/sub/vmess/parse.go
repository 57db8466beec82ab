// Package vmess decodes and encodes vmess:// links (base64 of the v2rayN JSON
// share object).
package vmess

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/sub/uri"
)

const scheme = "vmess://"

// share is the v2rayN share object. Only fields a Clash proxy can express are
// read.
type share struct {
	V    flexString `json:"v,omitempty"`
	PS   string     `json:"ps"`
	Add  string     `json:"add"`
	Port flexString `json:"port"`
	ID   string     `json:"id"`
	Aid  flexString `json:"aid"`
	Scy  string     `json:"scy,omitempty"`
	Net  string     `json:"net"`
	Type string     `json:"type"`
	Host string     `json:"host"`
	Path string     `json:"path"`
	TLS  string     `json:"tls"`
	SNI  string     `json:"sni,omitempty"`
	ALPN string     `json:"alpn,omitempty"`
	FP   string     `json:"fp,omitempty"`
}

// flexString accepts both JSON strings and numbers; providers disagree on
// whether port and aid are quoted.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

func Parse(link string) (model.Node, error) {
	link = strings.TrimSpace(link)
	if !strings.HasPrefix(link, scheme) {
		return model.Node{}, errors.New("missing vmess:// prefix")
	}
	payload, err := uri.DecodeBase64String(strings.TrimPrefix(link, scheme))
	if err != nil {
		return model.Node{}, fmt.Errorf("vmess payload base64: %w", err)
	}

	var s share
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return model.Node{}, fmt.Errorf("vmess payload json: %w", err)
	}

	server := strings.TrimSpace(s.Add)
	if server == "" {
		return model.Node{}, errors.New("vmess: empty add")
	}
	port, err := uri.ParsePort(string(s.Port))
	if err != nil {
		return model.Node{}, fmt.Errorf("vmess: %w", err)
	}
	id, err := uuid.Parse(strings.TrimSpace(s.ID))
	if err != nil {
		return model.Node{}, fmt.Errorf("vmess: id: %w", err)
	}

	n := model.Node{
		Protocol:   model.ProtocolVMess,
		Name:       strings.TrimSpace(s.PS),
		Server:     server,
		Port:       port,
		Credential: id.String(),
	}
	if aid := strings.TrimSpace(string(s.Aid)); aid != "" {
		v, err := strconv.Atoi(aid)
		if err != nil || v < 0 {
			return model.Node{}, fmt.Errorf("vmess: invalid aid %q", aid)
		}
		n.SetParam(model.ParamAlterID, strconv.Itoa(v))
	}
	n.SetParam(model.ParamCipher, s.Scy)
	n.SetParam(model.ParamNetwork, strings.ToLower(s.Net))
	n.SetParam(model.ParamHeaderType, s.Type)
	n.SetParam(model.ParamHost, s.Host)
	n.SetParam(model.ParamPath, s.Path)
	if tls := strings.ToLower(strings.TrimSpace(s.TLS)); tls != "" && tls != "none" {
		n.SetParam(model.ParamSecurity, tls)
	}
	n.SetParam(model.ParamSNI, s.SNI)
	n.SetParam(model.ParamALPN, s.ALPN)
	n.SetParam(model.ParamFingerprint, s.FP)
	return n, nil
}

// Encode renders n as a vmess:// link carrying a v2 share object.
func Encode(n model.Node) (string, error) {
	if n.Protocol != model.ProtocolVMess {
		return "", errors.New("not a vmess node")
	}
	s := share{
		V:    "2",
		PS:   n.Name,
		Add:  n.Server,
		Port: flexString(strconv.Itoa(n.Port)),
		ID:   n.Credential,
		Aid:  flexString(n.Params[model.ParamAlterID]),
		Scy:  n.Params[model.ParamCipher],
		Net:  n.Params[model.ParamNetwork],
		Type: n.Params[model.ParamHeaderType],
		Host: n.Params[model.ParamHost],
		Path: n.Params[model.ParamPath],
		TLS:  n.Params[model.ParamSecurity],
		SNI:  n.Params[model.ParamSNI],
		ALPN: n.Params[model.ParamALPN],
		FP:   n.Params[model.ParamFingerprint],
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	payload := bytes.TrimRight(buf.Bytes(), "\n")
	return scheme + base64.StdEncoding.EncodeToString(payload), nil
}
