// Package sub turns a subscription body into decoded nodes: it normalises the
// body, picks out link lines and dispatches each line to its protocol decoder.
package sub

import (
	"iter"
	"strings"

	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/sub/ss"
	"github.com/John-Robertt/clashsub/internal/sub/trojan"
	"github.com/John-Robertt/clashsub/internal/sub/uri"
	"github.com/John-Robertt/clashsub/internal/sub/vless"
	"github.com/John-Robertt/clashsub/internal/sub/vmess"
)

// Decoder turns one link into a node.
type Decoder func(link string) (model.Node, error)

// Encoder is the inverse of Decoder.
type Encoder func(n model.Node) (string, error)

var decoders = map[model.Protocol]Decoder{
	model.ProtocolVMess:  vmess.Parse,
	model.ProtocolVLESS:  vless.Parse,
	model.ProtocolSS:     ss.Parse,
	model.ProtocolTrojan: trojan.Parse,
}

var encoders = map[model.Protocol]Encoder{
	model.ProtocolVMess:  vmess.Encode,
	model.ProtocolVLESS:  vless.Encode,
	model.ProtocolSS:     ss.Encode,
	model.ProtocolTrojan: trojan.Encode,
}

// Decode dispatches link to the decoder of its scheme.
func Decode(link string) (model.Node, error) {
	p, ok := Detect(link)
	if !ok {
		return model.Node{}, errUnsupportedScheme
	}
	return decoders[p](link)
}

// Encode renders n back to a link of its protocol.
func Encode(n model.Node) (string, error) {
	enc, ok := encoders[n.Protocol]
	if !ok {
		return "", errUnsupportedScheme
	}
	return enc(n)
}

// Detect reports the protocol whose scheme prefixes link.
func Detect(link string) (model.Protocol, bool) {
	for _, p := range model.Protocols {
		if strings.HasPrefix(link, p.Scheme()) {
			return p, true
		}
	}
	return "", false
}

// Line is one candidate link line of a subscription body.
type Line struct {
	No       int // 1-based, counted in the decoded body
	Text     string
	Protocol model.Protocol
}

// DecodeBody returns the plain link list carried by a subscription body. A
// body that already contains a known scheme is used as-is; otherwise the
// whole body (whitespace removed) is tried as base64. Anything else is
// returned unchanged and simply yields no links.
func DecodeBody(text string) string {
	s := strings.TrimSpace(stripBOM(text))
	if s == "" || hasScheme(s) {
		return s
	}
	decoded, err := uri.DecodeBase64String(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return s
	}
	return strings.TrimSpace(stripBOM(decoded))
}

// Links yields the lines of text that start with a recognised scheme, in
// order. Blank lines, comments and unknown schemes are dropped.
func Links(text string) iter.Seq[Line] {
	return func(yield func(Line) bool) {
		for l := range lines(text) {
			if l.Protocol == "" {
				continue
			}
			if !yield(l) {
				return
			}
		}
	}
}

// lines yields every non-blank, non-comment line. Lines with an unknown scheme
// have an empty Protocol.
func lines(text string) iter.Seq[Line] {
	return func(yield func(Line) bool) {
		no := 0
		for raw := range strings.SplitSeq(text, "\n") {
			no++
			line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
				continue
			}
			p, _ := Detect(line)
			if !yield(Line{No: no, Text: line, Protocol: p}) {
				return
			}
		}
	}
}

func hasScheme(s string) bool {
	for _, p := range model.Protocols {
		if strings.Contains(s, p.Scheme()) {
			return true
		}
	}
	return false
}

func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
