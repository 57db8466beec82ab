// Package uri holds the link-level helpers shared by the protocol decoders:
// tolerant base64, host:port validation and the scheme://cred@host:port form.
package uri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DecodeBase64 tries the standard alphabet (with padding) first, then
// URL-safe, then both raw forms. Missing padding is tolerated.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty base64 input")
	}
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	// Some providers emit over-padded or partially padded strings.
	if trimmed := strings.TrimRight(s, "="); trimmed != s && trimmed != "" {
		for _, enc := range []*base64.Encoding{base64.RawStdEncoding, base64.RawURLEncoding} {
			if b, err := enc.DecodeString(trimmed); err == nil {
				return b, nil
			}
		}
	}
	return nil, lastErr
}

// DecodeBase64String is DecodeBase64 that also requires valid UTF-8.
func DecodeBase64String(s string) (string, error) {
	b, err := DecodeBase64(s)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New("decoded base64 is not valid utf-8")
	}
	return string(b), nil
}

// ParseHostPort splits host:port, accepting bracketed IPv6 hosts.
func ParseHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return "", 0, err
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "", 0, errors.New("empty host")
	}
	if strings.ContainsAny(host, " /?#@\r\n\x00") {
		return "", 0, fmt.Errorf("invalid host %q", host)
	}
	port, err := ParsePort(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// ParsePort parses a decimal TCP port in 1..65535.
func ParsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("port out of range: %d", p)
	}
	return p, nil
}

// JoinHostPort is net.JoinHostPort with an int port.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// SplitFragment cuts "#name" off s and percent-decodes the name. A fragment
// that fails to decode is kept as-is.
func SplitFragment(s string) (rest string, name string) {
	rest, frag, ok := strings.Cut(s, "#")
	if !ok {
		return s, ""
	}
	decoded, err := url.PathUnescape(frag)
	if err != nil {
		decoded = frag
	}
	return rest, strings.TrimSpace(decoded)
}

// Escape percent-encodes s for use in a query value or fragment. Spaces become
// %20 rather than '+'.
func Escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Link is a decomposed scheme://credential@host:port?query#name link.
type Link struct {
	Credential string
	Server     string
	Port       int
	Query      url.Values
	Name       string
}

// ParseLink decomposes a URI-style link (VLESS, Trojan). The credential is
// percent-decoded.
func ParseLink(raw, scheme string) (Link, error) {
	if !strings.HasPrefix(raw, scheme) {
		return Link{}, fmt.Errorf("missing %s prefix", scheme)
	}
	rest, name := SplitFragment(strings.TrimPrefix(raw, scheme))

	rest, rawQuery, _ := strings.Cut(rest, "?")
	rest = strings.TrimSuffix(rest, "/")

	at := strings.LastIndex(rest, "@")
	if at <= 0 {
		return Link{}, errors.New("missing credential@host")
	}
	cred, err := url.PathUnescape(rest[:at])
	if err != nil {
		return Link{}, fmt.Errorf("credential: %w", err)
	}
	cred = strings.TrimSpace(cred)
	if cred == "" {
		return Link{}, errors.New("empty credential")
	}

	server, port, err := ParseHostPort(rest[at+1:])
	if err != nil {
		return Link{}, err
	}

	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Link{}, fmt.Errorf("query: %w", err)
	}

	return Link{Credential: cred, Server: server, Port: port, Query: q, Name: name}, nil
}

// Param is a link query key paired with the node param it maps to.
type Param struct {
	Query string
	Key   string
}

// BuildLink is the inverse of ParseLink. Query params are written in the given
// order, skipping empty values.
func BuildLink(scheme string, l Link, order []Param, values map[string]string) string {
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString(Escape(l.Credential))
	b.WriteByte('@')
	b.WriteString(JoinHostPort(l.Server, l.Port))

	first := true
	for _, p := range order {
		v := values[p.Key]
		if v == "" {
			continue
		}
		if first {
			b.WriteByte('?')
			first = false
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.Query)
		b.WriteByte('=')
		b.WriteString(Escape(v))
	}
	if l.Name != "" {
		b.WriteByte('#')
		b.WriteString(Escape(l.Name))
	}
	return b.String()
}
