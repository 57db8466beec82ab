package trojan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/clashsub/internal/model"
)

func TestParse(t *testing.T) {
	n, err := Parse("trojan://s3cr%40t@tr.example.com:443?peer=sni.example.com&allowInsecure=1&type=ws&path=%2Ftr&host=cdn.example.com#US%2001")
	require.NoError(t, err)
	require.Equal(t, model.ProtocolTrojan, n.Protocol)
	require.Equal(t, "US 01", n.Name)
	require.Equal(t, "tr.example.com", n.Server)
	require.Equal(t, 443, n.Port)
	require.Equal(t, "s3cr@t", n.Credential)
	require.Equal(t, map[string]string{
		model.ParamNetwork:       "ws",
		model.ParamSNI:           "sni.example.com",
		model.ParamHost:          "cdn.example.com",
		model.ParamPath:          "/tr",
		model.ParamAllowInsecure: "1",
	}, n.Params)
	require.NoError(t, n.Validate())
}

func TestParse_SNIWinsOverPeer(t *testing.T) {
	n, err := Parse("trojan://pw@a.com:443?sni=one.com&peer=two.com&allowInsecure=0")
	require.NoError(t, err)
	require.Equal(t, "one.com", n.Params[model.ParamSNI])
	require.NotContains(t, n.Params, model.ParamAllowInsecure)
}

func TestParse_Malformed(t *testing.T) {
	for _, bad := range []string{
		"trojan://@a.com:443",
		"trojan://pw@a.com",
		"trojan://pw@:443",
		"trojan://pw@a.com:443?x=%zz",
	} {
		_, err := Parse(bad)
		require.Error(t, err, bad)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	n, err := Parse("trojan://p%20w%3Fx@[2001:db8::2]:8443?security=tls&sni=a.com&alpn=h2&fp=firefox#%E9%A6%99%E6%B8%AF")
	require.NoError(t, err)
	require.Equal(t, "p w?x", n.Credential)

	out, err := Encode(n)
	require.NoError(t, err)
	again, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, n, again)
}
