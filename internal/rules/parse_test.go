package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/clashsub/internal/model"
)

func TestPolicy(t *testing.T) {
	cases := []struct{ line, want string }{
		{"DOMAIN-SUFFIX,google.com,🚀 节点选择", "🚀 节点选择"},
		{"IP-CIDR,192.168.0.0/16,DIRECT,no-resolve", "DIRECT"},
		{"GEOIP,CN,🎯 全球直连", "🎯 全球直连"},
		{"AND,((DOMAIN,baidu.com),(NETWORK,UDP)),REJECT", "REJECT"},
		{"MATCH,🐟 漏网之鱼", "🐟 漏网之鱼"},
		{" RULE-SET , apple , DIRECT \r", "DIRECT"},
		{"IP-CIDR6,2001:db8::/32,Proxy,no-resolve", "Proxy"},
		{"OR,((DST-PORT,22),(AND,((NETWORK,TCP),(DST-PORT,25)))),REJECT", "REJECT"},
	}
	for _, tc := range cases {
		got, err := Policy(tc.line)
		require.NoError(t, err, tc.line)
		require.Equal(t, tc.want, got, tc.line)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, line := range []string{
		"",
		"DOMAIN,example.com",
		"IP-CIDR,1.1.1.1/32,no-resolve",
		"MATCH",
		"MATCH,A,B",
		"AND,((DOMAIN,a.com),REJECT",
		"DOMAIN,a.com,DIRECT,bogus",
		",a.com,DIRECT",
	} {
		_, err := Parse(line)
		var re *RuleError
		require.True(t, errors.As(err, &re), "%q: %v", line, err)
		require.Equal(t, "RULE_PARSE_ERROR", re.Code, line)
	}
}

func TestParse_Match(t *testing.T) {
	r, err := Parse("FINAL,Proxy")
	require.NoError(t, err)
	require.Equal(t, model.Rule{Raw: "FINAL,Proxy", Type: "MATCH", Policy: "Proxy"}, r)
}

func TestCheck(t *testing.T) {
	groups := []string{"Proxy", "Final"}

	require.Empty(t, Check([]string{"DOMAIN,a.com,Proxy", "GEOIP,CN,DIRECT", "MATCH,Final"}, groups))

	ws := Check([]string{
		"DOMAIN,a.com,Missing",
		"MATCH,Final",
		"garbage",
	}, groups)
	var codes []string
	for _, w := range ws {
		codes = append(codes, w.AppError.Code)
	}
	require.Equal(t, []string{"REFERENCE_NOT_FOUND", "RULE_PARSE_ERROR", "RULE_MATCH_NOT_LAST"}, codes)
	require.Equal(t, 1, ws[0].AppError.Line)
	require.Equal(t, 3, ws[1].AppError.Line)
	require.Equal(t, 2, ws[2].AppError.Line)

	ws = Check([]string{"DOMAIN,a.com,Proxy"}, groups)
	require.Len(t, ws, 1)
	require.Equal(t, "RULE_MATCH_MISSING", ws[0].AppError.Code)
}
