package sub

import (
	"context"
	"testing"
)

func FuzzParse(f *testing.F) {
	seed := []string{
		"",
		"   \n",
		"# comment\nss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388#Node%201\n",
		"ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388/?plugin=simple-obfs%3Bobfs%3Dtls%3Bobfs-host%3Dexample.com#obfs\n",
		"trojan://pw@[::1]:443#v6\nvless://x@y:1\n",
		"dm1lc3M6Ly9ub3QtYmFzZTY0ISE=",
	}
	for _, s := range seed {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, content string) {
		res, err := Parse(context.Background(), content, Options{Workers: 2})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Nodes)+len(res.Warnings) != res.Candidates {
			t.Fatalf("nodes %d + warnings %d != candidates %d", len(res.Nodes), len(res.Warnings), res.Candidates)
		}
		for _, n := range res.Nodes {
			if err := n.Validate(); err != nil {
				t.Fatalf("invalid node: %v", err)
			}
		}
	})
}
