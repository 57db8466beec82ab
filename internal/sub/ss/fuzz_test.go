package ss

import "testing"

func FuzzParse(f *testing.F) {
	seed := []string{
		"",
		"ss://",
		"ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388#Node%201",
		"ss://YWVzLTEyOC1nY206cGFzcw==@example.com:8388/?plugin=simple-obfs%3Bobfs%3Dtls%3Bobfs-host%3Dexample.com#obfs",
		"ss://YWVzLTEyOC1nY206cGFzcw==@[::1]:8388#ipv6",
		"ss://YWVzLTEyOC1nY206cGFzc0BleC5jb206NDQz#legacy",
	}
	for _, s := range seed {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, link string) {
		n, err := Parse(link)
		if err != nil {
			return
		}
		if err := n.Validate(); err != nil {
			t.Fatalf("decoded node is invalid: %v (%+v)", err, n)
		}
		out, err := Encode(n)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		again, err := Parse(out)
		if err != nil {
			t.Fatalf("re-parse %q: %v", out, err)
		}
		if again.Identity() != n.Identity() {
			t.Fatalf("round trip changed node: %+v != %+v", again, n)
		}
	})
}
