package vless

import "testing"

func FuzzParse(f *testing.F) {
	f.Add("vless://b831381d-6324-4d53-ad4f-8cda48b30811@example.com:443?type=ws&path=%2F#n")
	f.Add("vless://x@y:1")
	f.Add("vless://b831381d-6324-4d53-ad4f-8cda48b30811@[::1]:1?sid=%zz")

	f.Fuzz(func(t *testing.T, link string) {
		n, err := Parse(link)
		if err != nil {
			return
		}
		if err := n.Validate(); err != nil {
			t.Fatalf("decoded node is invalid: %v", err)
		}
		out, err := Encode(n)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		again, err := Parse(out)
		if err != nil {
			t.Fatalf("re-parse %q: %v", out, err)
		}
		if again.Identity() != n.Identity() || again.Name != n.Name {
			t.Fatalf("round trip changed node: %+v != %+v", again, n)
		}
	})
}
