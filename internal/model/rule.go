package model

// Rule is a routing rule line as written in the template. Policy is derived
// from Raw and used only for reference checks; Raw is what gets emitted.
type Rule struct {
	Raw    string
	Type   string // e.g. "DOMAIN-SUFFIX", "IP-CIDR", "MATCH", "AND"
	Policy string // DIRECT/REJECT/group name
}
