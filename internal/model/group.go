package model

// Group is a proxy group after member expansion. Members reference node names,
// other groups, or the builtin policies.
type Group struct {
	Name    string
	Type    string // "select" | "url-test" | "fallback" | "load-balance" | ...
	Members []string

	// AutoInclude is true when the template asked for node injection (@all,
	// include-all or filter). Fixed groups are passed through unchanged.
	AutoInclude bool
}
