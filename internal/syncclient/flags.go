package syncclient

import (
	"net/url"
)

// Flags are the viewer presentation options carried in the join link.
type Flags struct {
	// Clean hides everything but the clinical panel.
	Clean bool `json:"clean"`
	Mute  bool `json:"mute"`
	// AutoReport moves the viewer to the report once the session ends.
	AutoReport bool `json:"autoreport"`
}

// ParseFlags reads the flags from query values. Only "1" and "true" turn a flag on.
func ParseFlags(q url.Values) Flags {
	return Flags{
		Clean:      enabled(q.Get("clean")),
		Mute:       enabled(q.Get("mute")),
		AutoReport: enabled(q.Get("autoreport")),
	}
}

func enabled(v string) bool {
	return v == "1" || v == "true"
}
