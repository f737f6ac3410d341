// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import "encoding/json"

// FilterOptions selects the inline sync filter fields typbot uses.
type FilterOptions struct {
	// LazyLoadMembers asks the server to send only the membership
	// events relevant to the returned timeline.
	LazyLoadMembers bool
	// TimelineLimit caps timeline events per room; zero leaves the
	// server default.
	TimelineLimit int
	// ExcludePresence drops the presence section entirely.
	ExcludePresence bool
}

// BuildFilter encodes options as an inline JSON filter suitable for the
// filter parameter of /sync.
func BuildFilter(options FilterOptions) string {
	roomFilter := map[string]any{}
	if options.LazyLoadMembers {
		roomFilter["state"] = map[string]any{"lazy_load_members": true}
	}
	if options.TimelineLimit > 0 {
		roomFilter["timeline"] = map[string]any{"limit": options.TimelineLimit}
	}

	filter := map[string]any{"room": roomFilter}
	if options.ExcludePresence {
		filter["presence"] = map[string]any{"types": []string{}}
	}

	// Marshaling a map of basic types cannot fail.
	encoded, _ := json.Marshal(filter)
	return string(encoded)
}
