package usersync

import (
	"fmt"
	"strings"
)

// SyncType specifies the mechanism used to perform a user sync.
type SyncType string

const (
	// SyncTypeUnknown specifies the user sync type is invalid or not specified.
	SyncTypeUnknown SyncType = ""

	// SyncTypeIFrame specifies the user sync is to be performed within an HTML iframe
	// and to expect the server to return a valid HTML page with an embedded script.
	SyncTypeIFrame SyncType = "iframe"

	// SyncTypeRedirect specifies the user sync is to be performed within an HTML image
	// and to expect the server to return a 302 redirect.
	SyncTypeRedirect SyncType = "redirect"
)

// ParseSyncType reads a sync type case-insensitively. "image" is accepted as a redirect alias.
func ParseSyncType(v string) (SyncType, error) {
	switch strings.ToLower(v) {
	case "iframe":
		return SyncTypeIFrame, nil
	case "redirect", "image":
		return SyncTypeRedirect, nil
	default:
		return SyncTypeUnknown, fmt.Errorf("invalid sync type %q", v)
	}
}
