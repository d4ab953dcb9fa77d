package app

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildInviteLink mints the team's invite deep link. The format is exactly
// scheme://host/{teamId} with no query parameters; the same string is what
// gets rendered as a QR code on the client.
func BuildInviteLink(host, teamID string) string {
	return fmt.Sprintf("https://%s/%s", host, teamID)
}

// ParseInviteLink extracts the team id from an invite link. Links with
// anything but a single path segment, or with query parameters, are
// rejected.
func ParseInviteLink(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid invite link: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid invite link: missing scheme or host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("invalid invite link: unexpected parameters")
	}

	teamID := strings.Trim(u.Path, "/")
	if teamID == "" || strings.Contains(teamID, "/") {
		return "", fmt.Errorf("invalid invite link: expected a single team id segment")
	}

	return teamID, nil
}
