package security

import "strings"

const bearerPrefix = "bearer "

// BearerToken returns the token from an Authorization header value ("Bearer <token>", scheme
// case-insensitive), or "" if missing or malformed.
func BearerToken(authorization string) string {
	v := strings.TrimSpace(authorization)
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
